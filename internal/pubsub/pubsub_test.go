// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pubsub

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSuspendedPublisherDropsMessages(t *testing.T) {
	p := &Publisher{log: zerolog.Nop(), active: true, queue: make(chan [][]byte, 4)}
	p.Suspend()
	p.Publish("topic", [][]byte{[]byte("payload")})

	select {
	case <-p.queue:
		t.Fatalf("expected no message queued while suspended")
	default:
	}
}

func TestResumedPublisherQueuesMessages(t *testing.T) {
	p := &Publisher{log: zerolog.Nop(), active: true, queue: make(chan [][]byte, 4)}
	p.Suspend()
	p.Resume()
	p.Publish("topic", [][]byte{[]byte("payload")})

	select {
	case frames := <-p.queue:
		if string(frames[0]) != "topic" {
			t.Fatalf("expected topic frame first, got %q", frames[0])
		}
	default:
		t.Fatalf("expected message queued after resume")
	}
}

func TestFullQueueDropsRatherThanBlocks(t *testing.T) {
	p := &Publisher{log: zerolog.Nop(), active: true, queue: make(chan [][]byte, 1)}
	p.Publish("topic", [][]byte{[]byte("first")})
	p.Publish("topic", [][]byte{[]byte("second")})

	if len(p.queue) != 1 {
		t.Fatalf("expected queue to stay bounded at 1, got %d", len(p.queue))
	}
}
