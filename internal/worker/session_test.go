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

package worker

import (
	"testing"
	"time"
)

func TestStateStringer(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateIdle:         "idle",
		StateBusy:         "busy",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	max := 2 * time.Second
	got := nextBackoff(1500*time.Millisecond, max)
	if got != max {
		t.Errorf("nextBackoff overshoot not capped: got %v, want %v", got, max)
	}
}

func TestNewSessionStartsDisconnected(t *testing.T) {
	s := New(Config{BrokerEndpoint: "tcp://localhost:5555", Service: "echo"}, testLogger(), func(b [][]byte) [][]byte { return b })
	if s.State() != StateDisconnected {
		t.Errorf("expected new session to start disconnected, got %s", s.State())
	}
	if s.IsDesignated() {
		t.Errorf("expected new session to not be designated before any heartbeat")
	}
}
