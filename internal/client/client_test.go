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

package client

import (
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	seen, err := lru.New[string, struct{}](16)
	if err != nil {
		t.Fatalf("build dedup cache: %v", err)
	}
	return &Client{
		cfg:     Config{RequestTimeout: time.Second}.withDefaults(),
		log:     zerolog.Nop(),
		pending: make(map[string]pending),
		seen:    seen,
	}
}

func TestHandleReplyDispatchesCallback(t *testing.T) {
	c := newTestClient(t)

	var got [][]byte
	c.mu.Lock()
	c.pending["req-1"] = pending{callback: func(body [][]byte, err error) {
		got = body
	}, deadline: time.Now().Add(time.Minute)}
	c.mu.Unlock()

	c.handleReply([][]byte{{}, []byte("MDPC01"), []byte("echo"), []byte("req-1"), []byte("pong")})

	if len(got) != 1 || string(got[0]) != "pong" {
		t.Fatalf("expected callback invoked with reply body, got %v", got)
	}
	c.mu.Lock()
	_, stillPending := c.pending["req-1"]
	c.mu.Unlock()
	if stillPending {
		t.Fatalf("expected pending entry removed after reply")
	}
}

func TestHandleReplyDropsDuplicates(t *testing.T) {
	c := newTestClient(t)
	calls := 0
	c.mu.Lock()
	c.pending["req-1"] = pending{callback: func(body [][]byte, err error) { calls++ }, deadline: time.Now().Add(time.Minute)}
	c.mu.Unlock()

	frames := [][]byte{{}, []byte("MDPC01"), []byte("echo"), []byte("req-1"), []byte("pong")}
	c.handleReply(frames)
	c.handleReply(frames)

	if calls != 1 {
		t.Fatalf("expected exactly 1 callback invocation, got %d", calls)
	}
}

func TestSweepExpiredFailsTimedOutRequests(t *testing.T) {
	c := newTestClient(t)
	var gotErr error
	c.mu.Lock()
	c.pending["req-1"] = pending{
		callback: func(body [][]byte, err error) { gotErr = err },
		deadline: time.Now().Add(-time.Second),
	}
	c.mu.Unlock()

	c.sweepExpired()

	if gotErr == nil {
		t.Fatalf("expected timeout error delivered to callback")
	}
	c.mu.Lock()
	_, stillPending := c.pending["req-1"]
	c.mu.Unlock()
	if stillPending {
		t.Fatalf("expected expired entry removed from pending map")
	}
}
