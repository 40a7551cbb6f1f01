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

// Package broker implements the request/reply mediation engine: a single
// goroutine that owns every piece of broker state, so none of it needs a
// lock. Everything in this package runs on that one goroutine; the only
// cross-goroutine surface is the channel the engine's run loop selects
// on (see engine.go).
package broker

import (
	"encoding/hex"
	"time"

	"hermes/internal/wire"
)

// pendingRequest is one queued client request waiting for a worker. It
// is dropped from the queue once dispatched; the broker does not keep
// in-flight requests.
type pendingRequest struct {
	clientID  []byte
	requestID string
	body      [][]byte
	queuedAt  time.Time
}

// worker is the broker's view of one connected worker session. address
// is the raw routing address ZeroMQ assigned the worker's DEALER socket
// (verbatim bytes, not necessarily valid UTF-8) — it is the map key and
// the only thing usable as a ROUTER destination frame. identity is its
// hex-encoded canonical form (spec section 3), safe to log, JSON-encode,
// or render in the admin API and monitor TUI.
type worker struct {
	address    string
	identity   string
	service    *service
	expiry     time.Time
	designated bool
}

func newWorker(address string) *worker {
	return &worker{address: address, identity: hex.EncodeToString([]byte(address))}
}

// service groups the workers registered under one name and the requests
// queued for it. In workholic mode (every service except wire.AppService)
// exactly one worker at a time is "designated" and receives all new
// requests; the rest sit idle in standby, promoted only on the
// designated worker's death.
type service struct {
	name       string
	workers    map[string]*worker
	waiting    []*worker // idle, order of arrival
	requests   []pendingRequest
	designated *worker
	workholic  bool
	lastActive time.Time
}

func newService(name string) *service {
	return &service{
		name:       name,
		workers:    make(map[string]*worker),
		workholic:  wire.IsWorkholic(name),
		lastActive: time.Now(),
	}
}

// removeWaiting deletes w from the waiting slice, if present.
func (s *service) removeWaiting(w *worker) {
	for i, c := range s.waiting {
		if c == w {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}
