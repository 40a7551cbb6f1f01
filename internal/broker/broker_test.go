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

package broker

import (
	"testing"
	"time"

	"hermes/internal/logger"
	"hermes/internal/wire"
)

// fakeTransport records every outbound multipart message so tests can
// assert on broker behavior without an actual ZeroMQ socket.
type fakeTransport struct {
	sent [][][]byte
}

func (f *fakeTransport) SendMultipart(frames [][]byte) error {
	f.sent = append(f.sent, frames)
	return nil
}
func (f *fakeTransport) RecvMultipart() ([][]byte, error) { select {} }
func (f *fakeTransport) Poll(time.Duration) (bool, error) { return false, nil }
func (f *fakeTransport) Close() error                     { return nil }

func newTestBroker() (*Broker, *fakeTransport) {
	ft := &fakeTransport{}
	b := newWithTransport(Config{Endpoint: "inproc://test"}, logger.New(), ft)
	return b, ft
}

func readyFrames(identity, service string) (string, [][]byte) {
	return identity, [][]byte{[]byte(wire.Ready), []byte(service)}
}

func TestProcessWorkerReadyRegistersService(t *testing.T) {
	b, _ := newTestBroker()
	id, frames := readyFrames("worker-1", "echo")
	b.processWorker(id, frames)

	svc, ok := b.services["echo"]
	if !ok {
		t.Fatalf("expected service %q to be registered", "echo")
	}
	if len(svc.workers) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(svc.workers))
	}
	if svc.designated == nil || svc.designated.address != "worker-1" {
		t.Fatalf("expected worker-1 to be designated, got %+v", svc.designated)
	}
}

func TestWorkholicDispatchPinsToDesignatedWorker(t *testing.T) {
	b, ft := newTestBroker()
	_, r1 := readyFrames("worker-1", "echo")
	b.processWorker("worker-1", r1)
	_, r2 := readyFrames("worker-2", "echo")
	b.processWorker("worker-2", r2)

	b.processClient("client-1", [][]byte{[]byte("echo"), []byte("req-1"), []byte("payload")})

	if len(ft.sent) != 1 {
		t.Fatalf("expected exactly 1 dispatched request, got %d", len(ft.sent))
	}
	dest := string(ft.sent[0][0])
	if dest != "worker-1" {
		t.Fatalf("expected request routed to designated worker-1, got %s", dest)
	}

	b.processClient("client-1", [][]byte{[]byte("echo"), []byte("req-2"), []byte("payload")})
	if len(ft.sent) != 1 {
		t.Fatalf("expected worker-2 to stay idle while worker-1 is busy, sent=%d", len(ft.sent))
	}
}

func TestAppServiceIsFreeForAll(t *testing.T) {
	b, ft := newTestBroker()
	_, r1 := readyFrames("worker-1", wire.AppService)
	b.processWorker("worker-1", r1)
	_, r2 := readyFrames("worker-2", wire.AppService)
	b.processWorker("worker-2", r2)

	b.processClient("client-1", [][]byte{[]byte(wire.AppService), []byte("req-1"), []byte("payload")})
	b.processClient("client-1", [][]byte{[]byte(wire.AppService), []byte("req-2"), []byte("payload")})

	if len(ft.sent) != 2 {
		t.Fatalf("expected both APP requests dispatched concurrently, got %d", len(ft.sent))
	}
	first := string(ft.sent[0][0])
	second := string(ft.sent[1][0])
	if first == second {
		t.Fatalf("expected round-robin across distinct workers, both went to %s", first)
	}
}

func TestDesignatedFailoverPromotesStandby(t *testing.T) {
	b, _ := newTestBroker()
	_, r1 := readyFrames("worker-1", "echo")
	b.processWorker("worker-1", r1)
	_, r2 := readyFrames("worker-2", "echo")
	b.processWorker("worker-2", r2)

	svc := b.services["echo"]
	designated := svc.designated
	if designated.address != "worker-1" {
		t.Fatalf("expected worker-1 designated first, got %s", designated.address)
	}

	b.deleteWorker(designated, false)

	if svc.designated == nil || svc.designated.address != "worker-2" {
		t.Fatalf("expected worker-2 promoted after failover, got %+v", svc.designated)
	}
}

func TestMMIServiceQuery(t *testing.T) {
	b, _ := newTestBroker()
	_, r1 := readyFrames("worker-1", "echo")
	b.processWorker("worker-1", r1)

	reply := b.serviceInternal("mmi.service", [][]byte{[]byte("echo")})
	if string(reply[0]) != "200" {
		t.Fatalf("expected 200 for known service, got %s", reply[0])
	}

	reply = b.serviceInternal("mmi.service", [][]byte{[]byte("nonexistent")})
	if string(reply[0]) != "404" {
		t.Fatalf("expected 404 for unknown service, got %s", reply[0])
	}

	reply = b.serviceInternal("mmi.unknown", nil)
	if string(reply[0]) != "501" {
		t.Fatalf("expected 501 for unsupported mmi verb, got %s", reply[0])
	}
}

func TestServiceGarbageCollection(t *testing.T) {
	b, _ := newTestBroker()
	b.cfg.ServiceTimeout = time.Millisecond
	svc := b.requireService("idle")
	svc.lastActive = time.Now().Add(-time.Second)

	b.checkServiceTimeouts()

	if _, ok := b.services["idle"]; ok {
		t.Fatalf("expected idle service to be garbage-collected")
	}
}

func TestNonReadyFirstMessageDisconnectsWorker(t *testing.T) {
	b, ft := newTestBroker()

	b.processWorker("ghost-1", [][]byte{[]byte(wire.Heartbeat)})

	if _, ok := b.workers["ghost-1"]; ok {
		t.Fatalf("expected unknown worker sending HEARTBEAT first to be disconnected, not registered")
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected exactly 1 frame sent (the DISCONNECT), got %d", len(ft.sent))
	}
	sent := ft.sent[0]
	if len(sent) < 4 || string(sent[3]) != wire.Disconnect {
		t.Fatalf("expected a DISCONNECT command sent to ghost-1, got %v", sent)
	}
}

func TestDeleteWorkerRemovesServiceWithNoWaitingWorkers(t *testing.T) {
	b, _ := newTestBroker()
	_, r1 := readyFrames("worker-1", "echo")
	b.processWorker("worker-1", r1)

	w := b.workers["worker-1"]
	b.deleteWorker(w, false)

	if _, ok := b.services["echo"]; ok {
		t.Fatalf("expected service with no waiting workers to be removed immediately")
	}
}

func TestHeartbeatMarksDesignatedWorker(t *testing.T) {
	b, ft := newTestBroker()
	_, r1 := readyFrames("worker-1", "echo")
	b.processWorker("worker-1", r1)

	b.sendHeartbeats()

	if len(ft.sent) == 0 {
		t.Fatalf("expected at least one heartbeat frame sent")
	}
	last := ft.sent[len(ft.sent)-1]
	if len(last) < 5 || string(last[4]) != wire.DesignatedMarker {
		t.Fatalf("expected designated marker frame on heartbeat, got %v", last)
	}
}
