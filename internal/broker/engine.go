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
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/wire"
)

// Auditor receives a record of every completed request/reply cycle. The
// broker knows nothing about what an Auditor does with it; auditlog.Writer
// is the one shipped with this module, but any implementation works.
type Auditor interface {
	RecordCompletion(service, requestID string, queuedFor time.Duration)
}

// Config carries the tunables spec section 4.3 lists as overridable.
type Config struct {
	Endpoint          string
	HeartbeatInterval time.Duration
	HeartbeatLiveness int
	ServiceTimeout    time.Duration
	Reclaimer         wire.Reclaimer
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = wire.DefaultHeartbeatInterval
	}
	if c.HeartbeatLiveness <= 0 {
		c.HeartbeatLiveness = wire.DefaultHeartbeatLiveness
	}
	if c.ServiceTimeout <= 0 {
		c.ServiceTimeout = wire.DefaultServiceTimeout
	}
	return c
}

// Broker is the mediation engine. Every field below is read and written
// only from the goroutine running Run; nothing here needs a mutex.
type Broker struct {
	cfg       Config
	transport transport
	log       zerolog.Logger
	auditor   Auditor

	services map[string]*service
	workers  map[string]*worker

	snapshotCh chan snapshotRequest
}

// transport is the subset of *wire.Transport the engine needs. Tests
// satisfy it with an in-memory fake so the dispatch logic can be
// exercised without an actual ZeroMQ socket.
type transport interface {
	SendMultipart(frames [][]byte) error
	RecvMultipart() ([][]byte, error)
	Poll(timeout time.Duration) (bool, error)
	Close() error
}

// New constructs a broker bound to no transport yet; call Bind before Run.
func New(cfg Config, log zerolog.Logger) *Broker {
	return &Broker{
		cfg:        cfg.withDefaults(),
		log:        log,
		services:   make(map[string]*service),
		workers:    make(map[string]*worker),
		snapshotCh: make(chan snapshotRequest),
	}
}

// newWithTransport wires a pre-built transport directly, bypassing
// Bind. Used by tests to inject an in-memory fake.
func newWithTransport(cfg Config, log zerolog.Logger, t transport) *Broker {
	b := New(cfg, log)
	b.transport = t
	return b
}

// SetAuditor wires an optional completion recorder.
func (b *Broker) SetAuditor(a Auditor) { b.auditor = a }

// Bind opens the ROUTER socket on the configured endpoint.
func (b *Broker) Bind() error {
	t, err := wire.NewRouter()
	if err != nil {
		return err
	}
	if err := t.Bind(b.cfg.Endpoint, b.cfg.Reclaimer); err != nil {
		t.Close()
		return err
	}
	b.transport = t
	b.log.Info().Str("endpoint", b.cfg.Endpoint).Msg("broker bound")
	return nil
}

// Close releases the broker's socket.
func (b *Broker) Close() error {
	if b.transport == nil {
		return nil
	}
	return b.transport.Close()
}

// pollInterval bounds how long each loop iteration blocks in Poll,
// which sets the worst-case latency for noticing a snapshot request or
// a due heartbeat tick.
const pollInterval = 200 * time.Millisecond

// Run is the mediation loop (mdbroker.py's mediate()). It blocks until
// ctx is cancelled or the transport fails. This goroutine is the sole
// owner of the transport — it interleaves polling/receiving with
// sending, since ZeroMQ sockets are not safe for concurrent use from
// more than one goroutine — and the sole owner of every broker data
// structure below, so none of them need a mutex.
func (b *Broker) Run(ctx context.Context) error {
	if b.transport == nil {
		return fmt.Errorf("broker: Bind must be called before Run")
	}

	nextHeartbeat := time.Now().Add(b.cfg.HeartbeatInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-b.snapshotCh:
			req.reply <- b.buildSnapshot()
		default:
		}

		ready, err := b.transport.Poll(pollInterval)
		if err != nil {
			return err
		}
		if ready {
			frames, err := b.transport.RecvMultipart()
			if err != nil {
				return err
			}
			b.handleFrames(frames)
		}

		if now := time.Now(); now.After(nextHeartbeat) {
			b.sendHeartbeats()
			b.purgeWorkers()
			b.checkServiceTimeouts()
			nextHeartbeat = now.Add(b.cfg.HeartbeatInterval)
		}
	}
}

// handleFrames dispatches an inbound ROUTER message to the client or
// worker handler based on its protocol header (mdbroker.py process()).
func (b *Broker) handleFrames(frames [][]byte) {
	if len(frames) < 3 {
		b.log.Warn().Int("frames", len(frames)).Msg("dropping malformed message")
		return
	}
	sender := string(frames[0])
	header := string(frames[2])
	rest := frames[3:]

	switch header {
	case wire.ClientHeader:
		b.processClient(sender, rest)
	case wire.WorkerHeader:
		b.processWorker(sender, rest)
	default:
		b.log.Warn().Str("header", header).Msg("dropping message with unknown protocol header")
	}
}

// processClient handles one client request (mdbroker.py process_client).
func (b *Broker) processClient(sender string, rest [][]byte) {
	env, err := wire.DecodeClientEnvelope(rest)
	if err != nil {
		b.log.Warn().Str("client", sender).Msg("dropping malformed client request")
		return
	}
	if env.Service == "" {
		return
	}
	if wire.IsReservedService(env.Service) {
		reply := b.serviceInternal(env.Service, env.Body)
		b.sendClientReply(sender, env.Service, env.RequestID, reply)
		return
	}
	svc := b.requireService(env.Service)
	svc.lastActive = time.Now()
	svc.requests = append(svc.requests, pendingRequest{
		clientID:  []byte(sender),
		requestID: env.RequestID,
		body:      env.Body,
		queuedAt:  time.Now(),
	})
	b.dispatch(svc)
}

// processWorker handles one worker-originated message (mdbroker.py
// process_worker).
func (b *Broker) processWorker(sender string, rest [][]byte) {
	if len(rest) < 1 {
		return
	}
	command := string(rest[0])
	body := rest[1:]

	workerReady := b.workers[sender] != nil
	w := b.requireWorker(sender)

	switch command {
	case wire.Ready:
		if workerReady {
			// Worker already known: a second READY is a protocol
			// violation (mdbroker.py deletes and disconnects it).
			b.deleteWorker(w, true)
			return
		}
		env, err := wire.DecodeWorkerEnvelope(wire.Ready, body)
		if err != nil || wire.IsReservedService(env.Service) || env.Service == "" {
			b.deleteWorker(w, true)
			return
		}
		svc := b.requireService(env.Service)
		w.service = svc
		svc.workers[w.address] = w
		b.workerWaiting(w)

	case wire.Reply:
		if !workerReady {
			b.deleteWorker(w, true)
			return
		}
		env, err := wire.DecodeWorkerEnvelope(wire.Reply, body)
		if err != nil {
			return
		}
		b.sendClientReply(string(env.ClientID), w.service.name, env.RequestID, env.Body)
		if b.auditor != nil {
			b.auditor.RecordCompletion(w.service.name, env.RequestID, 0)
		}
		b.workerWaiting(w)

	case wire.Heartbeat:
		if workerReady {
			w.expiry = time.Now().Add(b.heartbeatExpiry())
		} else {
			// A worker whose first message is HEARTBEAT skipped READY:
			// protocol violation, disconnect it (mdbroker.py process_worker).
			b.deleteWorker(w, true)
		}

	case wire.Disconnect:
		b.deleteWorker(w, false)

	default:
		b.log.Warn().Str("worker", sender).Str("command", fmt.Sprintf("%x", command)).Msg("invalid worker command")
		b.deleteWorker(w, true)
	}
}

// sendClientReply writes a reply back out the ROUTER socket to the
// client identified by clientID.
func (b *Broker) sendClientReply(clientID, service, requestID string, body [][]byte) {
	frames := [][]byte{[]byte(clientID), {}, []byte(wire.ClientHeader), []byte(service), []byte(requestID)}
	frames = append(frames, body...)
	if err := b.transport.SendMultipart(frames); err != nil {
		b.log.Error().Err(err).Str("client", clientID).Msg("send client reply failed")
	}
}

// serviceInternal answers the mmi.* meta-service (mdbroker.py
// service_internal): mmi.service reports whether a named service has any
// workers, anything else under mmi.* is unsupported.
func (b *Broker) serviceInternal(name string, body [][]byte) [][]byte {
	if name != "mmi.service" {
		return [][]byte{[]byte("501")}
	}
	if len(body) == 0 {
		return [][]byte{[]byte("404")}
	}
	queried := string(body[0])
	if svc, ok := b.services[queried]; ok && len(svc.workers) > 0 {
		return [][]byte{[]byte("200")}
	}
	return [][]byte{[]byte("404")}
}

// requireService returns the named service, creating it on first
// mention (mdbroker.py require_service).
func (b *Broker) requireService(name string) *service {
	if svc, ok := b.services[name]; ok {
		return svc
	}
	svc := newService(name)
	b.services[name] = svc
	return svc
}

// requireWorker returns the worker for a given raw routing address,
// creating and registering it on first contact (mdbroker.py
// require_worker).
func (b *Broker) requireWorker(address string) *worker {
	if w, ok := b.workers[address]; ok {
		return w
	}
	w := newWorker(address)
	w.expiry = time.Now().Add(b.heartbeatExpiry())
	b.workers[address] = w
	b.log.Debug().Str("worker", w.identity).Msg("registering new worker")
	return w
}

// workerWaiting marks a worker idle and eligible for dispatch
// (mdbroker.py worker_waiting). Designation happens here: the first
// worker to go idle for a workholic service becomes its designated
// worker, unless one is already designated.
func (b *Broker) workerWaiting(w *worker) {
	svc := w.service
	svc.lastActive = time.Now()
	svc.removeWaiting(w)
	svc.waiting = append(svc.waiting, w)
	w.expiry = time.Now().Add(b.heartbeatExpiry())

	if svc.workholic && svc.designated == nil {
		svc.designated = w
		w.designated = true
	}
	b.dispatch(svc)
}

// dispatch matches queued requests against idle workers (mdbroker.py
// dispatch). In workholic mode every request goes to the designated
// worker and nobody else; in free-for-all mode (wire.AppService) the
// oldest idle worker takes the oldest queued request, round-robin.
func (b *Broker) dispatch(svc *service) {
	for len(svc.requests) > 0 {
		var w *worker
		if svc.workholic {
			if svc.designated == nil || !isWaiting(svc, svc.designated) {
				return
			}
			w = svc.designated
		} else {
			if len(svc.waiting) == 0 {
				return
			}
			w = svc.waiting[0]
		}

		req := svc.requests[0]
		svc.requests = svc.requests[1:]
		svc.removeWaiting(w)
		b.sendToWorker(w, wire.Request, req.clientID, req.requestID, req.body)
	}
}

func isWaiting(svc *service, w *worker) bool {
	for _, c := range svc.waiting {
		if c == w {
			return true
		}
	}
	return false
}

// sendToWorker writes one command frame (and, for REQUEST, the client
// envelope) to a worker's ROUTER destination (mdbroker.py
// send_to_worker).
func (b *Broker) sendToWorker(w *worker, command string, clientID []byte, requestID string, body [][]byte) {
	frames := [][]byte{[]byte(w.address), {}, []byte(wire.WorkerHeader), []byte(command)}
	switch command {
	case wire.Request:
		env := wire.WorkerEnvelope{ClientID: clientID, RequestID: requestID, Body: body}
		frames = append(frames, env.EncodeRequest()...)
	case wire.Heartbeat:
		if w.designated {
			frames = append(frames, []byte(wire.DesignatedMarker))
		}
	}
	if err := b.transport.SendMultipart(frames); err != nil {
		b.log.Error().Err(err).Str("worker", w.identity).Msg("send to worker failed")
	}
}

// deleteWorker removes a worker from its service and the broker's
// registry, promoting a standby to designated if the departing worker
// held that role (mdbroker.py delete_worker, spec section 4.3 failover).
// If the service is left with no waiting workers, it is removed from
// the registry outright rather than lingering until the next GC sweep
// (mdbroker.py delete_worker's unconditional del self.services[...]).
func (b *Broker) deleteWorker(w *worker, disconnect bool) {
	if disconnect {
		b.sendToWorker(w, wire.Disconnect, nil, "", nil)
	}
	if w.service != nil {
		svc := w.service
		svc.lastActive = time.Now()
		svc.removeWaiting(w)
		delete(svc.workers, w.address)
		if svc.designated == w {
			svc.designated = nil
			b.promoteDesignate(svc)
		}
		if len(svc.waiting) == 0 {
			delete(b.services, svc.name)
		}
	}
	delete(b.workers, w.address)
}

// promoteDesignate hands designation to the next idle standby worker,
// if any (spec section 4.3 failover): the head of the waiting list.
func (b *Broker) promoteDesignate(svc *service) {
	if len(svc.waiting) == 0 {
		return
	}
	next := svc.waiting[0]
	svc.designated = next
	next.designated = true
	b.dispatch(svc)
}

// purgeWorkers drops workers whose heartbeat has expired (mdbroker.py
// purge_workers).
func (b *Broker) purgeWorkers() {
	now := time.Now()
	for _, w := range b.workers {
		if now.After(w.expiry) {
			b.log.Warn().Str("worker", w.identity).Msg("deleting expired worker")
			b.deleteWorker(w, false)
		}
	}
}

// sendHeartbeats pings every known worker (mdbroker.py send_heartbeats).
func (b *Broker) sendHeartbeats() {
	for _, w := range b.workers {
		b.sendToWorker(w, wire.Heartbeat, nil, "", nil)
	}
}

// checkServiceTimeouts garbage-collects services that have sat with no
// workers and no queued requests for longer than ServiceTimeout.
func (b *Broker) checkServiceTimeouts() {
	now := time.Now()
	for name, svc := range b.services {
		if name == "mmi.service" {
			continue
		}
		if len(svc.workers) == 0 && len(svc.requests) == 0 && now.Sub(svc.lastActive) > b.cfg.ServiceTimeout {
			delete(b.services, name)
			b.log.Debug().Str("service", name).Msg("garbage-collected idle service")
		}
	}
}

func (b *Broker) heartbeatExpiry() time.Duration {
	return b.cfg.HeartbeatInterval * time.Duration(b.cfg.HeartbeatLiveness)
}
