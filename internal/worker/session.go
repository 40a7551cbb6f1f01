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

// Package worker implements the worker-side session state machine: one
// background goroutine owning a single DEALER socket, driving the
// Disconnected -> Connecting -> Idle <-> Busy cycle spec section 4.4
// describes. The only state shared outside that goroutine besides the
// atomic lifecycle state is the designated flag, guarded by a single
// small mutex; the handler is fixed at construction and not locked,
// matching the concurrency model's "session goroutine plus a narrow
// lock" shape.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/wire"
)

// State names the worker session's position in its lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// HandlerFunc answers one request body with a reply body. It is called
// synchronously from the session goroutine, so a slow handler delays
// this worker's heartbeats — callers wanting concurrency should hand
// off internally and block until done.
type HandlerFunc func(body [][]byte) [][]byte

// Config carries the worker session's tunables.
type Config struct {
	BrokerEndpoint    string
	Service           string
	Identity          string
	HeartbeatInterval time.Duration
	HeartbeatLiveness int
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = wire.DefaultHeartbeatInterval
	}
	if c.HeartbeatLiveness <= 0 {
		c.HeartbeatLiveness = wire.DefaultHeartbeatLiveness
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = 100 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	return c
}

// Session is one worker's connection to the broker.
type Session struct {
	cfg     Config
	log     zerolog.Logger
	handler HandlerFunc

	state atomic.Int32

	mu         sync.Mutex
	designated bool

	transport *wire.Transport
}

// New constructs a worker session. handler is invoked for every
// delivered request once the session reaches Run.
func New(cfg Config, log zerolog.Logger, handler HandlerFunc) *Session {
	s := &Session{cfg: cfg.withDefaults(), log: log, handler: handler}
	s.state.Store(int32(StateDisconnected))
	return s
}

// State reports the session's current lifecycle position.
func (s *Session) State() State { return State(s.state.Load()) }

// IsDesignated reports whether the broker last told this worker it is
// the designated worker for its service.
func (s *Session) IsDesignated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.designated
}

// Run drives the session until ctx is cancelled, reconnecting with
// exponential backoff and jitter on transport failure (grounded in the
// teacher's reconnectToBroker behavior).
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectInitial
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.state.Store(int32(StateConnecting))
		if err := s.connect(); err != nil {
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("worker connect failed, retrying")
			if !sleepWithJitter(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, s.cfg.ReconnectMax)
			continue
		}
		backoff = s.cfg.ReconnectInitial

		err := s.serve(ctx)
		s.teardown(ctx.Err() != nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Msg("worker session ended, reconnecting")
		if !sleepWithJitter(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, s.cfg.ReconnectMax)
	}
}

func (s *Session) connect() error {
	t, err := wire.NewDealer(s.cfg.Identity)
	if err != nil {
		return err
	}
	if err := t.Connect(s.cfg.BrokerEndpoint); err != nil {
		t.Close()
		return err
	}
	s.transport = t
	return s.sendReady()
}

// teardown closes the session's transport. When graceful is true (the
// caller stopped via ctx cancellation rather than a transport error) it
// first sends W_DISCONNECT, per spec section 4.4's "on stop: send
// W_DISCONNECT, close the socket" (destiny-lucas/internal/hermes/worker.go's
// Stop/sendDisconnect).
func (s *Session) teardown(graceful bool) {
	s.mu.Lock()
	s.designated = false
	s.mu.Unlock()
	if s.transport != nil {
		if graceful {
			if err := s.sendDisconnect(); err != nil {
				s.log.Warn().Err(err).Msg("failed to send disconnect on shutdown")
			}
		}
		s.transport.Close()
		s.transport = nil
	}
	s.state.Store(int32(StateDisconnected))
}

func (s *Session) sendDisconnect() error {
	return s.transport.SendMultipart([][]byte{
		{}, []byte(wire.WorkerHeader), []byte(wire.Disconnect),
	})
}

func (s *Session) sendReady() error {
	return s.transport.SendMultipart([][]byte{
		{}, []byte(wire.WorkerHeader), []byte(wire.Ready), []byte(s.cfg.Service),
	})
}

// servePollInterval bounds each iteration's blocking poll, which sets
// the worst-case latency for noticing ctx cancellation or a due
// heartbeat tick.
const servePollInterval = 200 * time.Millisecond

// serve polls for requests and heartbeats until the transport errors.
// This goroutine is the sole owner of the transport for the lifetime of
// one connection — ZeroMQ sockets are not safe for concurrent use from
// more than one goroutine, so polling/receiving and sending both happen
// here rather than being split across a reader goroutine and this one.
func (s *Session) serve(ctx context.Context) error {
	s.state.Store(int32(StateIdle))
	expiry := time.Now().Add(heartbeatExpiry(s.cfg))
	nextHeartbeat := time.Now().Add(s.cfg.HeartbeatInterval)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		now := time.Now()
		if now.After(expiry) {
			return fmt.Errorf("worker: broker heartbeat expired")
		}

		ready, err := s.transport.Poll(servePollInterval)
		if err != nil {
			return err
		}
		if ready {
			frames, err := s.transport.RecvMultipart()
			if err != nil {
				return err
			}
			expiry = time.Now().Add(heartbeatExpiry(s.cfg))
			if err := s.handleFrames(frames); err != nil {
				return err
			}
		}

		if now = time.Now(); now.After(nextHeartbeat) {
			if err := s.sendHeartbeat(); err != nil {
				return err
			}
			nextHeartbeat = now.Add(s.cfg.HeartbeatInterval)
		}
	}
}

func (s *Session) sendHeartbeat() error {
	return s.transport.SendMultipart([][]byte{
		{}, []byte(wire.WorkerHeader), []byte(wire.Heartbeat),
	})
}

// handleFrames dispatches one broker->worker message following the
// empty delimiter and "MDPW01" header.
func (s *Session) handleFrames(frames [][]byte) error {
	if len(frames) < 3 {
		return nil
	}
	command := string(frames[2])
	rest := frames[3:]

	switch command {
	case wire.Request:
		env, err := wire.DecodeWorkerEnvelope(wire.Request, rest)
		if err != nil {
			return nil
		}
		return s.handleRequest(env)
	case wire.Heartbeat:
		s.mu.Lock()
		s.designated = len(rest) > 0 && string(rest[0]) == wire.DesignatedMarker
		s.mu.Unlock()
	case wire.Disconnect:
		return fmt.Errorf("worker: broker requested disconnect")
	}
	return nil
}

func (s *Session) handleRequest(env wire.WorkerEnvelope) error {
	s.state.Store(int32(StateBusy))
	defer s.state.Store(int32(StateIdle))

	reply := s.handler(env.Body)
	out := wire.WorkerEnvelope{ClientID: env.ClientID, RequestID: env.RequestID, Body: reply}
	frames := [][]byte{{}, []byte(wire.WorkerHeader), []byte(wire.Reply)}
	frames = append(frames, out.EncodeRequest()...)
	return s.transport.SendMultipart(frames)
}

func heartbeatExpiry(cfg Config) time.Duration {
	return cfg.HeartbeatInterval * time.Duration(cfg.HeartbeatLiveness)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// sleepWithJitter waits roughly d, jittered by up to 20%, or returns
// false if ctx is cancelled first.
func sleepWithJitter(ctx context.Context, d time.Duration) bool {
	var jitter time.Duration
	if span := int64(d) / 5; span > 0 {
		jitter = time.Duration(rand.Int63n(span))
	}
	timer := time.NewTimer(d + jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
