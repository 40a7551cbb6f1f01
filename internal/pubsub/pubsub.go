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

// Package pubsub is the optional fan-out sidecar (spec section 4.6),
// grounded in the original RpcPublisher/RpcSubscriber: a PUB socket fed
// by a bounded queue and a background sender goroutine, and a SUB
// socket polling for topic-filtered messages with a keep-alive
// tolerance on silence.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/wire"
)

// KeepAliveTolerance is how long a Subscriber waits without any message
// (on any subscribed topic) before it reports the link stalled.
const KeepAliveTolerance = 5 * time.Second

// Publisher is a suspendable fan-out broadcaster.
type Publisher struct {
	log       zerolog.Logger
	transport *wire.Transport

	mu     sync.Mutex
	active bool

	queue chan [][]byte
}

// NewPublisher binds a PUB socket at endpoint.
func NewPublisher(endpoint string, log zerolog.Logger) (*Publisher, error) {
	t, err := wire.NewPublisher()
	if err != nil {
		return nil, err
	}
	if err := t.Bind(endpoint, nil); err != nil {
		t.Close()
		return nil, err
	}
	return &Publisher{
		log:       log,
		transport: t,
		active:    true,
		queue:     make(chan [][]byte, 256),
	}, nil
}

// Publish enqueues a topic-prefixed message frame. Dropped silently if
// the publisher is suspended, and dropped with a warning log if the
// queue is full, matching the original's best-effort fan-out semantics.
func (p *Publisher) Publish(topic string, body [][]byte) {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if !active {
		return
	}
	frames := append([][]byte{[]byte(topic)}, body...)
	select {
	case p.queue <- frames:
	default:
		p.log.Warn().Str("topic", topic).Msg("publisher queue full, dropping message")
	}
}

// Suspend stops outbound delivery without closing the socket.
func (p *Publisher) Suspend() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

// Resume re-enables outbound delivery after Suspend.
func (p *Publisher) Resume() {
	p.mu.Lock()
	p.active = true
	p.mu.Unlock()
}

// Run drains the queue to the PUB socket until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frames := <-p.queue:
			if err := p.transport.SendMultipart(frames); err != nil {
				return fmt.Errorf("pubsub: publish failed: %w", err)
			}
		}
	}
}

// Close releases the PUB socket.
func (p *Publisher) Close() error {
	return p.transport.Close()
}

// OnMessage is invoked once per received message, with the topic
// already stripped off.
type OnMessage func(topic string, body [][]byte)

// Subscriber polls a SUB socket for topic-filtered messages.
type Subscriber struct {
	log       zerolog.Logger
	transport *wire.Transport
	onMessage OnMessage
}

// NewSubscriber connects a SUB socket to a publisher's endpoint and
// subscribes to topic (empty string subscribes to everything).
func NewSubscriber(endpoint, topic string, log zerolog.Logger, onMessage OnMessage) (*Subscriber, error) {
	t, err := wire.NewSubscriber()
	if err != nil {
		return nil, err
	}
	if err := t.Connect(endpoint); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.Subscribe(topic); err != nil {
		t.Close()
		return nil, err
	}
	return &Subscriber{log: log, transport: t, onMessage: onMessage}, nil
}

// Run polls for messages until ctx is cancelled, logging (but not
// failing) if KeepAliveTolerance elapses with no traffic.
func (s *Subscriber) Run(ctx context.Context) error {
	lastMessage := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ready, err := s.transport.Poll(500 * time.Millisecond)
		if err != nil {
			return fmt.Errorf("pubsub: poll failed: %w", err)
		}
		if !ready {
			if time.Since(lastMessage) > KeepAliveTolerance {
				s.log.Warn().Dur("silence", time.Since(lastMessage)).Msg("subscriber link stalled")
				lastMessage = time.Now()
			}
			continue
		}
		frames, err := s.transport.RecvMultipart()
		if err != nil {
			return fmt.Errorf("pubsub: recv failed: %w", err)
		}
		lastMessage = time.Now()
		if len(frames) < 1 {
			continue
		}
		s.onMessage(string(frames[0]), frames[1:])
	}
}

// Close releases the SUB socket.
func (s *Subscriber) Close() error {
	return s.transport.Close()
}
