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

// Package client implements the asynchronous client session: requests
// are queued from any goroutine, carried to the broker by one
// background send/receive loop, and matched back to their caller by
// request id (grounded in mdcliapi2.py's MajorDomoClient, generalized
// from synchronous send/recv to a callback-driven async model per spec
// section 4.5).
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"hermes/internal/wire"
)

// Callback receives the reply body for one request, or a non-nil err if
// the request timed out or the session closed before a reply arrived.
type Callback func(body [][]byte, err error)

type pending struct {
	callback Callback
	deadline time.Time
}

// newRequestID returns a compact hex request id — google/uuid's dashed
// canonical form stripped of separators, per spec.md's "random, compact
// hex" requirement.
func newRequestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Config carries the async client's tunables.
type Config struct {
	BrokerEndpoint string
	RequestTimeout time.Duration
	DedupCacheSize int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.DedupCacheSize <= 0 {
		c.DedupCacheSize = 4096
	}
	return c
}

// Client is one async client session, backed by a single DEALER socket.
// The Run goroutine is the socket's sole owner — ZeroMQ sockets are not
// safe for concurrent use from more than one goroutine — so
// RequestAsync, which may be called from any goroutine, hands its
// frames to Run over outbox rather than writing the socket itself.
type Client struct {
	cfg Config
	log zerolog.Logger

	transport *wire.Transport
	outbox    chan [][]byte

	mu      sync.Mutex
	pending map[string]pending

	// seen deduplicates replies the broker or a retried worker might
	// deliver twice for the same request id.
	seen *lru.Cache[string, struct{}]
}

// New constructs a client session. Connect must be called before
// Request/RequestAsync.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	seen, err := lru.New[string, struct{}](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("client: build dedup cache: %w", err)
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		outbox:  make(chan [][]byte, 256),
		pending: make(map[string]pending),
		seen:    seen,
	}, nil
}

// Connect opens the DEALER socket to the broker. The identity is left
// to ZeroMQ since replies are correlated by request id, not routing
// address (spec section 4.5).
func (c *Client) Connect() error {
	t, err := wire.NewDealer("")
	if err != nil {
		return err
	}
	if err := t.Connect(c.cfg.BrokerEndpoint); err != nil {
		t.Close()
		return err
	}
	c.transport = t
	return nil
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

// RequestAsync queues a request and returns immediately with its
// request id; callback fires from the Run goroutine once a reply
// arrives or the request times out. The actual socket write happens on
// the Run goroutine, reached via outbox, since RequestAsync may be
// called concurrently from many goroutines.
func (c *Client) RequestAsync(service string, body [][]byte, callback Callback) (string, error) {
	requestID := newRequestID()
	frames := [][]byte{{}, []byte(wire.ClientHeader), []byte(service), []byte(requestID)}
	frames = append(frames, body...)

	c.mu.Lock()
	c.pending[requestID] = pending{callback: callback, deadline: time.Now().Add(c.cfg.RequestTimeout)}
	c.mu.Unlock()

	select {
	case c.outbox <- frames:
		return requestID, nil
	default:
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return "", fmt.Errorf("client: outbox full")
	}
}

// Request is a synchronous convenience wrapper around RequestAsync for
// callers that just want to block for the reply.
func (c *Client) Request(ctx context.Context, service string, body [][]byte) ([][]byte, error) {
	type result struct {
		body [][]byte
		err  error
	}
	done := make(chan result, 1)
	if _, err := c.RequestAsync(service, body, func(body [][]byte, err error) {
		done <- result{body, err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runPollInterval bounds each iteration's blocking poll.
const runPollInterval = 200 * time.Millisecond

// Run drives the send/receive loop and the pending-request timeout
// sweep until ctx is cancelled. It is the sole owner of the transport
// and the only goroutine that reads the pending map's callbacks or
// touches the dedup cache.
func (c *Client) Run(ctx context.Context) error {
	sweepNext := time.Now().Add(time.Second)

	for {
		if ctx.Err() != nil {
			c.failAllPending(ctx.Err())
			return ctx.Err()
		}

	drainOutbox:
		for {
			select {
			case frames := <-c.outbox:
				if err := c.transport.SendMultipart(frames); err != nil {
					c.failAllPending(err)
					return fmt.Errorf("client: send request: %w", err)
				}
			default:
				break drainOutbox
			}
		}

		ready, err := c.transport.Poll(runPollInterval)
		if err != nil {
			c.failAllPending(err)
			return err
		}
		if ready {
			frames, err := c.transport.RecvMultipart()
			if err != nil {
				c.failAllPending(err)
				return err
			}
			c.handleReply(frames)
		}

		if now := time.Now(); now.After(sweepNext) {
			c.sweepExpired()
			sweepNext = now.Add(time.Second)
		}
	}
}

// handleReply matches an inbound reply to its pending request by id
// (mdcliapi2.py recv(), generalized to dispatch by callback rather than
// returning from a blocking call).
func (c *Client) handleReply(frames [][]byte) {
	if len(frames) < 4 {
		return
	}
	service := string(frames[2])
	requestID := string(frames[3])
	body := frames[4:]

	if _, dup := c.seen.Get(requestID); dup {
		c.log.Debug().Str("request_id", requestID).Msg("dropping duplicate reply")
		return
	}

	c.mu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug().Str("request_id", requestID).Str("service", service).Msg("reply for unknown or expired request")
		return
	}
	c.seen.Add(requestID, struct{}{})
	p.callback(body, nil)
}

func (c *Client) sweepExpired() {
	now := time.Now()
	var expired []pending
	c.mu.Lock()
	for id, p := range c.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		p.callback(nil, fmt.Errorf("client: request timed out"))
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	pendings := c.pending
	c.pending = make(map[string]pending)
	c.mu.Unlock()

	for _, p := range pendings {
		p.callback(nil, err)
	}
}
