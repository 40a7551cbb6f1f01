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

package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// Reclaimer attempts to free an endpoint that is already bound by another
// process. It is an optional collaborator the broker knows nothing about
// beyond this interface (Design Note 5).
type Reclaimer interface {
	TryReclaim(endpoint string) bool
}

// Transport is the multipart message send/receive surface every broker,
// worker, client, and pub/sub session is built on. A single Transport
// wraps exactly one ZeroMQ socket and is not safe for concurrent use by
// more than one goroutine at a time (each session owns its transport on
// its own background task, per the concurrency model).
type Transport struct {
	socket *zmq.Socket
	poller *zmq.Poller
}

// NewRouter creates the broker-side transport: one ROUTER socket bound to
// one or more endpoints, addressable by the identity ZeroMQ assigns each
// connecting peer.
func NewRouter() (*Transport, error) {
	return newTransport(zmq.ROUTER)
}

// NewDealer creates a worker- or client-side transport. An empty identity
// lets ZeroMQ assign one (the async client does this); a non-empty
// identity pins the socket's routing address (a worker session does this
// when its Config.Identity is set).
func NewDealer(identity string) (*Transport, error) {
	t, err := newTransport(zmq.DEALER)
	if err != nil {
		return nil, err
	}
	if identity != "" {
		if err := t.socket.SetIdentity(identity); err != nil {
			t.Close()
			return nil, fmt.Errorf("set identity: %w", err)
		}
	}
	return t, nil
}

// NewPublisher creates a PUB socket for the pub/sub sidecar's publisher.
func NewPublisher() (*Transport, error) {
	return newTransport(zmq.PUB)
}

// NewSubscriber creates a SUB socket for the pub/sub sidecar's subscriber.
func NewSubscriber() (*Transport, error) {
	return newTransport(zmq.SUB)
}

func newTransport(socketType zmq.Type) (*Transport, error) {
	socket, err := zmq.NewSocket(socketType)
	if err != nil {
		return nil, fmt.Errorf("create socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("set linger: %w", err)
	}
	poller := zmq.NewPoller()
	poller.Add(socket, zmq.POLLIN)
	return &Transport{socket: socket, poller: poller}, nil
}

// Bind attaches a ROUTER (or PUB) socket to an endpoint. If the bind
// fails and a Reclaimer is supplied, Bind gives it one chance to free the
// port and then retries once. The reclaimer is called for any bind
// error; the error is not checked for "address already in use" first.
func (t *Transport) Bind(endpoint string, reclaim Reclaimer) error {
	endpoint = NormalizeEndpoint(endpoint)
	if err := t.socket.Bind(endpoint); err != nil {
		if reclaim != nil && reclaim.TryReclaim(endpoint) {
			return t.socket.Bind(endpoint)
		}
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return nil
}

// Connect attaches a DEALER/SUB socket to a broker/publisher endpoint.
func (t *Transport) Connect(endpoint string) error {
	endpoint = NormalizeEndpoint(endpoint)
	if err := t.socket.Connect(endpoint); err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return nil
}

// Subscribe applies a topic filter; only meaningful on a SUB socket.
func (t *Transport) Subscribe(topic string) error {
	return t.socket.SetSubscribe(topic)
}

// SendMultipart sends frames as one atomic multipart ZeroMQ message.
func (t *Transport) SendMultipart(frames [][]byte) error {
	parts := make([]interface{}, len(frames))
	for i, f := range frames {
		parts[i] = f
	}
	_, err := t.socket.SendMessage(parts...)
	if err != nil {
		return fmt.Errorf("send multipart: %w", err)
	}
	return nil
}

// RecvMultipart blocks until a full multipart message is available and
// returns its frames.
func (t *Transport) RecvMultipart() ([][]byte, error) {
	frames, err := t.socket.RecvMessageBytes(0)
	if err != nil {
		return nil, fmt.Errorf("recv multipart: %w", err)
	}
	return frames, nil
}

// Poll waits up to timeout for the socket to become readable, returning
// true if a message is ready.
func (t *Transport) Poll(timeout time.Duration) (bool, error) {
	polled, err := t.poller.Poll(timeout)
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	return len(polled) > 0, nil
}

// Close releases the underlying socket. Safe to call more than once.
func (t *Transport) Close() error {
	if t.socket == nil {
		return nil
	}
	err := t.socket.Close()
	t.socket = nil
	return err
}

// NormalizeEndpoint resolves a bare port number to a loopback TCP
// endpoint, and a bare "*:<port>" or full URL is passed through
// unchanged (spec section 6).
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if _, err := strconv.Atoi(endpoint); err == nil {
		return fmt.Sprintf("tcp://localhost:%s", endpoint)
	}
	return endpoint
}
