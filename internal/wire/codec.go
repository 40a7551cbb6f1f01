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

import "errors"

// ErrMalformedFrames is returned when a message arrives with fewer
// frames than the protocol header it claims requires.
var ErrMalformedFrames = errors.New("wire: malformed frame count")

// ClientEnvelope is the frame layout the broker sees on its ROUTER
// socket for a client request:
//
//	frame 0: empty delimiter
//	frame 1: "MDPC01"
//	frame 2: service name
//	frame 3: request id
//	frame 4+: opaque body, untouched by the broker
type ClientEnvelope struct {
	Service   string
	RequestID string
	Body      [][]byte
}

// DecodeClientEnvelope splits the frames following the sender identity,
// empty delimiter, and "MDPC01" header: frames[0] is the service name,
// frames[1] the request id, frames[2:] the opaque body.
func DecodeClientEnvelope(frames [][]byte) (ClientEnvelope, error) {
	if len(frames) < 2 {
		return ClientEnvelope{}, ErrMalformedFrames
	}
	return ClientEnvelope{
		Service:   string(frames[0]),
		RequestID: string(frames[1]),
		Body:      frames[2:],
	}, nil
}

// Encode lays the envelope back out as frames, ready to prepend with the
// empty delimiter and protocol header by the caller.
func (e ClientEnvelope) Encode() [][]byte {
	out := make([][]byte, 0, 2+len(e.Body))
	out = append(out, []byte(e.Service), []byte(e.RequestID))
	out = append(out, e.Body...)
	return out
}

// WorkerEnvelope is the frame layout for broker<->worker traffic
// following the empty delimiter (frame 0), "MDPW01" header (frame 1) and
// command (frame 2):
//
//	command == Request:  frame 3: client return address, frame 4: empty,
//	                      frame 5: request id, frame 6+: opaque body
//	command == Reply:    frame 3: client return address, frame 4: empty,
//	                      frame 5: request id, frame 6+: opaque body
//	command == Ready:    frame 3: service name
//	command == Heartbeat/Disconnect: no further frames required
type WorkerEnvelope struct {
	Command   string
	Service   string
	ClientID  []byte
	RequestID string
	Body      [][]byte
}

// DecodeWorkerEnvelope parses the frames following the sender identity
// frame, empty delimiter, and "MDPW01" header.
func DecodeWorkerEnvelope(command string, frames [][]byte) (WorkerEnvelope, error) {
	switch command {
	case Ready:
		if len(frames) < 1 {
			return WorkerEnvelope{}, ErrMalformedFrames
		}
		return WorkerEnvelope{Command: Ready, Service: string(frames[0])}, nil
	case Request, Reply:
		if len(frames) < 3 {
			return WorkerEnvelope{}, ErrMalformedFrames
		}
		return WorkerEnvelope{
			Command:   command,
			ClientID:  frames[0],
			RequestID: string(frames[2]),
			Body:      frames[3:],
		}, nil
	default:
		return WorkerEnvelope{Command: command}, nil
	}
}

// EncodeRequest lays out the frames the broker sends to deliver a
// request to a worker, following the empty delimiter and "MDPW01"+Request
// header the caller prepends.
func (e WorkerEnvelope) EncodeRequest() [][]byte {
	out := make([][]byte, 0, 3+len(e.Body))
	out = append(out, e.ClientID, []byte{}, []byte(e.RequestID))
	out = append(out, e.Body...)
	return out
}
