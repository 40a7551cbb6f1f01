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

// Package wire holds the fixed Majordomo-style protocol tags and the
// ZeroMQ transport that carries them. Nothing in this package interprets
// payload bytes; frames are passed through opaque.
package wire

import "time"

// Protocol header frames. These identify the role of the sender so the
// broker can dispatch a message to the client or worker handler without
// inspecting anything past frame 2.
const (
	ClientHeader = "MDPC01" // client protocol header
	WorkerHeader = "MDPW01" // worker protocol header
)

// Worker command bytes, both directions.
const (
	Ready      = "\x01" // worker -> broker: attach to service
	Request    = "\x02" // broker -> worker: deliver request
	Reply      = "\x03" // worker -> broker: deliver reply
	Heartbeat  = "\x04" // both directions: liveness tick
	Disconnect = "\x05" // both directions: teardown
)

// MMIPrefix marks the reserved meta-service namespace, answered by the
// broker itself rather than routed to a worker.
const MMIPrefix = "mmi."

// DesignatedMarker is appended as an extra heartbeat frame to tell a
// worker it is currently its service's designated worker.
const DesignatedMarker = "designated"

// Default timing constants (spec section 4.3). All are overridable.
const (
	DefaultHeartbeatLiveness = 5
	DefaultHeartbeatInterval = 1000 * time.Millisecond
	DefaultServiceTimeout    = 5000 * time.Millisecond
)

// DefaultHeartbeatExpiry is how long a worker may go without a heartbeat
// before the broker considers it dead.
func DefaultHeartbeatExpiry() time.Duration {
	return DefaultHeartbeatInterval * time.Duration(DefaultHeartbeatLiveness)
}

// IsReservedService reports whether a service name falls under the MMI
// meta-namespace and therefore cannot be registered by a worker.
func IsReservedService(name string) bool {
	return len(name) >= len(MMIPrefix) && name[:len(MMIPrefix)] == MMIPrefix
}

// AppService is the one service name that never runs in workholic mode.
const AppService = "APP"

// IsWorkholic reports whether a service should pin all work to one
// designated worker. Every service is workholic except APP.
func IsWorkholic(service string) bool {
	return service != AppService
}
