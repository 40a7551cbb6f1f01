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

// Package reclaim gives a broker one chance to free a port a dead prior
// instance left bound (spec section 4.1's Bind retry). The original
// zhelpers.py did this with Windows' netstat/taskkill; this is the
// Linux equivalent built on fuser.
package reclaim

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PortReclaimer kills whatever process currently holds a TCP port,
// satisfying wire.Reclaimer.
type PortReclaimer struct {
	log zerolog.Logger
}

// New returns a PortReclaimer that logs what it does.
func New(log zerolog.Logger) *PortReclaimer {
	return &PortReclaimer{log: log}
}

// TryReclaim extracts the TCP port from endpoint and asks fuser to kill
// whatever holds it, returning true if it believes the port is now
// free. Non-TCP endpoints (ipc://, inproc://) cannot be reclaimed this
// way and always return false.
func (r *PortReclaimer) TryReclaim(endpoint string) bool {
	port, ok := tcpPort(endpoint)
	if !ok {
		return false
	}

	r.log.Warn().Int("port", port).Msg("endpoint already bound, attempting to reclaim it")
	cmd := exec.Command("fuser", "-k", fmt.Sprintf("%d/tcp", port))
	if err := cmd.Run(); err != nil {
		r.log.Warn().Err(err).Int("port", port).Msg("fuser could not free port")
		return false
	}

	// Give the kernel a moment to release the socket before the caller
	// retries its bind.
	time.Sleep(200 * time.Millisecond)
	return true
}

// tcpPort pulls the trailing :<port> off a tcp:// endpoint.
func tcpPort(endpoint string) (int, bool) {
	if !strings.HasPrefix(endpoint, "tcp://") {
		return 0, false
	}
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return 0, false
	}
	port, err := strconv.Atoi(endpoint[idx+1:])
	if err != nil {
		return 0, false
	}
	return port, true
}
