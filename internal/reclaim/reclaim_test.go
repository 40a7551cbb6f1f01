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

package reclaim

import "testing"

func TestTCPPort(t *testing.T) {
	cases := []struct {
		endpoint string
		want     int
		ok       bool
	}{
		{"tcp://*:5555", 5555, true},
		{"tcp://127.0.0.1:6000", 6000, true},
		{"ipc:///tmp/broker.sock", 0, false},
		{"inproc://broker", 0, false},
		{"tcp://*:notaport", 0, false},
	}
	for _, c := range cases {
		port, ok := tcpPort(c.endpoint)
		if ok != c.ok || port != c.want {
			t.Errorf("tcpPort(%q) = (%d, %v), want (%d, %v)", c.endpoint, port, ok, c.want, c.ok)
		}
	}
}
