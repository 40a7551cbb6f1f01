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

package envelope

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := Encode("add", [][]byte{[]byte("2"), []byte("3")})
	env, err := Decode(frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Method != "add" {
		t.Errorf("expected method %q, got %q", "add", env.Method)
	}
	if len(env.Args) != 2 || string(env.Args[0]) != "2" || string(env.Args[1]) != "3" {
		t.Errorf("unexpected args: %v", env.Args)
	}
}

func TestDecodeEmptyBodyErrors(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected error decoding empty body")
	}
}

func TestDispatchCallsRegisteredMethod(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(args [][]byte) ([][]byte, error) {
		return args, nil
	})

	reply := r.Dispatch(Encode("echo", [][]byte{[]byte("hi")}))
	if string(reply[0]) != "OK" || string(reply[1]) != "hi" {
		t.Errorf("unexpected reply: %v", reply)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := NewRegistry()
	reply := r.Dispatch(Encode("missing", nil))
	if string(reply[0]) != "ERR" {
		t.Errorf("expected ERR reply for unknown method, got %v", reply)
	}
}
