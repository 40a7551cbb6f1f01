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

// Package envelope pushes method-name dispatch out of the broker and
// onto the application layer (Design Note 1): the broker only ever
// routes by service name and treats everything past that as an opaque
// body. This package defines the (method, args) shape worker handlers
// and client callers agree on, grounded in the original RpcWorker's
// registered-function table and RpcClient's dynamic method dispatch.
package envelope

import "fmt"

// Envelope is one (method, args) call, carried as the opaque body of a
// broker request or reply.
type Envelope struct {
	Method string
	Args   [][]byte
}

// Encode lays the envelope out as wire frames: method name first, then
// each argument as its own frame.
func Encode(method string, args [][]byte) [][]byte {
	frames := make([][]byte, 0, 1+len(args))
	frames = append(frames, []byte(method))
	frames = append(frames, args...)
	return frames
}

// Decode splits a request body back into its method name and arguments.
func Decode(body [][]byte) (Envelope, error) {
	if len(body) < 1 {
		return Envelope{}, fmt.Errorf("envelope: empty body has no method name")
	}
	return Envelope{Method: string(body[0]), Args: body[1:]}, nil
}

// Func is one registered method implementation.
type Func func(args [][]byte) ([][]byte, error)

// Registry maps method names to implementations for one service,
// mirroring the original RpcWorker's register()/__functions table.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty method table.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces the implementation for method.
func (r *Registry) Register(method string, fn Func) {
	r.funcs[method] = fn
}

// Dispatch decodes body as an Envelope and calls its registered method,
// returning a two-frame reply ("ERR", then an "unknown method" message)
// if none matches rather than an error, since an unknown method is a
// valid (if unsuccessful) RPC outcome, not a transport fault.
func (r *Registry) Dispatch(body [][]byte) [][]byte {
	env, err := Decode(body)
	if err != nil {
		return [][]byte{[]byte("ERR"), []byte(err.Error())}
	}
	fn, ok := r.funcs[env.Method]
	if !ok {
		return [][]byte{[]byte("ERR"), []byte(fmt.Sprintf("unknown method %q", env.Method))}
	}
	reply, err := fn(env.Args)
	if err != nil {
		return [][]byte{[]byte("ERR"), []byte(err.Error())}
	}
	return append([][]byte{[]byte("OK")}, reply...)
}
