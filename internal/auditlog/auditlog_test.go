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

package auditlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecordCompletionAndDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	w, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.RecordCompletion("echo", "req-1", 15*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count, err := w.CountByService(context.Background(), "echo")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count == 1 {
			cancel()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatalf("expected completion record to be written within deadline")
}

func TestFullQueueDropsRatherThanBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	w, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()
	w.queue = make(chan completion) // unbuffered, nobody draining

	done := make(chan struct{})
	go func() {
		w.RecordCompletion("echo", "req-1", 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RecordCompletion blocked instead of dropping on a full queue")
	}
}
