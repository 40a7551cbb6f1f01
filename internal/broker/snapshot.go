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

package broker

import (
	"context"
	"time"
)

// ServiceSnapshot is a read-only, point-in-time view of one service,
// safe to hand to another goroutine (the admin HTTP API or the monitor
// TUI) without touching live broker state.
type ServiceSnapshot struct {
	Name             string
	Workholic        bool
	WorkerCount      int
	WaitingCount     int
	QueuedRequests   int
	DesignatedWorker string
}

// Snapshot is the full broker state at one instant.
type Snapshot struct {
	Services []ServiceSnapshot
	Workers  int
	TakenAt  time.Time
}

type snapshotRequest struct {
	reply chan Snapshot
}

// Snapshot asks the engine goroutine for a consistent point-in-time
// view of broker state. Safe to call from any goroutine; it blocks
// until the engine services the request on its next loop iteration.
func (b *Broker) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	select {
	case b.snapshotCh <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (b *Broker) buildSnapshot() Snapshot {
	snap := Snapshot{TakenAt: time.Now(), Workers: len(b.workers)}
	for name, svc := range b.services {
		designated := ""
		if svc.designated != nil {
			designated = svc.designated.identity
		}
		snap.Services = append(snap.Services, ServiceSnapshot{
			Name:             name,
			Workholic:        svc.workholic,
			WorkerCount:      len(svc.workers),
			WaitingCount:     len(svc.waiting),
			QueuedRequests:   len(svc.requests),
			DesignatedWorker: designated,
		})
	}
	return snap
}
