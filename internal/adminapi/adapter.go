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

package adminapi

import (
	"context"

	"hermes/internal/broker"
)

// FromBroker adapts a live broker into the StatsProvider the HTTP
// handlers call on every request.
func FromBroker(b *broker.Broker) StatsProvider {
	return func(ctx context.Context) (int, []ServiceView, error) {
		snap, err := b.Snapshot(ctx)
		if err != nil {
			return 0, nil, err
		}
		views := make([]ServiceView, 0, len(snap.Services))
		for _, svc := range snap.Services {
			views = append(views, ServiceView{
				Name:             svc.Name,
				Workholic:        svc.Workholic,
				Workers:          svc.WorkerCount,
				Waiting:          svc.WaitingCount,
				QueuedRequests:   svc.QueuedRequests,
				DesignatedWorker: svc.DesignatedWorker,
			})
		}
		return snap.Workers, views, nil
	}
}
