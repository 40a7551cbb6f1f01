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

// Package adminapi exposes broker introspection over plain HTTP,
// entirely separate from the MDP wire protocol it reports on (spec
// section 6's read-only admin surface).
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ServiceView is what a service looks like over HTTP. Kept separate
// from broker.ServiceSnapshot so this package doesn't need to import
// broker's internals beyond the adapter the caller supplies.
type ServiceView struct {
	Name             string `json:"name"`
	Workholic        bool   `json:"workholic"`
	Workers          int    `json:"workers"`
	Waiting          int    `json:"waiting"`
	QueuedRequests   int    `json:"queued_requests"`
	DesignatedWorker string `json:"designated_worker,omitempty"`
}

// StatsProvider is the narrow broker surface the admin API depends on,
// decoupled from the broker package's concrete snapshot type.
type StatsProvider func(ctx context.Context) (workers int, services []ServiceView, err error)

// Server serves the admin HTTP API.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
	stats      StatsProvider
}

// New builds a Server listening on addr. Call Run to start serving.
func New(addr string, log zerolog.Logger, stats StatsProvider) *Server {
	s := &Server{log: log, stats: stats}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	router.HandleFunc("/services/{name}", s.handleService).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	workers, services, err := s.stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workers":       workers,
		"service_count": len(services),
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	_, services, err := s.stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	_, services, err := s.stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	for _, svc := range services {
		if svc.Name == name {
			writeJSON(w, http.StatusOK, svc)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "service not found"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
