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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func fixedStats(workers int, services []ServiceView) StatsProvider {
	return func(ctx context.Context) (int, []ServiceView, error) {
		return workers, services, nil
	}
}

func TestHealthzReturnsOK(t *testing.T) {
	s := New("127.0.0.1:0", zerolog.Nop(), fixedStats(0, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServiceNotFound(t *testing.T) {
	s := New("127.0.0.1:0", zerolog.Nop(), fixedStats(1, []ServiceView{{Name: "echo"}}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/services/missing", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServiceFound(t *testing.T) {
	s := New("127.0.0.1:0", zerolog.Nop(), fixedStats(1, []ServiceView{{Name: "echo", Workers: 2}}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/services/echo", nil)
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
