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

// Package auditlog persists a record of every completed request/reply
// cycle to a local SQLite database, off the broker's hot path: the
// broker only ever posts to a buffered channel, and a single drain
// goroutine owns the database connection.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	request_id TEXT NOT NULL,
	queued_for_ms INTEGER NOT NULL,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

type completion struct {
	service   string
	requestID string
	queuedFor time.Duration
}

// Writer is a broker.Auditor backed by SQLite.
type Writer struct {
	log   zerolog.Logger
	db    *sql.DB
	queue chan completion
}

// Open creates (or reopens) the audit database at path and ensures its
// schema exists.
func Open(path string, log zerolog.Logger) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: create schema: %w", err)
	}
	return &Writer{log: log, db: db, queue: make(chan completion, 1024)}, nil
}

// RecordCompletion satisfies broker.Auditor. It never blocks the
// broker's event loop: a full queue drops the record with a warning.
func (w *Writer) RecordCompletion(service, requestID string, queuedFor time.Duration) {
	select {
	case w.queue <- completion{service: service, requestID: requestID, queuedFor: queuedFor}:
	default:
		w.log.Warn().Str("service", service).Str("request_id", requestID).Msg("audit queue full, dropping record")
	}
}

// Run drains the queue to SQLite until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) error {
	stmt, err := w.db.Prepare(`INSERT INTO completions (service, request_id, queued_for_ms) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("auditlog: prepare insert: %w", err)
	}
	defer stmt.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-w.queue:
			if _, err := stmt.ExecContext(ctx, c.service, c.requestID, c.queuedFor.Milliseconds()); err != nil {
				w.log.Error().Err(err).Msg("failed to write audit record")
			}
		}
	}
}

// Close releases the database connection.
func (w *Writer) Close() error {
	return w.db.Close()
}

// CountByService is a small read helper the admin API or tests can use
// to check how many completions were recorded for a service.
func (w *Writer) CountByService(ctx context.Context, service string) (int, error) {
	var count int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completions WHERE service = ?`, service).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("auditlog: count query: %w", err)
	}
	return count, nil
}
