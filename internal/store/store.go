// Copyright 2025 SireJeff
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the indexed content store: a transactional
// on-disk store of items, generated-file records, file timestamps,
// embeddings and the template manifest, backed by SQLite through the
// pure-Go modernc.org/sqlite driver so no vendored C library is needed.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/logging"
	"github.com/SireJeff/k0ntext/internal/metrics"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the current ICS schema version.
const SchemaVersion = 1

// DefaultBusyTimeout is the default wait before a contended write fails
// with Busy.
const DefaultBusyTimeout = 5 * time.Second

// DefaultEmbeddingDim is used when a caller opens a store without
// specifying a dimension. It is only a default: the dimension actually in
// effect for an existing store is whatever was configured at first write.
const DefaultEmbeddingDim = 768

// Options configures Open.
type Options struct {
	// EmbeddingDim is the fixed dimension D new embeddings must match.
	// Ignored if the store already has a configured dimension.
	EmbeddingDim int
	// BusyTimeout overrides DefaultBusyTimeout.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// Store is a single-writer, concurrently-readable handle onto a
// `.k0ntext.db` file.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu           sync.RWMutex // serializes embeddingDim reads/writes in process
	embeddingDim int
}

// Open opens (creating if absent) the ICS at dbPath, running any pending
// schema migrations inside their own transactions.
func Open(dbPath string, opts Options) (*Store, error) {
	logger := logging.OrDefault(opts.Logger)

	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errkind.Wrap(errkind.IoFailure, "create store directory", err)
		}
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	escaped := strings.ReplaceAll(dbPath, " ", "%20")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", escaped, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "open database", err)
	}
	// The ICS is single-writer; one connection avoids SQLITE_BUSY storms
	// between pooled connections in the same process and keeps the
	// semantics of "a single process writing at a time" honest
	// even under concurrent readers issued from goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.IoFailure, "enable WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.IoFailure, "enable foreign keys", err)
	}

	s := &Store{db: db, path: dbPath, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	dim, err := s.loadEmbeddingDim()
	if err != nil {
		db.Close()
		return nil, err
	}
	if dim == 0 {
		dim = opts.EmbeddingDim
		if dim <= 0 {
			dim = DefaultEmbeddingDim
		}
		if err := s.saveEmbeddingDim(dim); err != nil {
			db.Close()
			return nil, err
		}
	}
	s.embeddingDim = dim

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string { return s.path }

// EmbeddingDim returns the dimension new embeddings must match.
func (s *Store) EmbeddingDim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingDim
}

// withTx runs fn inside a transaction, rolling back on error or panic and
// translating SQLITE_BUSY into errkind.Busy.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return classifyTxErr(txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return classifyTxErr(err)
	}
	return nil
}

func classifyTxErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		metrics.StoreBusy.Inc()
		return errkind.Wrap(errkind.Busy, "store write contention", err)
	}
	return errkind.Wrap(errkind.IoFailure, "store transaction", err)
}

// HealthCheck opens the database, runs a trivial query, and confirms the
// schema version row exists.
func (s *Store) HealthCheck(ctx context.Context) HealthStatus {
	if err := s.db.PingContext(ctx); err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	if version < SchemaVersion {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("schema version %d behind target %d", version, SchemaVersion)}
	}
	return HealthStatus{Healthy: true}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
