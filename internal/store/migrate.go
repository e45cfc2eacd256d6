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

package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// migration applies one schema version bump. Each runs inside its own
// transaction and is expected to be idempotent against a partially-applied
// prior attempt.
type migration struct {
	version int
	apply   func(tx *sql.Tx) error
	// breaking marks a migration that changes existing data incompatibly.
	// migrate does not consult it: every pending migration runs, and
	// Options has no force flag. Version 1 is not breaking.
	breaking bool
}

var migrations = []migration{
	{
		version: 1,
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(schemaSQL)
			return err
		},
	},
}

func (s *Store) migrate() error {
	var current int
	row := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		// schema_migrations table itself doesn't exist yet: first open.
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.backupBeforeMigration(m.version); err != nil {
			return err
		}
		err := s.withTx(context.Background(), func(tx *sql.Tx) error {
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
			_, err := tx.Exec(`INSERT OR REPLACE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, nowISO())
			return err
		})
		if err != nil {
			return errkind.Wrap(errkind.IoFailure, "run schema migration", err)
		}
	}
	return nil
}

// backupBeforeMigration copies the current database file to a
// "...pre-<version>.bak" sibling before a migration runs. A fresh
// (not-yet-existing) database has nothing to back up.
func (s *Store) backupBeforeMigration(version int) error {
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	backupPath := fmt.Sprintf("%s.pre-%d.bak", s.path, version)
	src, err := os.Open(s.path) //nolint:gosec // path is the store's own configured location
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errkind.Wrap(errkind.IoFailure, "open store for migration backup", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath) //nolint:gosec // path derived from the store's own configured location
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "create migration backup", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errkind.Wrap(errkind.IoFailure, "write migration backup", err)
	}
	return nil
}

const embeddingDimKey = "embedding_dim"

func (s *Store) loadEmbeddingDim() (int, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = ?`, embeddingDimKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errkind.Wrap(errkind.IoFailure, "load embedding dimension", err)
	}
	var dim int
	if _, err := fmt.Sscanf(value, "%d", &dim); err != nil {
		return 0, errkind.Wrap(errkind.InvalidData, "parse stored embedding dimension", err)
	}
	return dim, nil
}

func (s *Store) saveEmbeddingDim(dim int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`,
		embeddingDimKey, fmt.Sprintf("%d", dim))
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "save embedding dimension", err)
	}
	return nil
}
