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

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// UpsertFileTimestamp records (or updates) a scanned file's state, unique
// by path.
func (s *Store) UpsertFileTimestamp(ctx context.Context, ft FileTimestamp) error {
	path := pathutil.Normalize(ft.Path)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_timestamps (path, mtime, size, hash, last_checked_at, git_commit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			hash = excluded.hash,
			last_checked_at = excluded.last_checked_at,
			git_commit = excluded.git_commit
	`, path, ft.Mtime.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), ft.Size, ft.Hash, nowISO(), ft.GitCommit)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "upsert file timestamp", err)
	}
	return nil
}

// GetFileTimestamp returns the stored timestamp for path, or NotFound.
func (s *Store) GetFileTimestamp(ctx context.Context, path string) (FileTimestamp, error) {
	path = pathutil.Normalize(path)
	var ft FileTimestamp
	var mtime, lastChecked string
	row := s.db.QueryRowContext(ctx, `SELECT path, mtime, size, hash, last_checked_at, git_commit FROM file_timestamps WHERE path = ?`, path)
	if err := row.Scan(&ft.Path, &mtime, &ft.Size, &ft.Hash, &lastChecked, &ft.GitCommit); err != nil {
		if err == sql.ErrNoRows {
			return FileTimestamp{}, errkind.New(errkind.NotFound, "no timestamp recorded for "+path)
		}
		return FileTimestamp{}, errkind.Wrap(errkind.IoFailure, "query file timestamp", err)
	}
	ft.Mtime = parseISO(mtime)
	ft.LastCheckedAt = parseISO(lastChecked)
	return ft, nil
}
