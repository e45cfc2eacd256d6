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
	"github.com/SireJeff/k0ntext/internal/hashutil"
	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// UpsertGeneratedFile records provenance for a file k0ntext wrote under the
// repository.
func (s *Store) UpsertGeneratedFile(ctx context.Context, tool, filePath, contentHash, backupPath string, meta Metadata) error {
	filePath = pathutil.Normalize(filePath)
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return errkind.Wrap(errkind.InvalidData, "marshal generated-file metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_files (tool, file_path, content_hash, backup_path, metadata, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			backup_path = excluded.backup_path,
			metadata = excluded.metadata,
			generated_at = excluded.generated_at
	`, tool, filePath, contentHash, backupPath, metaJSON, nowISO())
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "upsert generated file", err)
	}
	return nil
}

// GetGeneratedFiles returns generated-file records, optionally filtered by
// tool, with UserModified derived by comparing against the on-disk hash at
// repoRoot. Pass an empty repoRoot to skip the on-disk comparison (leaves
// UserModified false).
func (s *Store) GetGeneratedFiles(ctx context.Context, tool, repoRoot string) ([]GeneratedFile, error) {
	var rows *sql.Rows
	var err error
	if tool != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT tool, file_path, content_hash, backup_path, metadata, generated_at FROM generated_files WHERE tool = ? ORDER BY file_path`, tool)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT tool, file_path, content_hash, backup_path, metadata, generated_at FROM generated_files ORDER BY tool, file_path`)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "query generated files", err)
	}
	defer rows.Close()

	var out []GeneratedFile
	for rows.Next() {
		var gf GeneratedFile
		var metaJSON, generatedAt string
		if err := rows.Scan(&gf.Tool, &gf.FilePath, &gf.ContentHash, &gf.BackupPath, &metaJSON, &generatedAt); err != nil {
			return nil, errkind.Wrap(errkind.IoFailure, "scan generated file row", err)
		}
		meta, err := unmarshalMetadata(metaJSON)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidData, "decode generated-file metadata", err)
		}
		gf.Metadata = meta
		gf.GeneratedAt = parseISO(generatedAt)
		if repoRoot != "" {
			onDisk := hashutil.HashFileSafe(joinRepoPath(repoRoot, gf.FilePath))
			gf.UserModified = onDisk != gf.ContentHash
		}
		out = append(out, gf)
	}
	return out, rows.Err()
}

func joinRepoPath(root, rel string) string {
	if root == "" {
		return rel
	}
	return root + "/" + rel
}

// UpdateVersionTracking stores a per-tool sync_state row.
func (s *Store) UpdateVersionTracking(ctx context.Context, tool, version string, userModified bool, lastChecked, filePath, contentHash string) error {
	userModifiedInt := 0
	if userModified {
		userModifiedInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (tool, version, user_modified, last_checked, file_path, content_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tool) DO UPDATE SET
			version = excluded.version,
			user_modified = excluded.user_modified,
			last_checked = excluded.last_checked,
			file_path = excluded.file_path,
			content_hash = excluded.content_hash
	`, tool, version, userModifiedInt, lastChecked, pathutil.Normalize(filePath), contentHash)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "update version tracking", err)
	}
	return nil
}

// GetSyncState returns the sync_state row for tool, or errkind.NotFound.
func (s *Store) GetSyncState(ctx context.Context, tool string) (SyncState, error) {
	var st SyncState
	var userModifiedInt int
	var lastChecked string
	row := s.db.QueryRowContext(ctx, `SELECT tool, version, user_modified, last_checked, file_path, content_hash FROM sync_state WHERE tool = ?`, tool)
	if err := row.Scan(&st.Tool, &st.Version, &userModifiedInt, &lastChecked, &st.FilePath, &st.ContentHash); err != nil {
		if err == sql.ErrNoRows {
			return SyncState{}, errkind.New(errkind.NotFound, "no sync state for tool "+tool)
		}
		return SyncState{}, errkind.Wrap(errkind.IoFailure, "query sync state", err)
	}
	st.UserModified = userModifiedInt != 0
	st.LastChecked = parseISO(lastChecked)
	return st, nil
}
