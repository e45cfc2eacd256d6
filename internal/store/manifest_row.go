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
	"encoding/json"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// ManifestRow is the raw JSON-backed row the ICS keeps for the template
// manifest.
type ManifestRow struct {
	K0ntextVersion  string
	TemplateVersion string
	CreatedAt       string
	UpdatedAt       string
	FilesJSON       json.RawMessage
}

// LoadManifestRow returns the single manifest row, or errkind.NotFound if
// none has ever been saved.
func (s *Store) LoadManifestRow(ctx context.Context) (ManifestRow, error) {
	var row ManifestRow
	var files string
	err := s.db.QueryRowContext(ctx, `SELECT k0ntext_version, template_version, created_at, updated_at, files FROM template_manifest WHERE id = 1`).
		Scan(&row.K0ntextVersion, &row.TemplateVersion, &row.CreatedAt, &row.UpdatedAt, &files)
	if err == sql.ErrNoRows {
		return ManifestRow{}, errkind.New(errkind.NotFound, "no manifest stored in ICS")
	}
	if err != nil {
		return ManifestRow{}, errkind.Wrap(errkind.IoFailure, "load manifest row", err)
	}
	row.FilesJSON = json.RawMessage(files)
	return row, nil
}

// SaveManifestRow replaces the single manifest row atomically.
func (s *Store) SaveManifestRow(ctx context.Context, row ManifestRow) error {
	if len(row.FilesJSON) == 0 {
		row.FilesJSON = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_manifest (id, k0ntext_version, template_version, created_at, updated_at, files)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			k0ntext_version = excluded.k0ntext_version,
			template_version = excluded.template_version,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			files = excluded.files
	`, row.K0ntextVersion, row.TemplateVersion, row.CreatedAt, row.UpdatedAt, string(row.FilesJSON))
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "save manifest row", err)
	}
	return nil
}
