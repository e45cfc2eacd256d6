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

// Package manifest loads, reconciles, and saves the template manifest:
// the record of what the template tree was at the last successful sync.
// The manifest is persisted twice, as a store row and as a human-readable
// JSON mirror under .claude/; reconciliation picks the more recently
// updated side.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/store"
)

// FileEntry records one template file's state at last sync.
type FileEntry struct {
	Hash            string `json:"hash"`
	TemplateVersion string `json:"templateVersion"`
	UserModified    bool   `json:"userModified"`
	OriginalHash    string `json:"originalHash,omitempty"`
	LastSyncedAt    string `json:"lastSyncedAt"`
}

// Manifest is the in-memory, JSON-shaped TemplateManifest. Extra
// keys encountered on read-modify-write are preserved in Extra.
type Manifest struct {
	K0ntextVersion  string                     `json:"k0ntextVersion"`
	TemplateVersion string                     `json:"templateVersion"`
	CreatedAt       string                     `json:"createdAt"`
	UpdatedAt       string                     `json:"updatedAt"`
	Files           map[string]FileEntry       `json:"files"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// Source identifies which side of the dual-persisted manifest a Manifest
// came from or should be written to.
type Source int

const (
	SourceStore Source = iota
	SourceFile
)

// Empty returns a fresh, empty Manifest carrying the given versions.
func Empty(k0ntextVersion, templateVersion string) Manifest {
	now := nowISO()
	return Manifest{
		K0ntextVersion:  k0ntextVersion,
		TemplateVersion: templateVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
		Files:           map[string]FileEntry{},
	}
}

// Validate rejects manifests missing required top-level fields or whose
// Files is not a map.
func Validate(m Manifest) error {
	if m.K0ntextVersion == "" || m.TemplateVersion == "" || m.CreatedAt == "" {
		return errkind.New(errkind.InvalidData, "manifest missing k0ntextVersion/templateVersion/createdAt")
	}
	if m.Files == nil {
		return errkind.New(errkind.InvalidData, "manifest files is not an object")
	}
	return nil
}

// LoadFromFile reads and parses the manifest JSON at path. A missing file
// is reported as errkind.NotFound, not InvalidData.
func LoadFromFile(path string) (Manifest, error) {
	b, err := os.ReadFile(path) //nolint:gosec // path is the project's own manifest location
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errkind.New(errkind.NotFound, "no manifest file at "+path)
		}
		return Manifest{}, errkind.Wrap(errkind.IoFailure, "read manifest file", err)
	}
	return parse(b)
}

func parse(b []byte) (Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Manifest{}, errkind.Wrap(errkind.InvalidData, "parse manifest json", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, errkind.Wrap(errkind.InvalidData, "parse manifest json", err)
	}
	known := map[string]bool{"k0ntextVersion": true, "templateVersion": true, "createdAt": true, "updatedAt": true, "files": true}
	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}
	m.Extra = extra
	if err := Validate(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadFromStore reads the manifest row from the ICS. Absence is reported
// as errkind.NotFound.
func LoadFromStore(ctx context.Context, s *store.Store) (Manifest, error) {
	row, err := s.LoadManifestRow(ctx)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{
		K0ntextVersion:  row.K0ntextVersion,
		TemplateVersion: row.TemplateVersion,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if err := json.Unmarshal(row.FilesJSON, &m.Files); err != nil {
		return Manifest{}, errkind.Wrap(errkind.InvalidData, "parse stored manifest files", err)
	}
	if m.Files == nil {
		m.Files = map[string]FileEntry{}
	}
	return m, nil
}

// Save persists m to either the ICS or the on-disk JSON file, per source.
func Save(ctx context.Context, s *store.Store, jsonPath string, m Manifest, source Source) error {
	switch source {
	case SourceStore:
		return saveToStore(ctx, s, m)
	case SourceFile:
		return saveToFile(jsonPath, m)
	default:
		return errkind.New(errkind.InvalidData, "unknown manifest source")
	}
}

func saveToStore(ctx context.Context, s *store.Store, m Manifest) error {
	filesJSON, err := json.Marshal(m.Files)
	if err != nil {
		return errkind.Wrap(errkind.InvalidData, "marshal manifest files", err)
	}
	return s.SaveManifestRow(ctx, store.ManifestRow{
		K0ntextVersion:  m.K0ntextVersion,
		TemplateVersion: m.TemplateVersion,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		FilesJSON:       filesJSON,
	})
}

func saveToFile(path string, m Manifest) error {
	out := map[string]json.RawMessage{}
	for k, v := range m.Extra {
		out[k] = v
	}
	b, err := json.Marshal(struct {
		K0ntextVersion  string               `json:"k0ntextVersion"`
		TemplateVersion string               `json:"templateVersion"`
		CreatedAt       string               `json:"createdAt"`
		UpdatedAt       string               `json:"updatedAt"`
		Files           map[string]FileEntry `json:"files"`
	}{m.K0ntextVersion, m.TemplateVersion, m.CreatedAt, m.UpdatedAt, m.Files})
	if err != nil {
		return errkind.Wrap(errkind.InvalidData, "marshal manifest", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return errkind.Wrap(errkind.InvalidData, "remarshal manifest", err)
	}
	for k, v := range out {
		merged[k] = v
	}
	final, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.InvalidData, "marshal final manifest", err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errkind.Wrap(errkind.IoFailure, "create manifest directory", err)
		}
	}
	if err := os.WriteFile(path, final, 0o644); err != nil { //nolint:gosec // manifest mirror is meant to be human-readable
		return errkind.Wrap(errkind.IoFailure, "write manifest file", err)
	}
	return nil
}

// reconcileStamp is the timestamp a manifest competes with during
// reconciliation: UpdatedAt, falling back to CreatedAt when a
// legacy/partial source never stamped an update.
func reconcileStamp(m Manifest) string {
	if m.UpdatedAt != "" {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// LoadReconciled loads both manifest copies: when the on-disk JSON and
// the store row both exist, the one with the lexicographically larger
// UpdatedAt (falling back to CreatedAt; ISO-8601, so later-in-time is
// also lexicographically-larger) wins; the winner is then written back
// into the loser. If only one side exists, it wins outright and is copied
// to the other. If neither exists, it returns an errkind.NotFound error.
func LoadReconciled(ctx context.Context, s *store.Store, jsonPath string) (Manifest, error) {
	fileManifest, fileErr := LoadFromFile(jsonPath)
	storeManifest, storeErr := LoadFromStore(ctx, s)

	fileOK := fileErr == nil
	storeOK := storeErr == nil

	if fileErr != nil && errkind.Of(fileErr) == errkind.InvalidData {
		// A corrupt manifest falls back to empty, never silently repaired.
		// Treat as absent for reconciliation purposes.
		fileOK = false
	}
	if storeErr != nil && errkind.Of(storeErr) == errkind.InvalidData {
		storeOK = false
	}

	switch {
	case fileOK && storeOK:
		winner := storeManifest
		loserSource := SourceFile
		if reconcileStamp(fileManifest) > reconcileStamp(storeManifest) {
			winner = fileManifest
			loserSource = SourceStore
		}
		if err := Save(ctx, s, jsonPath, winner, loserSource); err != nil {
			return Manifest{}, err
		}
		return winner, nil
	case fileOK:
		if err := Save(ctx, s, jsonPath, fileManifest, SourceStore); err != nil {
			return Manifest{}, err
		}
		return fileManifest, nil
	case storeOK:
		if err := Save(ctx, s, jsonPath, storeManifest, SourceFile); err != nil {
			return Manifest{}, err
		}
		return storeManifest, nil
	default:
		return Manifest{}, errkind.New(errkind.NotFound, "no manifest found in store or file")
	}
}

// MarkUserModified flips an entry to userModified=true, recording the
// originalHash the user's local version was derived from.
func (m *Manifest) MarkUserModified(path, originalHash string) {
	path = pathutil.Normalize(path)
	entry := m.Files[path]
	entry.UserModified = true
	entry.OriginalHash = originalHash
	m.Files[path] = entry
}

// UpdateEntry merges partial fields into path's entry, creating it if
// absent. Zero-valued fields of partial leave the existing value in place;
// OriginalHash is taken together with UserModified.
func (m *Manifest) UpdateEntry(path string, partial FileEntry) {
	path = pathutil.Normalize(path)
	entry := m.Files[path]
	if partial.Hash != "" {
		entry.Hash = partial.Hash
	}
	if partial.TemplateVersion != "" {
		entry.TemplateVersion = partial.TemplateVersion
	}
	if partial.UserModified {
		entry.UserModified, entry.OriginalHash = true, partial.OriginalHash
	}
	if partial.LastSyncedAt != "" {
		entry.LastSyncedAt = partial.LastSyncedAt
	}
	m.Files[path] = entry
}

// RemoveEntry deletes path's manifest entry, if present.
func (m *Manifest) RemoveEntry(path string) {
	delete(m.Files, pathutil.Normalize(path))
}

// GetUserModifiedPaths returns every path flagged userModified, sorted.
func (m Manifest) GetUserModifiedPaths() []string {
	var out []string
	for p, e := range m.Files {
		if e.UserModified {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// NeedsUpdate reports whether the manifest's templateVersion differs from
// currentVersion.
func (m Manifest) NeedsUpdate(currentVersion string) bool {
	return m.TemplateVersion != currentVersion
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
