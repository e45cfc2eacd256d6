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

package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "k0ntext.db"), store.Options{EmbeddingDim: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sample(updatedAt string) Manifest {
	return Manifest{
		K0ntextVersion:  "1.0.0",
		TemplateVersion: "2.0.0",
		CreatedAt:       "2025-01-01T00:00:00Z",
		UpdatedAt:       updatedAt,
		Files: map[string]FileEntry{
			"commands/init.md": {Hash: "6d5f807e23db210b", TemplateVersion: "2.0.0", LastSyncedAt: "2025-01-01T00:00:00Z"},
		},
	}
}

func TestFileRoundTripPreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")

	raw := `{
  "k0ntextVersion": "1.0.0",
  "templateVersion": "2.0.0",
  "createdAt": "2025-01-01T00:00:00Z",
  "updatedAt": "2025-01-02T00:00:00Z",
  "files": {},
  "futureField": {"nested": true}
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	m, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Contains(t, m.Extra, "futureField")

	require.NoError(t, saveToFile(path, m))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Contains(t, out, "futureField", "unknown keys must survive read-modify-write")
}

func TestLoadFromFileMissingIsNotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestValidateRejectsMissingFields(t *testing.T) {
	m := sample("2025-01-02T00:00:00Z")
	m.K0ntextVersion = ""
	require.Error(t, Validate(m))

	m = sample("2025-01-02T00:00:00Z")
	m.Files = nil
	require.Error(t, Validate(m))
}

func TestLoadFromFileRejectsCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidData))
}

// Mirrors the reconciliation tie-break scenario: the store copy is newer,
// so it wins and the JSON side is rewritten to match.
func TestLoadReconciledStoreWins(t *testing.T) {
	s := openStore(t)
	jsonPath := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")
	ctx := context.Background()

	newer := sample("2025-01-02T00:00:00Z")
	older := sample("2025-01-01T00:00:00Z")
	require.NoError(t, Save(ctx, s, jsonPath, newer, SourceStore))
	require.NoError(t, Save(ctx, s, jsonPath, older, SourceFile))

	got, err := LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T00:00:00Z", got.UpdatedAt)

	fromFile, err := LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T00:00:00Z", fromFile.UpdatedAt, "losing side must be rewritten")
}

func TestLoadReconciledFileWins(t *testing.T) {
	s := openStore(t)
	jsonPath := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")
	ctx := context.Background()

	require.NoError(t, Save(ctx, s, jsonPath, sample("2025-01-01T00:00:00Z"), SourceStore))
	require.NoError(t, Save(ctx, s, jsonPath, sample("2025-03-01T00:00:00Z"), SourceFile))

	got, err := LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T00:00:00Z", got.UpdatedAt)

	fromStore, err := LoadFromStore(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T00:00:00Z", fromStore.UpdatedAt)
}

func TestLoadReconciledFallsBackToCreatedAt(t *testing.T) {
	s := openStore(t)
	jsonPath := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")
	ctx := context.Background()

	// File side never stamped an update but was created later than the
	// store side's last update; its createdAt must compete.
	fromFile := sample("")
	fromFile.CreatedAt = "2025-06-01T00:00:00Z"
	fromStore := sample("2025-01-02T00:00:00Z")
	require.NoError(t, Save(ctx, s, jsonPath, fromStore, SourceStore))
	require.NoError(t, Save(ctx, s, jsonPath, fromFile, SourceFile))

	got, err := LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T00:00:00Z", got.CreatedAt)
	assert.Empty(t, got.UpdatedAt)
}

func TestLoadReconciledSingleSide(t *testing.T) {
	s := openStore(t)
	jsonPath := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")
	ctx := context.Background()

	require.NoError(t, Save(ctx, s, jsonPath, sample("2025-01-05T00:00:00Z"), SourceFile))

	got, err := LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05T00:00:00Z", got.UpdatedAt)

	fromStore, err := LoadFromStore(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05T00:00:00Z", fromStore.UpdatedAt, "winner copied to the absent side")
}

func TestLoadReconciledNeitherSide(t *testing.T) {
	s := openStore(t)
	_, err := LoadReconciled(context.Background(), s, filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestLoadReconciledIdempotent(t *testing.T) {
	s := openStore(t)
	jsonPath := filepath.Join(t.TempDir(), ".k0ntext-manifest.json")
	ctx := context.Background()

	require.NoError(t, Save(ctx, s, jsonPath, sample("2025-01-02T00:00:00Z"), SourceStore))
	require.NoError(t, Save(ctx, s, jsonPath, sample("2025-01-01T00:00:00Z"), SourceFile))

	_, err := LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	first, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	_, err = LoadReconciled(ctx, s, jsonPath)
	require.NoError(t, err)
	second, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "reconciliation must reach a fixed point")
}

func TestMarkUserModifiedInvariant(t *testing.T) {
	m := sample("2025-01-02T00:00:00Z")
	m.MarkUserModified("commands/init.md", "6d5f807e23db210b")

	entry := m.Files["commands/init.md"]
	assert.True(t, entry.UserModified)
	assert.Len(t, entry.OriginalHash, 16)
	assert.Equal(t, []string{"commands/init.md"}, m.GetUserModifiedPaths())
}

func TestNeedsUpdate(t *testing.T) {
	m := sample("2025-01-02T00:00:00Z")
	assert.False(t, m.NeedsUpdate("2.0.0"))
	assert.True(t, m.NeedsUpdate("2.1.0"))
}

func TestRemoveAndUpdateEntry(t *testing.T) {
	m := sample("2025-01-02T00:00:00Z")
	m.UpdateEntry("agents/x.md", FileEntry{Hash: "aaaaaaaaaaaaaaaa", TemplateVersion: "2.0.0"})
	require.Contains(t, m.Files, "agents/x.md")
	m.RemoveEntry("agents/x.md")
	assert.NotContains(t, m.Files, "agents/x.md")
}
