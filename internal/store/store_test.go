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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/hashutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "k0ntext.db")
	s, err := Open(path, Options{EmbeddingDim: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertItemContentHashInvariant(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.UpsertItem(ctx, TypeDoc, "readme", "docs/readme.md", "hello\n", nil)
	require.NoError(t, err)
	assert.Equal(t, hashutil.HashString("hello\n"), item.ContentHash)

	got, err := s.GetItemByFile(ctx, "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, item.ContentHash, got.ContentHash)
}

func TestUpsertItemUniqueKeyReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertItem(ctx, TypeDoc, "readme", "docs/readme.md", "v1", nil)
	require.NoError(t, err)
	second, err := s.UpsertItem(ctx, TypeDoc, "readme", "docs/readme.md", "v2", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	items, err := s.GetItemsByType(ctx, TypeDoc)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "v2", items[0].Content)
}

func TestUpsertItemInvalidatesEmbeddingOnHashChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.UpsertItem(ctx, TypeCode, "main", "main.go", "package main", nil)
	require.NoError(t, err)
	require.NoError(t, s.StoreEmbedding(ctx, item.ID, []float32{0.1, 0.2, 0.3, 0.4}, false))

	matches, err := s.SearchByEmbedding(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = s.UpsertItem(ctx, TypeCode, "main", "main.go", "package main2", nil)
	require.NoError(t, err)

	matches, err = s.SearchByEmbedding(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "embedding must be invalidated when content hash changes")
}

func TestTemplateFileMustLiveUnderClaudeDir(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertItem(ctx, TypeTemplateFile, "init", "commands/init.md", "body", nil)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidData))

	_, err = s.UpsertItem(ctx, TypeTemplateFile, "init", ".claude/commands/init.md", "body", nil)
	require.NoError(t, err)
}

func TestStoreEmbeddingDimensionMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item, err := s.UpsertItem(ctx, TypeCode, "main", "main.go", "package main", nil)
	require.NoError(t, err)

	err = s.StoreEmbedding(ctx, item.ID, []float32{1, 2, 3}, false)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidData))
}

func TestStoreEmbeddingForceReconfiguresDimension(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertItem(ctx, TypeCode, "a", "a.go", "package a", nil)
	require.NoError(t, err)
	require.NoError(t, s.StoreEmbedding(ctx, a.ID, []float32{0, 0, 0, 1}, false))

	b, err := s.UpsertItem(ctx, TypeCode, "b", "b.go", "package b", nil)
	require.NoError(t, err)
	require.NoError(t, s.StoreEmbedding(ctx, b.ID, []float32{1, 1, 1}, true))

	assert.Equal(t, 3, s.EmbeddingDim())
	matches, err := s.SearchByEmbedding(ctx, []float32{1, 1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1, "force-reconfigure must drop all prior embeddings, keeping only the new vector")
	assert.Equal(t, b.ID, matches[0].Item.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestHybridSearchDegradesToTextOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertItem(ctx, TypeDoc, "auth", "docs/auth.md", "authentication flow", nil)
	require.NoError(t, err)

	results, err := s.HybridSearch(ctx, "authentication", nil, HybridOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "auth", results[0].Item.Name)
}

func TestGeneratedFileUserModifiedDerivation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, writeFile(dir+"/AI_CONTEXT.md", "original"))

	require.NoError(t, s.UpsertGeneratedFile(ctx, "claude", "AI_CONTEXT.md", hashutil.HashString("original"), "", nil))

	files, err := s.GetGeneratedFiles(ctx, "claude", dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.False(t, files[0].UserModified)

	require.NoError(t, writeFile(dir+"/AI_CONTEXT.md", "edited by user"))
	files, err = s.GetGeneratedFiles(ctx, "claude", dir)
	require.NoError(t, err)
	assert.True(t, files[0].UserModified)
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	status := s.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
