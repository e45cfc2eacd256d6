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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)

	cfg := DefaultConfig("myproject")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myproject", loaded.ProjectID)
	assert.Equal(t, "none", loaded.Embedding.Provider)
	assert.Equal(t, 768, loaded.Embedding.Dimensions)
	assert.Equal(t, "file", loaded.Sync.BackupMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope", "project.yaml"))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("version: \"99\"\nproject_id: x\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidData))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("version: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidData))
}

func TestProjectRootEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvProjectRoot, dir)

	root, err := ProjectRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestAPIKeyEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	cfg := DefaultConfig("p")
	cfg.Embedding.APIKey = "from-file"
	require.NoError(t, Save(cfg, path))

	t.Setenv(EnvAPIKey, "from-env")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.Embedding.APIKey)
}

func TestSkipHooks(t *testing.T) {
	t.Setenv(EnvSkipHooks, "")
	assert.False(t, SkipHooks())
	t.Setenv(EnvSkipHooks, "1")
	assert.True(t, SkipHooks())
}
