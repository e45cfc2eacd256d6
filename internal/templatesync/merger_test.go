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

package templatesync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTrees(t *testing.T) (templateRoot, workingRoot string) {
	t.Helper()
	templateRoot = t.TempDir()
	workingRoot = t.TempDir()
	return
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestMergerCreate(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "commands/init.md", "hello\n")

	m := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot}
	res, err := m.Apply(context.Background(), FileComparison{Path: "commands/init.md", State: StateNew})
	require.NoError(t, err)
	assert.Equal(t, ActionAutoCreate, res.Action)

	got, err := os.ReadFile(filepath.Join(workingRoot, "commands/init.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestMergerSafeUpdateBacksUpLocal(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "agents/x.md", "new content\n")
	writeFile(t, workingRoot, "agents/x.md", "old content\n")

	m := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot, BackupMode: BackupModeFile}
	res, err := m.Apply(context.Background(), FileComparison{Path: "agents/x.md", State: StateSafeUpdate})
	require.NoError(t, err)
	assert.Equal(t, ActionAutoSafe, res.Action)
	require.NotEmpty(t, res.BackupRef)

	backup, err := os.ReadFile(res.BackupRef)
	require.NoError(t, err)
	assert.Equal(t, "old content\n", string(backup))

	current, err := os.ReadFile(filepath.Join(workingRoot, "agents/x.md"))
	require.NoError(t, err)
	assert.Equal(t, "new content\n", string(current))
}

func TestMergerIdenticalIsNoop(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	m := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot}
	res, err := m.Apply(context.Background(), FileComparison{Path: "a.md", State: StateIdentical})
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
}

func TestUnifiedDiff(t *testing.T) {
	diff := UnifiedDiff("a.md", "line1\nline2\n", "line1\nline2 changed\n")
	assert.Contains(t, diff, "--- a/a.md")
	assert.Contains(t, diff, "+++ b/a.md")
	assert.Contains(t, diff, "- line2")
	assert.Contains(t, diff, "+ line2 changed")
}
