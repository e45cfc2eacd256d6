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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/gitutil"
)

// Action is the method the Merger actually applied for one
// FileComparison.
type Action string

const (
	ActionSkip       Action = "skip"
	ActionAutoCreate Action = "auto-create"
	ActionAutoSafe   Action = "auto-safe"
	ActionOverwrite  Action = "overwrite"
)

// BackupMode selects how the Merger preserves a local file it is about to
// overwrite.
type BackupMode string

const (
	BackupModeFile     BackupMode = "file"
	BackupModeGitStash BackupMode = "git-stash"
)

// MergeResult is the outcome of applying one FileComparison.
type MergeResult struct {
	Path      string
	Action    Action
	BackupRef string // "" if no backup was made
	Diff      string // populated only when WithDiff is requested
}

// Merger applies a classified FileComparison: auto-merge, auto-create,
// overwrite-with-backup, or skip.
type Merger struct {
	TemplateRoot string
	WorkingRoot  string
	BackupMode   BackupMode
	GitRepo      *gitutil.Repo // required when BackupMode == BackupModeGitStash
	WithDiff     bool          // populate MergeResult.Diff for overwrites
}

// Apply applies fc according to its State. Conflict rows must be routed
// through the Conflict Resolver first; calling Apply directly on a
// StateConflict row always overwrites (callers that want resolver
// semantics should use Resolver.Resolve instead).
func (m *Merger) Apply(ctx context.Context, fc FileComparison) (MergeResult, error) {
	switch fc.State {
	case StateIdentical:
		return MergeResult{Path: fc.Path, Action: ActionSkip}, nil
	case StateNew:
		return m.create(fc)
	case StateSafeUpdate:
		return m.overwrite(ctx, fc, ActionAutoSafe)
	case StateConflict:
		return m.overwrite(ctx, fc, ActionOverwrite)
	case StateUserOnly, StateDeleted:
		// Not touched during merge; archival is a separate engine step.
		return MergeResult{Path: fc.Path, Action: ActionSkip}, nil
	default:
		return MergeResult{}, errkind.New(errkind.InvalidData, "unknown comparison state "+string(fc.State))
	}
}

func (m *Merger) templatePath(rel string) string { return filepath.Join(m.TemplateRoot, filepath.FromSlash(rel)) }
func (m *Merger) workingPath(rel string) string { return filepath.Join(m.WorkingRoot, filepath.FromSlash(rel)) }

// readFileBestEffort returns a file's content, or "" if it cannot be read
// (e.g. a conflict's local side does not exist). Used only to feed
// interactive-mode diff display, never for a decision that affects disk
// state.
func readFileBestEffort(path string) string {
	b, err := os.ReadFile(path) //nolint:gosec // path derives from a resolved project file
	if err != nil {
		return ""
	}
	return string(b)
}

func (m *Merger) create(fc FileComparison) (MergeResult, error) {
	content, err := os.ReadFile(m.templatePath(fc.Path)) //nolint:gosec // fc.Path comes from a scan of the project's own template tree
	if err != nil {
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "read template file "+fc.Path, err)
	}
	dest := m.workingPath(fc.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "create parent directory for "+fc.Path, err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil { //nolint:gosec // managed template output, meant to be readable
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "write "+fc.Path, err)
	}
	return MergeResult{Path: fc.Path, Action: ActionAutoCreate}, nil
}

func (m *Merger) overwrite(ctx context.Context, fc FileComparison, action Action) (MergeResult, error) {
	dest := m.workingPath(fc.Path)

	templateContent, err := os.ReadFile(m.templatePath(fc.Path)) //nolint:gosec // fc.Path comes from a scan of the project's own template tree
	if err != nil {
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "read template file "+fc.Path, err)
	}

	var diff string
	localContent, readErr := os.ReadFile(dest) //nolint:gosec // dest is the project's own working copy
	if readErr == nil && m.WithDiff {
		diff = UnifiedDiff(fc.Path, string(localContent), string(templateContent))
	}

	var backupRef string
	if readErr == nil {
		backupRef, err = m.backup(ctx, fc.Path, dest)
		if err != nil {
			return MergeResult{}, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "create parent directory for "+fc.Path, err)
	}
	if err := os.WriteFile(dest, templateContent, 0o644); err != nil { //nolint:gosec // managed template output, meant to be readable
		return MergeResult{}, errkind.Wrap(errkind.IoFailure, "write "+fc.Path, err)
	}

	return MergeResult{Path: fc.Path, Action: action, BackupRef: backupRef, Diff: diff}, nil
}

// backup preserves dest before it is overwritten. Exactly one of the two
// mechanisms fires, chosen by m.BackupMode.
func (m *Merger) backup(ctx context.Context, relPath, dest string) (string, error) {
	switch m.BackupMode {
	case BackupModeGitStash:
		if m.GitRepo == nil {
			return "", errkind.New(errkind.InvalidData, "git-stash backup mode requires a discovered git repository")
		}
		repoRel, err := filepath.Rel(m.GitRepo.Root(), dest)
		if err != nil {
			return "", errkind.Wrap(errkind.IoFailure, "resolve repo-relative path for stash", err)
		}
		ref, err := m.GitRepo.StashPush(ctx, filepath.ToSlash(repoRel), "k0ntext template sync backup: "+relPath)
		if err != nil {
			return "", err
		}
		return "git-stash:" + ref, nil
	default:
		backupPath := fmt.Sprintf("%s.backup-%s", dest, time.Now().UTC().Format(time.RFC3339))
		if _, err := os.Stat(backupPath); err == nil {
			// Same-second collision: disambiguate with a short UUID
			// suffix rather than silently overwrite a prior backup.
			backupPath = fmt.Sprintf("%s-%s", backupPath, uuid.NewString()[:8])
		}
		content, err := os.ReadFile(dest) //nolint:gosec // dest is the project's own working copy
		if err != nil {
			return "", errkind.Wrap(errkind.IoFailure, "read file to back up", err)
		}
		if err := os.WriteFile(backupPath, content, 0o644); err != nil { //nolint:gosec // backup mirrors the original file's readability
			return "", errkind.Wrap(errkind.IoFailure, "write backup file", err)
		}
		return backupPath, nil
	}
}

// UnifiedDiff renders a minimal line-based unified diff between old and
// new, for verbose/interactive display only.
func UnifiedDiff(path, oldText, newText string) string {
	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")
	ops := diffLines(oldLines, newLines)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, op := range ops {
		switch op.kind {
		case diffEqual:
			b.WriteString("  " + op.text + "\n")
		case diffDelete:
			b.WriteString("- " + op.text + "\n")
		case diffInsert:
			b.WriteString("+ " + op.text + "\n")
		}
	}
	return b.String()
}

type diffKind int

const (
	diffEqual diffKind = iota
	diffDelete
	diffInsert
)

type diffOp struct {
	kind diffKind
	text string
}

// diffLines computes a line-level diff via the classic LCS
// dynamic-programming table. Repositories' template files are small
//, so the O(n*m) table is never a concern
// in practice.
func diffLines(a, b []string) []diffOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{diffEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{diffDelete, a[i]})
			i++
		default:
			ops = append(ops, diffOp{diffInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, diffOp{diffDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, diffOp{diffInsert, b[j]})
	}
	return ops
}
