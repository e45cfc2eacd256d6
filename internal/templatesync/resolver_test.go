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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverForceOverwritesAll(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "a.md", "template\n")
	writeFile(t, workingRoot, "a.md", "local\n")

	merger := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot, BackupMode: BackupModeFile}
	r := &Resolver{Strategy: StrategyForce, Merger: merger}
	outcomes, err := r.Resolve(context.Background(), []FileComparison{{Path: "a.md", State: StateConflict}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, DecisionOverwrite, outcomes[0].Decision)
	assert.Equal(t, ActionOverwrite, outcomes[0].Result.Action)
}

func TestResolverDryRunReportsWithoutWriting(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "a.md", "template\n")
	writeFile(t, workingRoot, "a.md", "local\n")

	merger := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot}
	r := &Resolver{Strategy: StrategyDryRun, Merger: merger}
	outcomes, err := r.Resolve(context.Background(), []FileComparison{{Path: "a.md", State: StateConflict}})
	require.NoError(t, err)
	assert.Equal(t, DecisionOverwrite, outcomes[0].Decision)

	b := readFileBestEffort(merger.workingPath("a.md"))
	assert.Equal(t, "local\n", b, "dry-run must not touch disk")
}

func TestResolverInteractiveKeepLocal(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "a.md", "template\n")
	writeFile(t, workingRoot, "a.md", "local\n")

	merger := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot}
	r := &Resolver{
		Strategy: StrategyInteractive,
		Merger:   merger,
		Prompt: func(ctx context.Context, fc FileComparison, diff string) (Decision, error) {
			return DecisionKeepLocal, nil
		},
	}
	outcomes, err := r.Resolve(context.Background(), []FileComparison{{Path: "a.md", State: StateConflict}})
	require.NoError(t, err)
	assert.Equal(t, DecisionKeepLocal, outcomes[0].Decision)

	b := readFileBestEffort(merger.workingPath("a.md"))
	assert.Equal(t, "local\n", b)
}

func TestResolverInteractiveShowDiffThenOverwrite(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "a.md", "template\n")
	writeFile(t, workingRoot, "a.md", "local\n")

	calls := 0
	merger := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot, BackupMode: BackupModeFile}
	r := &Resolver{
		Strategy: StrategyInteractive,
		Merger:   merger,
		Prompt: func(ctx context.Context, fc FileComparison, diff string) (Decision, error) {
			calls++
			if calls == 1 {
				assert.Empty(t, diff)
				return DecisionShowDiff, nil
			}
			assert.NotEmpty(t, diff)
			return DecisionOverwrite, nil
		},
	}
	outcomes, err := r.Resolve(context.Background(), []FileComparison{{Path: "a.md", State: StateConflict}})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, DecisionOverwrite, outcomes[0].Decision)
}

func TestResolverBatchKeepAll(t *testing.T) {
	templateRoot, workingRoot := setupTrees(t)
	writeFile(t, templateRoot, "a.md", "template\n")
	writeFile(t, workingRoot, "a.md", "local\n")
	writeFile(t, templateRoot, "b.md", "template\n")
	writeFile(t, workingRoot, "b.md", "local\n")

	merger := &Merger{TemplateRoot: templateRoot, WorkingRoot: workingRoot}
	r := &Resolver{
		Strategy: StrategyBatch,
		Merger:   merger,
		Batch: func(ctx context.Context, conflicts []FileComparison) (BatchDecision, error) {
			return BatchKeepAll, nil
		},
	}
	outcomes, err := r.Resolve(context.Background(), []FileComparison{{Path: "b.md", State: StateConflict}, {Path: "a.md", State: StateConflict}})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	// Deterministic lexicographic ordering.
	assert.Equal(t, "a.md", outcomes[0].Path)
	assert.Equal(t, "b.md", outcomes[1].Path)
	for _, o := range outcomes {
		assert.Equal(t, DecisionKeepLocal, o.Decision)
	}
}
