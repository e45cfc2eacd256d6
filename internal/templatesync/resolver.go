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
	"sort"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// Strategy selects how the Conflict Resolver drives the Merger over a
// batch of conflicts.
type Strategy string

const (
	StrategyInteractive Strategy = "interactive"
	StrategyBatch       Strategy = "batch"
	StrategyForce       Strategy = "force"
	StrategyDryRun      Strategy = "dry-run"
)

// Decision is a per-file choice in interactive mode.
type Decision string

const (
	DecisionShowDiff  Decision = "show-diff"
	DecisionKeepLocal Decision = "keep-local"
	DecisionOverwrite Decision = "overwrite"
	DecisionSkip      Decision = "skip"
)

// BatchDecision is the up-front choice batch mode offers before any
// individual prompts.
type BatchDecision string

const (
	BatchKeepAll      BatchDecision = "keep-all"
	BatchOverwriteAll BatchDecision = "overwrite-all"
	BatchIndividual   BatchDecision = "individual"
)

// Prompter asks the host for a per-file decision, optionally after
// displaying diff. Resolve calls it again for the same file when the
// answer is DecisionShowDiff.
type Prompter func(ctx context.Context, fc FileComparison, diff string) (Decision, error)

// BatchPrompter asks the host for the up-front batch choice.
type BatchPrompter func(ctx context.Context, conflicts []FileComparison) (BatchDecision, error)

// Resolver drives the Merger over a set of conflicts according to
// Strategy.
type Resolver struct {
	Strategy Strategy
	Prompt   Prompter      // required for StrategyInteractive and StrategyBatch's "individual" path
	Batch    BatchPrompter // required for StrategyBatch
	Merger   *Merger
}

// Outcome records what happened to one conflict after resolution.
type Outcome struct {
	Path     string
	Decision Decision
	Result   MergeResult // zero value for keep-local; skip and dry-run set only Path and the reported Action
}

// Resolve processes conflicts in lexicographic order by Path.
func (r *Resolver) Resolve(ctx context.Context, conflicts []FileComparison) ([]Outcome, error) {
	sorted := make([]FileComparison, len(conflicts))
	copy(sorted, conflicts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	switch r.Strategy {
	case StrategyForce:
		return r.resolveForce(ctx, sorted)
	case StrategyDryRun:
		return r.resolveDryRun(sorted), nil
	case StrategyBatch:
		return r.resolveBatch(ctx, sorted)
	case StrategyInteractive:
		return r.resolveInteractive(ctx, sorted)
	default:
		return nil, errkind.New(errkind.InvalidData, "unknown conflict resolution strategy "+string(r.Strategy))
	}
}

func (r *Resolver) resolveForce(ctx context.Context, conflicts []FileComparison) ([]Outcome, error) {
	out := make([]Outcome, 0, len(conflicts))
	for _, fc := range conflicts {
		res, err := r.Merger.Apply(ctx, fc)
		if err != nil {
			return nil, err
		}
		out = append(out, Outcome{Path: fc.Path, Decision: DecisionOverwrite, Result: res})
	}
	return out, nil
}

// resolveDryRun reports every conflict's classification and the action
// force mode would take, without touching disk.
func (r *Resolver) resolveDryRun(conflicts []FileComparison) []Outcome {
	out := make([]Outcome, 0, len(conflicts))
	for _, fc := range conflicts {
		out = append(out, Outcome{
			Path:     fc.Path,
			Decision: DecisionOverwrite,
			Result:   MergeResult{Path: fc.Path, Action: ActionOverwrite},
		})
	}
	return out
}

func (r *Resolver) resolveBatch(ctx context.Context, conflicts []FileComparison) ([]Outcome, error) {
	if r.Batch == nil {
		return nil, errkind.New(errkind.InvalidData, "batch strategy requires a BatchPrompter")
	}
	choice, err := r.Batch(ctx, conflicts)
	if err != nil {
		return nil, err
	}
	switch choice {
	case BatchKeepAll:
		out := make([]Outcome, 0, len(conflicts))
		for _, fc := range conflicts {
			out = append(out, Outcome{Path: fc.Path, Decision: DecisionKeepLocal})
		}
		return out, nil
	case BatchOverwriteAll:
		return r.resolveForce(ctx, conflicts)
	case BatchIndividual:
		return r.resolveInteractive(ctx, conflicts)
	default:
		return nil, errkind.New(errkind.InvalidData, "unknown batch decision "+string(choice))
	}
}

func (r *Resolver) resolveInteractive(ctx context.Context, conflicts []FileComparison) ([]Outcome, error) {
	if r.Prompt == nil {
		return nil, errkind.New(errkind.InvalidData, "interactive strategy requires a Prompter")
	}
	out := make([]Outcome, 0, len(conflicts))
	for _, fc := range conflicts {
		outcome, err := r.resolveOne(ctx, fc)
		if err != nil {
			return nil, err
		}
		out = append(out, outcome)
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, fc FileComparison) (Outcome, error) {
	var diff string
	for {
		decision, err := r.Prompt(ctx, fc, diff)
		if err != nil {
			return Outcome{}, err
		}
		switch decision {
		case DecisionShowDiff:
			diff = UnifiedDiff(fc.Path, readLocal(r.Merger, fc.Path), readTemplate(r.Merger, fc.Path))
			continue // re-prompt the same file after displaying the diff
		case DecisionKeepLocal:
			return Outcome{Path: fc.Path, Decision: DecisionKeepLocal}, nil
		case DecisionSkip:
			return Outcome{Path: fc.Path, Decision: DecisionSkip, Result: MergeResult{Path: fc.Path, Action: ActionSkip}}, nil
		case DecisionOverwrite:
			res, err := r.Merger.Apply(ctx, fc)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Path: fc.Path, Decision: DecisionOverwrite, Result: res}, nil
		default:
			return Outcome{}, errkind.New(errkind.InvalidData, "unknown conflict decision "+string(decision))
		}
	}
}

func readLocal(m *Merger, rel string) string { return readFileBestEffort(m.workingPath(rel)) }
func readTemplate(m *Merger, rel string) string { return readFileBestEffort(m.templatePath(rel)) }
