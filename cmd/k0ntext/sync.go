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

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/gitutil"
	"github.com/SireJeff/k0ntext/internal/metrics"
	"github.com/SireJeff/k0ntext/internal/templatesync"
)

// runSync performs (or previews) a template sync into .claude/.
func runSync(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	templateRoot := fs.String("template-root", "", "Canonical template tree (default: sync.template_root from config)")
	templateVersion := fs.String("template-version", "", "Version tag recorded in the manifest for this sync")
	dryRun := fs.Bool("dry-run", false, "Report the classification without touching disk")
	force := fs.Bool("force", false, "Overwrite every conflict without prompting")
	keepLocal := fs.Bool("keep-local", false, "Keep the local side of every conflict")
	check := fs.Bool("check", false, "Only report whether a sync is needed")
	withDiff := fs.Bool("diff", false, "Show diffs when prompting on conflicts")
	noArchive := fs.Bool("no-archive", false, "Do not archive user-only and deleted files")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := newLogger(globals)
	proj, err := openProject(globals, logger)
	if err != nil {
		return fail(globals, err)
	}
	defer proj.Close()

	root := *templateRoot
	if root == "" {
		root = proj.Config.Sync.TemplateRoot
	}
	if root == "" {
		fmt.Fprintln(os.Stderr, "sync: no template root configured (--template-root or sync.template_root)")
		return exitUsage
	}

	engine := templatesync.New(root, workingRoot(proj.Root), manifestPath(proj.Root), archiveDir(proj.Root), proj.Store, logger)

	if *check {
		needed, err := engine.NeedsSync(ctx, *templateVersion)
		if err != nil {
			return fail(globals, err)
		}
		if globals.JSON {
			return emitJSON(map[string]bool{"needsSync": needed})
		}
		if needed {
			fmt.Println("sync needed")
		} else {
			fmt.Println("up to date")
		}
		return exitOK
	}

	opts := templatesync.Options{
		DryRun:          *dryRun,
		ArchiveRemoved:  proj.Config.Sync.ArchiveRemoved && !*noArchive,
		TemplateVersion: *templateVersion,
		K0ntextVersion:  version,
		WithDiff:        *withDiff,
		BackupMode:      templatesync.BackupModeFile,
	}
	if proj.Config.Sync.BackupMode == string(templatesync.BackupModeGitStash) {
		repo, err := gitutil.Discover(ctx, proj.Root)
		if err != nil {
			return fail(globals, err)
		}
		opts.BackupMode = templatesync.BackupModeGitStash
		opts.GitRepo = repo
	}

	switch {
	case *dryRun:
		opts.ConflictStrategy = templatesync.StrategyDryRun
	case *force:
		opts.ConflictStrategy = templatesync.StrategyForce
	case *keepLocal:
		opts.ConflictStrategy = templatesync.StrategyBatch
		opts.Batch = func(ctx context.Context, conflicts []templatesync.FileComparison) (templatesync.BatchDecision, error) {
			return templatesync.BatchKeepAll, nil
		}
	case globals.JSON:
		// No prompting surface in JSON mode: leave conflicts untouched.
		opts.ConflictStrategy = templatesync.StrategyBatch
		opts.Batch = func(ctx context.Context, conflicts []templatesync.FileComparison) (templatesync.BatchDecision, error) {
			return templatesync.BatchKeepAll, nil
		}
	default:
		opts.ConflictStrategy = templatesync.StrategyBatch
		opts.Batch = batchPrompt
		opts.Prompt = conflictPrompt
	}

	result, err := engine.Sync(ctx, opts)
	if err != nil {
		return fail(globals, err)
	}
	metrics.SyncOutcomes.WithLabelValues("created").Add(float64(result.Created))
	metrics.SyncOutcomes.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.SyncOutcomes.WithLabelValues("conflict").Add(float64(len(result.Conflicts)))
	metrics.SyncOutcomes.WithLabelValues("archived").Add(float64(len(result.Archived)))
	metrics.SyncDuration.Observe(result.Duration.Seconds())

	if globals.JSON {
		return emitJSON(result)
	}
	if result.DryRun {
		fmt.Println("dry run; no changes made:")
		for _, fc := range result.Report {
			fmt.Printf("  %-12s %s\n", fc.State, fc.Path)
		}
		return exitOK
	}
	fmt.Printf("sync complete: %d created, %d updated, %d conflicts, %d archived, %d deleted (%s)\n",
		result.Created, result.Updated, len(result.Conflicts), len(result.Archived), result.Deleted,
		result.Duration.Round(timeRound))
	for _, p := range result.Skipped {
		logger.Debug("skipped", "path", p)
	}
	return exitOK
}

// batchPrompt implements the up-front batch choice on stdin.
func batchPrompt(ctx context.Context, conflicts []templatesync.FileComparison) (templatesync.BatchDecision, error) {
	fmt.Printf("%d conflicting files. [k]eep all local, [o]verwrite all, [i]ndividual? ", len(conflicts))
	switch readChoice() {
	case "o":
		return templatesync.BatchOverwriteAll, nil
	case "i":
		return templatesync.BatchIndividual, nil
	default:
		return templatesync.BatchKeepAll, nil
	}
}

// conflictPrompt implements the per-file interactive decision on stdin.
func conflictPrompt(ctx context.Context, fc templatesync.FileComparison, diff string) (templatesync.Decision, error) {
	if diff != "" {
		fmt.Println(diff)
	}
	fmt.Printf("conflict: %s  [d]iff, [k]eep local, [o]verwrite, [s]kip? ", fc.Path)
	switch readChoice() {
	case "d":
		return templatesync.DecisionShowDiff, nil
	case "o":
		return templatesync.DecisionOverwrite, nil
	case "s":
		return templatesync.DecisionSkip, nil
	default:
		return templatesync.DecisionKeepLocal, nil
	}
}

func readChoice() string {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}
