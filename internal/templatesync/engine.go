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
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/gitutil"
	"github.com/SireJeff/k0ntext/internal/logging"
	"github.com/SireJeff/k0ntext/internal/manifest"
	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/scanner"
	"github.com/SireJeff/k0ntext/internal/store"
)

// Engine implements C11, the Template Sync Engine: orchestrating
// Scanner -> Comparator -> Merger/Resolver, archiving removed files, and
// updating the manifest in the ICS.
type Engine struct {
	TemplateRoot     string // canonical template tree
	WorkingRoot      string // the project's .claude/ working copy
	ManifestJSONPath string // .claude/.k0ntext-manifest.json
	ArchiveDir       string // .k0ntext/archive

	Store  *store.Store
	Logger *slog.Logger
}

// New constructs an Engine. logger may be nil.
func New(templateRoot, workingRoot, manifestJSONPath, archiveDir string, s *store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		TemplateRoot:     templateRoot,
		WorkingRoot:      workingRoot,
		ManifestJSONPath: manifestJSONPath,
		ArchiveDir:       archiveDir,
		Store:            s,
		Logger:           logging.OrDefault(logger),
	}
}

// Options configures a Sync call.
type Options struct {
	DryRun           bool
	ArchiveRemoved   bool
	ConflictStrategy Strategy
	Prompt           Prompter
	Batch            BatchPrompter
	BackupMode       BackupMode
	GitRepo          *gitutil.Repo // required when BackupMode == BackupModeGitStash

	TemplateVersion string
	K0ntextVersion  string

	ScanExclude []string
	Concurrency int
	WithDiff    bool
}

// Result summarizes one Sync invocation.
type Result struct {
	Created int
	Updated int

	// Conflicts lists every path the Comparator classified as conflict,
	// regardless of how the Resolver disposed of it.
	Conflicts []string
	// Skipped lists paths the Resolver explicitly left untouched (decision
	// "skip"), plus paths already identical and requiring no action.
	Skipped []string
	// UserOnly lists working-copy-only paths (never touched by merge).
	UserOnly []string
	// Archived lists paths copied into ArchiveDir.
	Archived []string
	// Deleted counts working-copy files removed because the template
	// dropped them (a subset of Archived).
	Deleted int

	Duration time.Duration

	// DryRun is true when this Result came from a dry-run invocation: no
	// disk or manifest state changed, and Report holds the classification
	// that would have driven a real sync.
	DryRun bool
	Report []FileComparison
}

// NeedsSync is a read-only query a host can run before deciding whether
// to prompt for a sync: true if the template version differs from the
// manifest's, or any comparator row is non-identical.
func (e *Engine) NeedsSync(ctx context.Context, currentTemplateVersion string) (bool, error) {
	comparisons, m, err := e.compare(ctx, nil)
	if err != nil {
		return false, err
	}
	if m.NeedsUpdate(currentTemplateVersion) {
		return true, nil
	}
	for _, fc := range comparisons {
		if fc.State != StateIdentical {
			return true, nil
		}
	}
	return false, nil
}

// compare scans both trees, loads the reconciled manifest, and classifies
// every path.
func (e *Engine) compare(ctx context.Context, exclude []string) ([]FileComparison, manifest.Manifest, error) {
	templateFiles, err := scanner.ScanAndHash(ctx, e.TemplateRoot, scanner.Options{Exclude: exclude})
	if err != nil {
		return nil, manifest.Manifest{}, errkind.Wrap(errkind.IoFailure, "scan template tree", err)
	}
	localFiles, err := scanner.ScanAndHash(ctx, e.WorkingRoot, scanner.Options{Exclude: exclude})
	if err != nil {
		return nil, manifest.Manifest{}, errkind.Wrap(errkind.IoFailure, "scan working tree", err)
	}

	m, err := manifest.LoadReconciled(ctx, e.Store, e.ManifestJSONPath)
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			m = manifest.Empty("", "")
		} else {
			return nil, manifest.Manifest{}, err
		}
	}

	return Compare(templateFiles, localFiles, m), m, nil
}

// Sync runs the full sync pipeline: compare, apply safe updates and new
// files, resolve conflicts, archive removals, rebuild and persist the
// manifest, and record provenance.
func (e *Engine) Sync(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()

	comparisons, m, err := e.compare(ctx, opts.ScanExclude)
	if err != nil {
		return Result{}, err
	}
	buckets := Partition(comparisons)

	if opts.DryRun {
		return Result{DryRun: true, Report: comparisons, Duration: time.Since(start)}, nil
	}

	merger := &Merger{
		TemplateRoot: e.TemplateRoot,
		WorkingRoot:  e.WorkingRoot,
		BackupMode:   opts.BackupMode,
		GitRepo:      opts.GitRepo,
		WithDiff:     opts.WithDiff,
	}

	result := Result{}

	for _, fc := range buckets[StateIdentical] {
		result.Skipped = append(result.Skipped, fc.Path)
	}

	for _, fc := range buckets[StateNew] {
		if _, err := merger.Apply(ctx, fc); err != nil {
			return Result{}, err
		}
		result.Created++
	}
	for _, fc := range buckets[StateSafeUpdate] {
		if _, err := merger.Apply(ctx, fc); err != nil {
			return Result{}, err
		}
		result.Updated++
	}

	keepLocal := map[string]bool{}
	conflicts := buckets[StateConflict]
	if len(conflicts) > 0 {
		resolver := &Resolver{Strategy: opts.ConflictStrategy, Prompt: opts.Prompt, Batch: opts.Batch, Merger: merger}
		outcomes, err := resolver.Resolve(ctx, conflicts)
		if err != nil {
			return Result{}, err
		}
		for _, o := range outcomes {
			result.Conflicts = append(result.Conflicts, o.Path)
			switch o.Decision {
			case DecisionKeepLocal:
				keepLocal[o.Path] = true
			case DecisionSkip:
				result.Skipped = append(result.Skipped, o.Path)
			case DecisionOverwrite:
				result.Updated++
			}
		}
	}

	if opts.ArchiveRemoved {
		now := time.Now().UTC().Format("20060102T150405Z")
		for _, fc := range append(append([]FileComparison{}, buckets[StateUserOnly]...), buckets[StateDeleted]...) {
			archived, err := e.archive(fc.Path, now)
			if err != nil {
				return Result{}, err
			}
			if archived {
				result.Archived = append(result.Archived, fc.Path)
			}
			if fc.State == StateUserOnly {
				result.UserOnly = append(result.UserOnly, fc.Path)
				continue // preserved, not deleted
			}
			if err := os.Remove(e.workingPath(fc.Path)); err != nil && !os.IsNotExist(err) {
				return Result{}, errkind.Wrap(errkind.IoFailure, "delete archived file "+fc.Path, err)
			}
			result.Deleted++
		}
	} else {
		for _, fc := range buckets[StateUserOnly] {
			result.UserOnly = append(result.UserOnly, fc.Path)
		}
	}

	newManifest := e.rebuildManifest(m, comparisons, keepLocal, opts)
	if err := e.persistManifest(ctx, newManifest); err != nil {
		return Result{}, err
	}

	if err := e.updateProvenance(ctx, comparisons, newManifest, opts); err != nil {
		return Result{}, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// archive copies the working-copy file at rel into ArchiveDir,
// timestamped. Returns false if the file no longer exists on disk
// (e.g. a user-only row for a file that vanished between scan and apply).
func (e *Engine) archive(rel, timestamp string) (bool, error) {
	src := e.workingPath(rel)
	content, err := os.ReadFile(src) //nolint:gosec // rel is a scanned working-copy path
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errkind.Wrap(errkind.IoFailure, "read file to archive "+rel, err)
	}
	dest := filepath.Join(e.ArchiveDir, filepath.FromSlash(rel)+"."+timestamp+".archived")
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return false, errkind.Wrap(errkind.IoFailure, "create archive directory", err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil { //nolint:gosec // archive mirrors the original file's readability
		return false, errkind.Wrap(errkind.IoFailure, "write archive file", err)
	}
	return true, nil
}

func (e *Engine) workingPath(rel string) string {
	return filepath.Join(e.WorkingRoot, filepath.FromSlash(rel))
}

// rebuildManifest builds the post-sync manifest: one entry per
// template-present path, carrying userModified/originalHash only when the user chose
// keep-local for a conflict; entries for archived "deleted" paths are
// dropped by construction (they have no TemplateHash).
func (e *Engine) rebuildManifest(prev manifest.Manifest, comparisons []FileComparison, keepLocal map[string]bool, opts Options) manifest.Manifest {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	anyChange := false
	for _, fc := range comparisons {
		if fc.TemplateHash == "" {
			// A manifest entry for a template-absent path is about to be
			// dropped.
			if _, ok := prev.Files[fc.Path]; ok {
				anyChange = true
				break
			}
			continue
		}
		if fc.State != StateIdentical {
			anyChange = true
			break
		}
		if prevEntry, ok := prev.Files[fc.Path]; !ok || prevEntry.Hash != fc.TemplateHash {
			anyChange = true
			break
		}
	}

	updatedAt := prev.UpdatedAt
	if anyChange || updatedAt == "" {
		updatedAt = now
	}

	nm := manifest.Manifest{
		K0ntextVersion:  opts.K0ntextVersion,
		TemplateVersion: opts.TemplateVersion,
		CreatedAt:       prev.CreatedAt,
		UpdatedAt:       updatedAt,
		Files:           map[string]manifest.FileEntry{},
		Extra:           prev.Extra,
	}
	if nm.CreatedAt == "" {
		nm.CreatedAt = now
	}
	if nm.K0ntextVersion == "" {
		nm.K0ntextVersion = prev.K0ntextVersion
	}

	for _, fc := range comparisons {
		if fc.TemplateHash == "" {
			continue // not template-present: user-only or deleted, dropped
		}

		if fc.State == StateIdentical {
			// Nothing changed for this path: carry the prior entry over
			// byte-for-byte so an unchanged tree produces an unchanged
			// manifest. The carry is only valid while the prior entry still
			// describes the current template bytes; when the template has
			// converged onto locally-edited bytes (or no entry existed
			// yet), a stale hash/userModified pair must not survive, so a
			// fresh clean entry is recorded instead.
			if prevEntry, ok := prev.Files[fc.Path]; ok && prevEntry.Hash == fc.TemplateHash {
				nm.Files[fc.Path] = prevEntry
				continue
			}
			nm.Files[fc.Path] = manifest.FileEntry{
				Hash: fc.TemplateHash, TemplateVersion: opts.TemplateVersion, LastSyncedAt: now,
			}
			continue
		}

		entry := manifest.FileEntry{
			Hash:            fc.TemplateHash,
			TemplateVersion: opts.TemplateVersion,
			LastSyncedAt:    now,
		}
		if fc.State == StateConflict && keepLocal[fc.Path] {
			entry.UserModified = true
			entry.OriginalHash = fc.OriginalHash
		}
		nm.Files[fc.Path] = entry
	}
	return nm
}

// persistManifest writes nm to both the ICS row and the JSON mirror. If
// either write fails, the other side is rolled back to its pre-sync bytes.
func (e *Engine) persistManifest(ctx context.Context, nm manifest.Manifest) error {
	prevRow, rowErr := e.Store.LoadManifestRow(ctx)
	rowExisted := rowErr == nil

	if err := manifest.Save(ctx, e.Store, e.ManifestJSONPath, nm, manifest.SourceStore); err != nil {
		return errkind.Wrap(errkind.IoFailure, "persist manifest to store", err)
	}
	if err := manifest.Save(ctx, e.Store, e.ManifestJSONPath, nm, manifest.SourceFile); err != nil {
		// Roll back the store side to keep both sides consistent.
		if rowExisted {
			_ = e.Store.SaveManifestRow(ctx, prevRow)
		}
		return errkind.Wrap(errkind.IoFailure, "persist manifest to file", err)
	}
	return nil
}

// updateProvenance upserts a template_file ContextItem for every
// template-present path, so a manifest entry always has a matching item,
// and records aggregate version-tracking state.
func (e *Engine) updateProvenance(ctx context.Context, comparisons []FileComparison, nm manifest.Manifest, opts Options) error {
	anyUserModified := false
	for _, fc := range comparisons {
		if fc.TemplateHash == "" {
			continue
		}
		filePath := ".claude/" + pathutil.Normalize(fc.Path)
		content, err := os.ReadFile(e.workingPath(fc.Path)) //nolint:gosec // fc.Path is a scanned working-copy path
		if err != nil {
			continue // file may not exist yet if a prior step failed non-fatally; provenance is best-effort
		}
		name := filepath.Base(fc.Path)
		entry := nm.Files[fc.Path]
		if entry.UserModified {
			anyUserModified = true
		}
		if _, err := e.Store.UpsertItem(ctx, store.TypeTemplateFile, name, filePath, string(content), store.Metadata{
			"templateVersion": opts.TemplateVersion,
			"userModified":    entry.UserModified,
		}); err != nil {
			return fmt.Errorf("upsert template_file item %s: %w", fc.Path, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := e.Store.UpdateVersionTracking(ctx, "template", opts.TemplateVersion, anyUserModified, now, "", ""); err != nil {
		return err
	}
	return nil
}
