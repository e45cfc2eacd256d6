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

// Package indexer walks a project's source and documentation files and
// feeds them into the store as typed ContextItems, recording per-file
// timestamps and, when an embedder is configured, dense vectors. The run
// proceeds in phases (scan, classify and write, embed) with an optional
// progress callback per phase; per-file errors are counted and reported,
// while authentication failures abort the run.
package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SireJeff/k0ntext/internal/config"
	"github.com/SireJeff/k0ntext/internal/embed"
	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/gitutil"
	"github.com/SireJeff/k0ntext/internal/logging"
	"github.com/SireJeff/k0ntext/internal/metrics"
	"github.com/SireJeff/k0ntext/internal/scanner"
	"github.com/SireJeff/k0ntext/internal/store"
)

// ProgressCallback reports pipeline progress: current item (1-based),
// total items, and the phase name ("scanning", "indexing", "embedding").
type ProgressCallback func(current, total int64, phase string)

// Indexer drives one project's indexing runs.
type Indexer struct {
	Root     string
	Store    *store.Store
	Embedder embed.Embedder // nil disables the embedding phase
	Logger   *slog.Logger

	// Exclude overrides the scanner's default exclude set when non-nil.
	Exclude []string
	// MaxFileSize skips files larger than this many bytes; 0 means no cap.
	MaxFileSize int64
	// Concurrency bounds the worker pool; defaults to runtime.NumCPU().
	Concurrency int

	onProgress ProgressCallback
}

// New constructs an Indexer from the project configuration. logger may be
// nil.
func New(root string, s *store.Store, e embed.Embedder, cfg config.IndexingConfig, logger *slog.Logger) *Indexer {
	return &Indexer{
		Root:        root,
		Store:       s,
		Embedder:    e,
		Logger:      logging.OrDefault(logger),
		Exclude:     cfg.Exclude,
		MaxFileSize: cfg.MaxFileSize,
		Concurrency: cfg.Concurrency,
	}
}

// SetProgressCallback registers cb for progress reporting. Pass nil to
// disable.
func (ix *Indexer) SetProgressCallback(cb ProgressCallback) { ix.onProgress = cb }

func (ix *Indexer) progress(current, total int64, phase string) {
	if ix.onProgress != nil {
		ix.onProgress(current, total, phase)
	}
}

// Result summarizes one indexing run.
type Result struct {
	FilesScanned int
	ItemsIndexed int
	ItemsSkipped int
	Embedded     int
	EmbedErrors  int
	Failures     map[string]string // path -> error message
	Duration     time.Duration
}

// Run indexes every eligible file under Root. Per-file failures are
// accumulated into Result.Failures and do not abort the batch; an
// AuthFailure from the embedder aborts the run.
func (ix *Indexer) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{Failures: map[string]string{}}

	scanStart := time.Now()
	files, err := scanner.ScanAndHash(ctx, ix.Root, scanner.Options{
		Exclude:     ix.Exclude,
		Concurrency: ix.Concurrency,
		Progress:    func(string) { metrics.FilesHashed.Inc() },
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, errkind.Wrap(errkind.Cancelled, "index scan cancelled", ctx.Err())
		}
		return result, err
	}
	metrics.ObserveDuration(metrics.ScanDuration, scanStart)
	result.FilesScanned = len(files)
	ix.progress(int64(len(files)), int64(len(files)), "scanning")

	// Deterministic work order keeps progress readable and makes repeated
	// runs comparable.
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	gitCommit := ix.headSHA(ctx)

	var indexable []scanner.TemplateFile
	for _, f := range files {
		if classify(f.RelPath) == "" {
			result.ItemsSkipped++
			continue
		}
		if ix.MaxFileSize > 0 && f.Size > ix.MaxFileSize {
			result.ItemsSkipped++
			continue
		}
		indexable = append(indexable, f)
	}

	items, err := ix.writeItems(ctx, indexable, gitCommit, &result)
	if err != nil {
		return result, err
	}

	if ix.Embedder != nil {
		if err := ix.embedItems(ctx, items, &result); err != nil {
			return result, err
		}
	}

	result.Duration = time.Since(start)
	ix.Logger.Info("indexing complete",
		"files", result.FilesScanned,
		"items", result.ItemsIndexed,
		"skipped", result.ItemsSkipped,
		"embedded", result.Embedded,
		"failures", len(result.Failures),
		"duration", result.Duration)
	return result, nil
}

// writeItems upserts one ContextItem and one FileTimestamp per file,
// through a bounded worker pool. The ICS serializes writers internally, so
// the pool mainly parallelizes file reads.
func (ix *Indexer) writeItems(ctx context.Context, files []scanner.TemplateFile, gitCommit string, result *Result) ([]store.ContextItem, error) {
	concurrency := ix.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	var mu sync.Mutex
	var items []store.ContextItem
	var done int64
	total := int64(len(files))

	jobs := make(chan scanner.TemplateFile)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				if ctx.Err() != nil {
					return
				}
				item, err := ix.indexOne(ctx, f, gitCommit)
				mu.Lock()
				if err != nil {
					result.Failures[f.RelPath] = err.Error()
				} else {
					items = append(items, item)
					result.ItemsIndexed++
					metrics.ItemsIndexed.WithLabelValues(string(item.Type)).Inc()
				}
				done++
				ix.progress(done, total, "indexing")
				mu.Unlock()
			}
		}()
	}
	for _, f := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return items, errkind.Wrap(errkind.Cancelled, "indexing cancelled", ctx.Err())
		case jobs <- f:
		}
	}
	close(jobs)
	wg.Wait()
	if ctx.Err() != nil {
		return items, errkind.Wrap(errkind.Cancelled, "indexing cancelled", ctx.Err())
	}
	return items, nil
}

func (ix *Indexer) indexOne(ctx context.Context, f scanner.TemplateFile, gitCommit string) (store.ContextItem, error) {
	full := filepath.Join(ix.Root, filepath.FromSlash(f.RelPath))
	content, err := os.ReadFile(full) //nolint:gosec // f.RelPath comes from a scan of the project's own tree
	if err != nil {
		return store.ContextItem{}, errkind.Wrap(errkind.IoFailure, "read "+f.RelPath, err)
	}

	itemType := classify(f.RelPath)
	name := filepath.Base(f.RelPath)
	item, err := ix.Store.UpsertItem(ctx, itemType, name, f.RelPath, string(content), store.Metadata{
		"size":   f.Size,
		"format": strings.TrimPrefix(filepath.Ext(f.RelPath), "."),
	})
	if err != nil {
		return store.ContextItem{}, err
	}

	if err := ix.Store.UpsertFileTimestamp(ctx, store.FileTimestamp{
		Path:      f.RelPath,
		Mtime:     f.Mtime,
		Size:      f.Size,
		Hash:      f.Hash,
		GitCommit: gitCommit,
	}); err != nil {
		return store.ContextItem{}, err
	}
	return item, nil
}

// embedItems runs the embedding phase serially: remote providers
// rate-limit anyway, and an AuthFailure must abort before more calls go
// out.
func (ix *Indexer) embedItems(ctx context.Context, items []store.ContextItem, result *Result) error {
	total := int64(len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return errkind.Wrap(errkind.Cancelled, "embedding cancelled", err)
		}
		vec, err := ix.Embedder.Embed(ctx, item.Content)
		if err != nil {
			if errkind.Is(err, errkind.AuthFailure) || errkind.Is(err, errkind.Cancelled) {
				return err
			}
			result.EmbedErrors++
			ix.Logger.Warn("embedding failed", "path", item.FilePath, "error", err)
			continue
		}
		if err := ix.Store.StoreEmbedding(ctx, item.ID, vec, false); err != nil {
			result.EmbedErrors++
			ix.Logger.Warn("storing embedding failed", "path", item.FilePath, "error", err)
			continue
		}
		result.Embedded++
		ix.progress(int64(i+1), total, "embedding")
	}
	return nil
}

// headSHA best-effort discovers the repository HEAD for
// FileTimestamp.GitCommit; a non-git project simply leaves it empty.
func (ix *Indexer) headSHA(ctx context.Context) string {
	repo, err := gitutil.Discover(ctx, ix.Root)
	if err != nil {
		return ""
	}
	sha, err := repo.HeadSHA(ctx)
	if err != nil {
		return ""
	}
	return sha
}

// docExtensions and codeExtensions drive item-type classification.
var (
	docExtensions  = map[string]bool{".md": true, ".rst": true, ".txt": true, ".adoc": true}
	codeExtensions = map[string]bool{
		".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
		".go": true, ".rs": true, ".rb": true,
	}
	toolConfigNames = map[string]bool{
		".clinerules": true, ".cursorrules": true, ".aider.conf.yml": true,
		"copilot-instructions.md": true, "AI_CONTEXT.md": true,
	}
	configExtensions = map[string]bool{".yaml": true, ".yml": true, ".json": true, ".toml": true}
)

// classify maps a relative path to the ItemType the ICS should store it
// as. An empty return means the file is not indexed.
func classify(relPath string) store.ItemType {
	base := filepath.Base(relPath)
	if toolConfigNames[base] {
		return store.TypeToolConfig
	}
	if strings.HasPrefix(relPath, ".claude/") {
		return store.TypeTemplateFile
	}
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case docExtensions[ext]:
		return store.TypeDoc
	case codeExtensions[ext]:
		return store.TypeCode
	case configExtensions[ext]:
		return store.TypeConfig
	default:
		return ""
	}
}
