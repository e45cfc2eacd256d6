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

// Package scanner walks a template/source subtree with an exclude set and
// emits (relative path, size, mtime, hash) tuples, hashing files in
// parallel via a bounded worker pool. Progress reporting is an optional
// hook rather than a hard dependency.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SireJeff/k0ntext/internal/hashutil"
	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// TemplateFile is one scanned file result.
type TemplateFile struct {
	RelPath string
	Size    int64
	Mtime   time.Time
	Hash    string
}

// DefaultExcludes is the exclude set applied when none is configured.
var DefaultExcludes = []string{"node_modules", ".git", ".DS_Store", "*.log", ".k0ntext-manifest.json"}

// Options configures ScanAndHash.
type Options struct {
	// Subdirs are scanned relative to root; a missing subdirectory
	// contributes nothing and is not an error. An empty
	// Subdirs means "scan root itself".
	Subdirs []string
	// Exclude patterns support '*'/'?' glob wildcards and plain substring
	// match against the leaf name. Defaults to
	// DefaultExcludes when nil.
	Exclude []string
	// Concurrency bounds the hashing worker pool; defaults to
	// runtime.NumCPU().
	Concurrency int
	// Progress, if set, is called once per file after it is hashed.
	Progress func(path string)
}

// ScanAndHash walks root (restricted to Subdirs, or root itself when empty),
// skipping excluded entries, and returns every file found with its hash.
// Ordering of the result is unspecified; callers that need a
// deterministic order should sort on RelPath themselves.
func ScanAndHash(ctx context.Context, root string, opts Options) ([]TemplateFile, error) {
	excludes := opts.Exclude
	if excludes == nil {
		excludes = DefaultExcludes
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	roots := opts.Subdirs
	if len(roots) == 0 {
		roots = []string{"."}
	}

	var paths []string
	visited := make(map[string]bool)
	for _, sub := range roots {
		base := filepath.Join(root, filepath.FromSlash(sub))
		if _, err := os.Stat(base); os.IsNotExist(err) {
			continue // missing subdirectory is not an error
		}
		found, err := walk(base, root, excludes, visited)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	type job struct{ rel, full string }
	jobs := make(chan job, len(paths))
	results := make(chan TemplateFile, len(paths))
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				info, err := os.Stat(j.full)
				if err != nil {
					continue
				}
				hash := hashutil.HashFileSafe(j.full)
				results <- TemplateFile{RelPath: j.rel, Size: info.Size(), Mtime: info.ModTime(), Hash: hash}
				if opts.Progress != nil {
					opts.Progress(j.rel)
				}
			}
		}()
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		rel = pathutil.Normalize(rel)
		if seen[rel] {
			continue
		}
		seen[rel] = true
		jobs <- job{rel: rel, full: p}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []TemplateFile
	for r := range results {
		out = append(out, r)
	}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

// walk recurses into base, returning absolute paths of every file not
// excluded. Directories are always descended, including symlinks to
// directories (filepath.Walk lstats entries and never follows those
// itself, so they are recursed explicitly); a symlink to a file outside
// root is not followed. visited tracks resolved directory targets so a
// symlink cycle terminates.
func walk(base, root string, excludes []string, visited map[string]bool) ([]string, error) {
	if real, err := filepath.EvalSymlinks(base); err == nil {
		if visited[real] {
			return nil, nil
		}
		visited[real] = true
	}

	var out []string
	err := filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // per-entry walk errors are skipped, not fatal to the scan
		}
		name := info.Name()
		if isExcluded(name, excludes) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(p)
			if err != nil {
				return nil
			}
			targetInfo, err := os.Stat(target)
			if err != nil {
				return nil
			}
			if targetInfo.IsDir() {
				sub, subErr := walk(target, root, excludes, visited)
				if subErr != nil {
					return nil //nolint:nilerr // a broken link target skips, like any per-entry error
				}
				// Files found under the target re-home onto the link path
				// so their relative paths stay inside root.
				for _, s := range sub {
					rel, relErr := filepath.Rel(target, s)
					if relErr != nil {
						continue
					}
					out = append(out, filepath.Join(p, rel))
				}
				return nil
			}
			if !strings.HasPrefix(target, root) {
				return nil // symlink to a file outside the project root: not followed
			}
			out = append(out, p)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func isExcluded(name string, patterns []string) bool {
	for _, pat := range patterns {
		if pat == name {
			return true
		}
		if strings.Contains(pat, "*") || strings.Contains(pat, "?") {
			if ok, _ := filepath.Match(pat, name); ok {
				return true
			}
			continue
		}
		if strings.Contains(name, pat) {
			return true
		}
	}
	return false
}
