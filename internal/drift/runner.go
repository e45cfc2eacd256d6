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

package drift

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/hashutil"
	"github.com/SireJeff/k0ntext/internal/logging"
	"github.com/SireJeff/k0ntext/internal/metrics"
	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/store"
)

// Finding is one AI-assisted drift observation from an external analyzer.
type Finding struct {
	Severity   Level
	Expected   string
	Actual     string
	Suggestion string
	Line       int
}

// Analyzer is the optional AI-assisted drift path: given a file path and
// its content, it returns findings. Authentication failures must surface
// as errkind.AuthFailure so the batch driver aborts the run instead of
// failing once per document.
type Analyzer interface {
	Analyze(ctx context.Context, path, content string) ([]Finding, error)
}

// RunnerOptions configures a batch drift check.
type RunnerOptions struct {
	// Concurrency bounds the document-checking worker pool; defaults to
	// runtime.NumCPU().
	Concurrency int
	// Store, when set, is consulted for each document's last-recorded hash
	// so "content changed since last index" is reported separately from
	// reference drift.
	Store *store.Store
	// Analyzer, when set, contributes AI-assisted findings per document.
	Analyzer Analyzer
	Logger   *slog.Logger
}

// BatchResult is the outcome of checking many documents: the aggregated
// report plus per-file failures, accumulated rather than aborting the
// batch.
type BatchResult struct {
	Report   Report
	Failures map[string]string // doc path -> error message
}

// CheckDocuments checks each document concurrently through a bounded
// worker pool. The batch aborts early only on cancellation or an
// AuthFailure from the analyzer; any other per-document error lands in
// Failures.
func CheckDocuments(ctx context.Context, docPaths []string, projectRoot string, opts RunnerOptions) (BatchResult, error) {
	logger := logging.OrDefault(opts.Logger)
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if concurrency > len(docPaths) && len(docPaths) > 0 {
		concurrency = len(docPaths)
	}

	var mu sync.Mutex
	result := BatchResult{Failures: map[string]string{}}
	var docs []DocumentDrift
	var abortErr error

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if ctx.Err() != nil {
					return
				}
				dd, err := checkOne(ctx, path, projectRoot, opts)
				mu.Lock()
				if err != nil {
					if errkind.Is(err, errkind.AuthFailure) {
						if abortErr == nil {
							abortErr = err
						}
					} else {
						result.Failures[path] = err.Error()
					}
				} else {
					docs = append(docs, dd)
					metrics.DriftHealthScore.Observe(float64(dd.HealthScore))
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range docPaths {
		mu.Lock()
		stop := abortErr != nil
		mu.Unlock()
		if stop || ctx.Err() != nil {
			break
		}
		select {
		case jobs <- path:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if abortErr != nil {
		return result, abortErr
	}
	if ctx.Err() != nil {
		return result, errkind.Wrap(errkind.Cancelled, "drift check cancelled", ctx.Err())
	}

	result.Report = Aggregate(docs)
	if len(result.Failures) > 0 {
		logger.Warn("drift check completed with per-document failures", "count", len(result.Failures))
	}
	return result, nil
}

// checkOne runs the reference check for one document, then layers on the
// content-changed signal and any analyzer findings.
func checkOne(ctx context.Context, docPath, projectRoot string, opts RunnerOptions) (DocumentDrift, error) {
	dd, err := CheckDocument(docPath, projectRoot)
	if err != nil {
		return DocumentDrift{}, errkind.Wrap(errkind.IoFailure, "check document", err)
	}

	if opts.Store != nil {
		changed, err := contentChanged(ctx, opts.Store, docPath, projectRoot)
		if err == nil {
			dd.ContentChanged = changed
		}
	}

	if opts.Analyzer != nil {
		content := readFileString(docPath)
		findings, err := opts.Analyzer.Analyze(ctx, docPath, content)
		if err != nil {
			// AuthFailure propagates so the batch driver can abort; any
			// other analyzer error degrades to the regex-only result.
			if errkind.Is(err, errkind.AuthFailure) || errkind.Is(err, errkind.Cancelled) {
				return DocumentDrift{}, err
			}
		} else {
			for _, f := range findings {
				dd.Findings = append(dd.Findings, f)
				if f.Severity > dd.Level {
					dd.Level = f.Severity
					dd.Status = statusFor(dd.Level)
				}
			}
		}
	}

	return dd, nil
}

// contentChanged compares the document's current hash against the hash
// the ICS recorded at last index. This is deliberately NOT a drift issue:
// a document can change without any reference going stale, and stale
// references can survive an unchanged document, so the two signals are
// reported apart.
func contentChanged(ctx context.Context, s *store.Store, docPath, projectRoot string) (bool, error) {
	rel := pathutil.Normalize(docPath)
	if pathutil.IsAbsolute(rel) {
		rel = pathutil.Relative(pathutil.Normalize(projectRoot), rel)
	}
	ts, err := s.GetFileTimestamp(ctx, rel)
	if err != nil {
		return false, err // NotFound: never indexed, nothing to compare
	}
	current := hashutil.HashFileSafe(docPath)
	if current == "" {
		return false, errkind.New(errkind.IoFailure, "could not hash "+docPath)
	}
	return current != ts.Hash, nil
}
