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

// Package drift resolves the references a documentation file makes
// against the current source tree and aggregates them into a per-document
// health score: compare recorded state against live state, classify each
// mismatch, aggregate.
package drift

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SireJeff/k0ntext/internal/anchor"
	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/symbols"
)

// Level is one of the five ordered drift levels.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

// Status is the per-document categorization.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusNeedsUpdate Status = "needs_update"
	StatusStale       Status = "stale"
	StatusCritical    Status = "critical"
)

// Issue is one invalid reference found in a document.
type Issue struct {
	Reference  symbols.Reference
	Level      Level
	Message    string
	Suggestion string
}

// DocumentDrift is the result of checking one documentation file.
type DocumentDrift struct {
	DocPath     string
	Total       int
	Valid       int
	Issues      []Issue
	HealthScore int
	Status      Status
	Level       Level

	// ContentChanged reports that the document's bytes differ from the
	// hash recorded at last index. Kept apart from Issues: a changed
	// document is not the same signal as a stale reference.
	ContentChanged bool
	// Findings holds AI-assisted analyzer observations, when an Analyzer
	// was configured for the run.
	Findings []Finding
}

// CalculateLevel returns the maximum level present in issues, or
// LevelNone if issues is empty.
func CalculateLevel(issues []Issue) Level {
	max := LevelNone
	for _, i := range issues {
		if i.Level > max {
			max = i.Level
		}
	}
	return max
}

// CheckDocument reads docPath, extracts its references, validates each
// against projectRoot, and returns the aggregated drift.
func CheckDocument(docPath, projectRoot string) (DocumentDrift, error) {
	content, err := os.ReadFile(docPath) //nolint:gosec // docPath is caller-supplied project content
	if err != nil {
		return DocumentDrift{}, fmt.Errorf("read document %s: %w", docPath, err)
	}

	refs := symbols.ExtractReferences(string(content))
	docDir := filepath.Dir(docPath)

	dd := DocumentDrift{DocPath: pathutil.Normalize(docPath), Total: len(refs)}
	for _, ref := range refs {
		issue, ok := validate(ref, projectRoot, docDir)
		if ok {
			dd.Valid++
			continue
		}
		dd.Issues = append(dd.Issues, issue)
	}

	if dd.Total == 0 {
		dd.HealthScore = 100
	} else {
		dd.HealthScore = int(round(100 * float64(dd.Valid) / float64(dd.Total)))
	}
	dd.Level = CalculateLevel(dd.Issues)
	dd.Status = statusFor(dd.Level)
	return dd, nil
}

func statusFor(level Level) Status {
	switch level {
	case LevelCritical:
		return StatusCritical
	case LevelHigh:
		return StatusStale
	case LevelMedium, LevelLow:
		return StatusNeedsUpdate
	default:
		return StatusHealthy
	}
}

func round(f float64) float64 {
	if f >= 0 {
		return float64(int(f + 0.5))
	}
	return float64(int(f - 0.5))
}

// validate checks one reference against the live tree. ok is true when
// the reference is valid and contributes no issue.
func validate(ref symbols.Reference, projectRoot, docDir string) (Issue, bool) {
	switch ref.Kind {
	case symbols.RefFile, symbols.RefFileLine:
		return validateFileOrLine(ref, projectRoot)
	case symbols.RefAnchor:
		return validateAnchor(ref, projectRoot)
	case symbols.RefDir:
		return validateDir(ref, projectRoot)
	case symbols.RefLink:
		return validateLink(ref, docDir)
	default:
		return Issue{}, true
	}
}

func resolveAgainst(root, path string) string {
	path = pathutil.Normalize(path)
	if pathutil.IsAbsolute(path) {
		return filepath.FromSlash(path)
	}
	return filepath.Join(root, filepath.FromSlash(path))
}

func validateFileOrLine(ref symbols.Reference, projectRoot string) (Issue, bool) {
	full := resolveAgainst(projectRoot, ref.Path)
	info, err := os.Stat(full)
	if err != nil {
		return Issue{
			Reference:  ref,
			Level:      LevelCritical,
			Message:    fmt.Sprintf("referenced file %q does not exist", ref.Path),
			Suggestion: suggestSimilar(projectRoot, ref.Path),
		}, false
	}
	if info.IsDir() {
		return Issue{Reference: ref, Level: LevelMedium, Message: fmt.Sprintf("%q is a directory, not a file", ref.Path)}, false
	}
	if ref.Kind != symbols.RefFileLine {
		return Issue{}, true
	}
	lineCount, err := countLines(full)
	if err != nil {
		return Issue{Reference: ref, Level: LevelHigh, Message: "could not read referenced file"}, false
	}
	if ref.Line > lineCount || ref.EndLine > lineCount {
		return Issue{
			Reference: ref,
			Level:     LevelHigh,
			Message:   fmt.Sprintf("line reference %d-%d exceeds file length %d", ref.Line, ref.EndLine, lineCount),
		}, false
	}
	return Issue{}, true
}

func validateAnchor(ref symbols.Reference, projectRoot string) (Issue, bool) {
	anchorText := anchor.String(ref.Path, ref.Symbol)
	res := anchor.Resolve(anchorText, projectRoot)
	if res.OK {
		return Issue{}, true
	}
	switch res.Reason {
	case anchor.ReasonMissingFile:
		return Issue{Reference: ref, Level: LevelCritical, Message: fmt.Sprintf("file %q for anchor does not exist", ref.Path)}, false
	case anchor.ReasonSymbolMissing:
		msg := fmt.Sprintf("symbol %q not found in %q", ref.Symbol, ref.Path)
		if len(res.Candidates) > 0 {
			msg += fmt.Sprintf(" (candidates: %s)", strings.Join(res.Candidates, ", "))
		}
		return Issue{Reference: ref, Level: LevelHigh, Message: msg}, false
	default:
		return Issue{Reference: ref, Level: LevelHigh, Message: "malformed anchor"}, false
	}
}

func validateDir(ref symbols.Reference, projectRoot string) (Issue, bool) {
	full := resolveAgainst(projectRoot, ref.Path)
	info, err := os.Stat(full)
	if err != nil {
		return Issue{Reference: ref, Level: LevelMedium, Message: fmt.Sprintf("referenced directory %q does not exist", ref.Path)}, false
	}
	if !info.IsDir() {
		return Issue{Reference: ref, Level: LevelMedium, Message: fmt.Sprintf("%q exists but is a file, not a directory", ref.Path)}, false
	}
	return Issue{}, true
}

func validateLink(ref symbols.Reference, docDir string) (Issue, bool) {
	target := ref.Path
	if idx := strings.Index(target, "#"); idx >= 0 {
		target = target[:idx]
	}
	if target == "" {
		return Issue{}, true // pure in-page fragment
	}
	full := target
	if !pathutil.IsAbsolute(target) {
		full = filepath.Join(docDir, filepath.FromSlash(target))
	}
	if _, err := os.Stat(full); err != nil {
		return Issue{Reference: ref, Level: LevelMedium, Message: fmt.Sprintf("linked file %q does not exist", ref.Path)}, false
	}
	return Issue{}, true
}

func readFileString(path string) string {
	b, err := os.ReadFile(path) //nolint:gosec // path derives from a resolved project file
	if err != nil {
		return ""
	}
	return string(b)
}

func countLines(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path derives from a resolved project file
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// suggestSimilar looks for a file elsewhere in projectRoot whose base name
// matches missingPath's, as a NotFound hint.
func suggestSimilar(projectRoot, missingPath string) string {
	base := filepath.Base(missingPath)
	var found string
	_ = filepath.Walk(projectRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" || info.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() == base {
			rel, relErr := filepath.Rel(projectRoot, p)
			if relErr == nil {
				found = pathutil.Normalize(rel)
			}
		}
		return nil
	})
	return found
}

// Report aggregates DocumentDrift results across many documents.
type Report struct {
	Documents     []DocumentDrift
	TotalDocs     int
	HealthyDocs   int
	OverallHealth float64
}

// Aggregate builds a Report from a slice of already-computed document
// results, ordered by DocPath for deterministic output.
func Aggregate(docs []DocumentDrift) Report {
	sorted := make([]DocumentDrift, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DocPath < sorted[j].DocPath })

	r := Report{Documents: sorted, TotalDocs: len(sorted)}
	if len(sorted) == 0 {
		return r
	}
	sum := 0.0
	for _, d := range sorted {
		sum += float64(d.HealthScore)
		if d.Status == StatusHealthy {
			r.HealthyDocs++
		}
	}
	r.OverallHealth = sum / float64(len(sorted))
	return r
}
