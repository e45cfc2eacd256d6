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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/hashutil"
	"github.com/SireJeff/k0ntext/internal/store"
)

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// Mirrors the literal aggregation scenario: four references, one valid
// file, one valid anchor, one missing file, one stale line.
func TestCheckDocumentAggregation(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/ok.go", "package ok\n\nfunc Run() {\n}\n")
	writeProjectFile(t, root, "src/short.go", "package short\n")

	doc := "Valid file `src/ok.go`, valid anchor src/ok.go::Run(), " +
		"missing `src/gone.go`, stale line src/short.go:99.\n"
	writeProjectFile(t, root, "docs/overview.md", doc)

	dd, err := CheckDocument(filepath.Join(root, "docs/overview.md"), root)
	require.NoError(t, err)

	assert.Equal(t, 4, dd.Total)
	assert.Equal(t, 2, dd.Valid)
	assert.Len(t, dd.Issues, 2)
	assert.Equal(t, 50, dd.HealthScore)
	assert.Equal(t, StatusCritical, dd.Status)
	assert.Equal(t, LevelCritical, dd.Level)
}

func TestCheckDocumentEmptyIsHealthy(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "docs/empty.md", "no references here\n")

	dd, err := CheckDocument(filepath.Join(root, "docs/empty.md"), root)
	require.NoError(t, err)
	assert.Equal(t, 100, dd.HealthScore)
	assert.Equal(t, StatusHealthy, dd.Status)
	assert.Equal(t, LevelNone, dd.Level)
}

func TestHealthScoreMonotonicity(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/a.go", "package a\n")

	writeProjectFile(t, root, "docs/d.md", "See `src/a.go`.\n")
	before, err := CheckDocument(filepath.Join(root, "docs/d.md"), root)
	require.NoError(t, err)

	writeProjectFile(t, root, "docs/d.md", "See `src/a.go` and `src/missing.go`.\n")
	after, err := CheckDocument(filepath.Join(root, "docs/d.md"), root)
	require.NoError(t, err)

	assert.LessOrEqual(t, after.HealthScore, before.HealthScore,
		"adding a broken reference cannot increase the score")
}

func TestMissingFileCarriesSuggestion(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "pkg/util/helpers.go", "package util\n")
	writeProjectFile(t, root, "docs/d.md", "See `src/helpers.go`.\n")

	dd, err := CheckDocument(filepath.Join(root, "docs/d.md"), root)
	require.NoError(t, err)
	require.Len(t, dd.Issues, 1)
	assert.Equal(t, LevelCritical, dd.Issues[0].Level)
	assert.Equal(t, "pkg/util/helpers.go", dd.Issues[0].Suggestion)
}

func TestDirectoryAndLinkValidation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal/store"), 0o750))
	writeProjectFile(t, root, "docs/guide.md", "target\n")
	writeProjectFile(t, root, "docs/d.md",
		"Dir `internal/store/`, missing dir `internal/gone/`, link [g](./guide.md), broken [b](./gone.md#frag).\n")

	dd, err := CheckDocument(filepath.Join(root, "docs/d.md"), root)
	require.NoError(t, err)
	assert.Equal(t, 4, dd.Total)
	assert.Equal(t, 2, dd.Valid)
	assert.Equal(t, LevelMedium, dd.Level)
	assert.Equal(t, StatusNeedsUpdate, dd.Status)
}

func TestWindowsPathNormalizesBeforeValidation(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a/b.md", strings.Repeat("line\n", 15))
	writeProjectFile(t, root, "docs/d.md", `See a\b.md:12 for details.`)

	dd, err := CheckDocument(filepath.Join(root, "docs/d.md"), root)
	require.NoError(t, err)
	assert.Equal(t, 1, dd.Total)
	assert.Equal(t, 1, dd.Valid, "a\\b.md:12 must validate identically to a/b.md:12")
}

func TestCalculateLevel(t *testing.T) {
	assert.Equal(t, LevelNone, CalculateLevel(nil))
	assert.Equal(t, LevelHigh, CalculateLevel([]Issue{{Level: LevelMedium}, {Level: LevelHigh}}))
}

func TestAggregateOverallHealth(t *testing.T) {
	r := Aggregate([]DocumentDrift{
		{DocPath: "b.md", HealthScore: 100, Status: StatusHealthy},
		{DocPath: "a.md", HealthScore: 50, Status: StatusCritical},
	})
	assert.Equal(t, 2, r.TotalDocs)
	assert.Equal(t, 1, r.HealthyDocs)
	assert.InDelta(t, 75.0, r.OverallHealth, 1e-9)
	assert.Equal(t, "a.md", r.Documents[0].DocPath, "documents ordered by path")
}

func TestCheckDocumentsBatch(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "src/a.go", "package a\n")
	writeProjectFile(t, root, "docs/good.md", "See `src/a.go`.\n")
	writeProjectFile(t, root, "docs/bad.md", "See `src/gone.go`.\n")

	result, err := CheckDocuments(context.Background(), []string{
		filepath.Join(root, "docs/good.md"),
		filepath.Join(root, "docs/bad.md"),
	}, root, RunnerOptions{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Report.TotalDocs)
	assert.Equal(t, 1, result.Report.HealthyDocs)
	assert.Empty(t, result.Failures)
}

func TestCheckDocumentsAccumulatesFailures(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "docs/good.md", "fine\n")
	missing := filepath.Join(root, "docs/absent.md")

	result, err := CheckDocuments(context.Background(), []string{
		filepath.Join(root, "docs/good.md"),
		missing,
	}, root, RunnerOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.TotalDocs)
	assert.Contains(t, result.Failures, missing)
}

type authFailAnalyzer struct{}

func (authFailAnalyzer) Analyze(ctx context.Context, path, content string) ([]Finding, error) {
	return nil, errkind.New(errkind.AuthFailure, "credentials refused")
}

func TestCheckDocumentsAbortsOnAuthFailure(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "docs/a.md", "a\n")
	writeProjectFile(t, root, "docs/b.md", "b\n")

	_, err := CheckDocuments(context.Background(), []string{
		filepath.Join(root, "docs/a.md"),
		filepath.Join(root, "docs/b.md"),
	}, root, RunnerOptions{Analyzer: authFailAnalyzer{}, Concurrency: 1})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.AuthFailure))
}

type severityAnalyzer struct{}

func (severityAnalyzer) Analyze(ctx context.Context, path, content string) ([]Finding, error) {
	return []Finding{{Severity: LevelHigh, Expected: "v2 API", Actual: "doc describes v1"}}, nil
}

func TestAnalyzerFindingsRaiseLevel(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "docs/a.md", "no refs\n")

	result, err := CheckDocuments(context.Background(), []string{
		filepath.Join(root, "docs/a.md"),
	}, root, RunnerOptions{Analyzer: severityAnalyzer{}})
	require.NoError(t, err)
	require.Len(t, result.Report.Documents, 1)
	doc := result.Report.Documents[0]
	assert.Equal(t, LevelHigh, doc.Level)
	assert.Equal(t, StatusStale, doc.Status)
	require.Len(t, doc.Findings, 1)
}

func TestContentChangedSignalIsSeparate(t *testing.T) {
	root := t.TempDir()
	s, err := store.Open(filepath.Join(root, ".k0ntext.db"), store.Options{EmbeddingDim: 4})
	require.NoError(t, err)
	defer s.Close()

	writeProjectFile(t, root, "docs/a.md", "version one\n")
	docAbs := filepath.Join(root, "docs/a.md")

	// Record the indexed hash, then edit the file.
	require.NoError(t, s.UpsertFileTimestamp(context.Background(), store.FileTimestamp{
		Path: "docs/a.md", Size: 12, Hash: hashutil.HashString("version one\n"),
	}))
	writeProjectFile(t, root, "docs/a.md", "version two\n")

	result, err := CheckDocuments(context.Background(), []string{docAbs}, root, RunnerOptions{Store: s})
	require.NoError(t, err)
	require.Len(t, result.Report.Documents, 1)
	doc := result.Report.Documents[0]
	assert.True(t, doc.ContentChanged)
	assert.Empty(t, doc.Issues, "content change is not a reference-drift issue")
	assert.Equal(t, StatusHealthy, doc.Status)
}
