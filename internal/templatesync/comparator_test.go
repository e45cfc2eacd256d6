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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SireJeff/k0ntext/internal/manifest"
	"github.com/SireJeff/k0ntext/internal/scanner"
)

func tf(rel, hash string) scanner.TemplateFile {
	return scanner.TemplateFile{RelPath: rel, Hash: hash}
}

func TestCompareNewFile(t *testing.T) {
	comparisons := Compare(
		[]scanner.TemplateFile{tf("commands/init.md", "hash1")},
		nil,
		manifest.Empty("1", "1"),
	)
	assert.Len(t, comparisons, 1)
	assert.Equal(t, StateNew, comparisons[0].State)
	assert.Equal(t, "commands/init.md", comparisons[0].Path)
}

func TestCompareIdentical(t *testing.T) {
	comparisons := Compare(
		[]scanner.TemplateFile{tf("a.md", "same")},
		[]scanner.TemplateFile{tf("a.md", "same")},
		manifest.Empty("1", "1"),
	)
	assert.Equal(t, StateIdentical, comparisons[0].State)
}

func TestCompareSafeUpdate(t *testing.T) {
	m := manifest.Empty("1", "1")
	m.Files["agents/x.md"] = manifest.FileEntry{Hash: "A"}
	comparisons := Compare(
		[]scanner.TemplateFile{tf("agents/x.md", "B")},
		[]scanner.TemplateFile{tf("agents/x.md", "A")},
		m,
	)
	assert.Equal(t, StateSafeUpdate, comparisons[0].State)
	assert.Equal(t, "B", comparisons[0].TemplateHash)
}

func TestCompareConflictWithManifest(t *testing.T) {
	m := manifest.Empty("1", "1")
	m.Files["agents/x.md"] = manifest.FileEntry{Hash: "A"}
	comparisons := Compare(
		[]scanner.TemplateFile{tf("agents/x.md", "B")},
		[]scanner.TemplateFile{tf("agents/x.md", "A-prime")},
		m,
	)
	assert.Equal(t, StateConflict, comparisons[0].State)
	assert.True(t, comparisons[0].UserModified)
	assert.Equal(t, "A", comparisons[0].OriginalHash)
}

func TestCompareConflictWithoutManifest(t *testing.T) {
	comparisons := Compare(
		[]scanner.TemplateFile{tf("agents/x.md", "B")},
		[]scanner.TemplateFile{tf("agents/x.md", "A-prime")},
		manifest.Empty("1", "1"),
	)
	assert.Equal(t, StateConflict, comparisons[0].State)
	assert.True(t, comparisons[0].UserModified)
	// userModified implies a non-empty originalHash, even
	// with no prior manifest entry to draw one from.
	assert.NotEmpty(t, comparisons[0].OriginalHash)
}

func TestCompareUserOnly(t *testing.T) {
	comparisons := Compare(nil, []scanner.TemplateFile{tf("notes.md", "x")}, manifest.Empty("1", "1"))
	assert.Equal(t, StateUserOnly, comparisons[0].State)
}

func TestCompareDeletedWhenManifestKnewIt(t *testing.T) {
	m := manifest.Empty("1", "1")
	m.Files["old.md"] = manifest.FileEntry{Hash: "X"}
	comparisons := Compare(nil, []scanner.TemplateFile{tf("old.md", "X")}, m)
	assert.Equal(t, StateDeleted, comparisons[0].State)
}

func TestCompareConvergedBytesAreIdenticalNotConflict(t *testing.T) {
	m := manifest.Empty("1", "1")
	m.Files["a.md"] = manifest.FileEntry{Hash: "old"}
	comparisons := Compare(
		[]scanner.TemplateFile{tf("a.md", "same")},
		[]scanner.TemplateFile{tf("a.md", "same")},
		m,
	)
	assert.Equal(t, StateIdentical, comparisons[0].State)
}

func TestPartition(t *testing.T) {
	comparisons := Compare(
		[]scanner.TemplateFile{tf("new.md", "n")},
		[]scanner.TemplateFile{tf("mine.md", "m")},
		manifest.Empty("1", "1"),
	)
	buckets := Partition(comparisons)
	assert.Len(t, buckets[StateNew], 1)
	assert.Len(t, buckets[StateUserOnly], 1)
}
