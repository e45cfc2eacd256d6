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

// Package templatesync performs the three-way merge between a canonical
// template tree, the user's working copy under .claude/, and the stored
// manifest of last-known-good hashes: classify every managed file into one
// of six states, apply safe changes automatically, and resolve conflicts
// through a pluggable policy.
package templatesync

import (
	"sort"

	"github.com/SireJeff/k0ntext/internal/manifest"
	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/scanner"
)

// State is one of the six classifications assigned to a managed file.
type State string

const (
	StateNew        State = "new"
	StateIdentical  State = "identical"
	StateSafeUpdate State = "safe-update"
	StateConflict   State = "conflict"
	StateUserOnly   State = "user-only"
	StateDeleted    State = "deleted"
)

// FileComparison is the per-path result of the three-way compare.
type FileComparison struct {
	Path         string
	State        State
	TemplateHash string // "" if the path does not exist in the template tree
	LocalHash    string // "" if the path does not exist in the working copy
	ManifestHash string // "" if no manifest entry exists for the path
	UserModified bool
	OriginalHash string
}

// fileSet indexes a scanner.ScanAndHash result by normalized relative path.
func fileSet(files []scanner.TemplateFile) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[pathutil.Normalize(f.RelPath)] = f.Hash
	}
	return out
}

// Compare classifies every template-side path plus every
// working-copy-only path against the loaded manifest.
// templateFiles and localFiles are typically the output of two
// scanner.ScanAndHash calls; m is the reconciled manifest (possibly empty).
func Compare(templateFiles, localFiles []scanner.TemplateFile, m manifest.Manifest) []FileComparison {
	templateMap := fileSet(templateFiles)
	localMap := fileSet(localFiles)

	paths := make(map[string]bool, len(templateMap)+len(localMap)+len(m.Files))
	for p := range templateMap {
		paths[p] = true
	}
	for p := range localMap {
		paths[p] = true
	}
	for p := range m.Files {
		paths[p] = true
	}

	out := make([]FileComparison, 0, len(paths))
	for p := range paths {
		tHash, inTemplate := templateMap[p]
		lHash, inLocal := localMap[p]
		entry, inManifest := m.Files[p]

		fc := FileComparison{Path: p, TemplateHash: tHash, LocalHash: lHash}
		if inManifest {
			fc.ManifestHash = entry.Hash
		}

		switch {
		case inTemplate && !inLocal:
			fc.State = StateNew

		case inTemplate && inLocal && lHash == tHash:
			fc.State = StateIdentical

		case inTemplate && inLocal && inManifest && lHash == entry.Hash:
			// Local still matches what was synced last; the template moved
			// forward underneath it (lHash == tHash was already excluded
			// above, so tHash != entry.Hash here).
			fc.State = StateSafeUpdate

		case inTemplate && inLocal:
			// Either there was no manifest entry at all (first sync ever
			// saw a pre-existing local file that differs from the
			// template), or the manifest entry exists but the local file
			// has drifted from it since the last sync. Both are treated
			// as user-modified conflicts.
			fc.State = StateConflict
			fc.UserModified = true
			fc.OriginalHash = entry.Hash
			if fc.OriginalHash == "" {
				// No manifest baseline ever existed for this path. Use the
				// current template hash as the best-known baseline so a
				// user-modified entry always carries a non-empty
				// originalHash once this comparison becomes a manifest
				// entry.
				fc.OriginalHash = tHash
			}

		case !inTemplate && inLocal && inManifest:
			fc.State = StateDeleted

		case !inTemplate && inLocal:
			fc.State = StateUserOnly

		default:
			// Neither side has the file; only a stale manifest entry
			// remains (e.g. already archived in a prior sync). Nothing to
			// report.
			continue
		}

		out = append(out, fc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Partition buckets comparisons by state, preserving lexicographic order
// within each bucket (Compare already sorts its input).
func Partition(comparisons []FileComparison) map[State][]FileComparison {
	out := map[State][]FileComparison{}
	for _, fc := range comparisons {
		out[fc.State] = append(out[fc.State], fc)
	}
	return out
}
