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

// Package anchor resolves a "file::symbol()" token against the live
// source tree, returning the declaration's current line and body hash or
// a diagnostic with candidate names.
package anchor

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/SireJeff/k0ntext/internal/pathutil"
	"github.com/SireJeff/k0ntext/internal/symbols"
)

// Reason enumerates why a Resolution failed.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonFormat        Reason = "format"
	ReasonMissingFile   Reason = "missing_file"
	ReasonSymbolMissing Reason = "symbol_not_found"
)

// Resolution is the outcome of resolving an anchor.
type Resolution struct {
	OK            bool
	Reason        Reason
	Line          int
	Signature     string
	BodyHash      string
	Kind          symbols.Kind
	Candidates    []string
	KindAmbiguous bool
}

var anchorFormatRe = regexp.MustCompile(`^(.+)::([A-Za-z_]\w*)\(\)$`)

// Parse splits "file::name()" into its file and symbol parts. ok is false
// on malformed input.
func Parse(anchorText string) (file, name string, ok bool) {
	m := anchorFormatRe.FindStringSubmatch(anchorText)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Resolve resolves anchorText ("file::name()") against projectRoot.
func Resolve(anchorText, projectRoot string) Resolution {
	file, name, ok := Parse(anchorText)
	if !ok {
		return Resolution{OK: false, Reason: ReasonFormat}
	}
	file = pathutil.Normalize(file)

	fullPath := file
	if !pathutil.IsAbsolute(file) {
		fullPath = filepath.Join(projectRoot, filepath.FromSlash(file))
	}
	content, err := os.ReadFile(fullPath) //nolint:gosec // path derives from documentation the caller already trusts
	if err != nil {
		return Resolution{OK: false, Reason: ReasonMissingFile}
	}

	decls := symbols.Extract(file, string(content))

	var matches []symbols.Symbol
	seen := make(map[string]bool)
	var candidates []string
	for _, d := range decls {
		if !seen[d.Name] {
			seen[d.Name] = true
			candidates = append(candidates, d.Name)
		}
		if d.Name == name {
			matches = append(matches, d)
		}
	}

	if len(matches) == 0 {
		return Resolution{OK: false, Reason: ReasonSymbolMissing, Candidates: candidates}
	}

	first := matches[0]
	ambiguous := false
	for _, m := range matches[1:] {
		if m.Kind != first.Kind {
			ambiguous = true
			break
		}
	}

	return Resolution{
		OK:            true,
		Line:          first.LineNumber,
		Signature:     first.SignatureLine,
		BodyHash:      first.BodyHash,
		Kind:          first.Kind,
		KindAmbiguous: ambiguous || len(matches) > 1,
	}
}

// String renders an anchor back to its canonical "file::name()" form.
func String(file, name string) string {
	return strings.TrimSuffix(file, "/") + "::" + name + "()"
}
