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

package symbols

import (
	"regexp"

	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// ReferenceKind classifies an inline documentation reference token.
type ReferenceKind string

const (
	RefFileLine ReferenceKind = "file_line" // path/to/file.ext:NNN or :NNN-MMM
	RefDir      ReferenceKind = "directory" // `path/to/dir/`
	RefAnchor   ReferenceKind = "anchor"    // path/to/file.ext::identifier()
	RefLink     ReferenceKind = "link"      // [text](./relative.md)
	RefFile     ReferenceKind = "file"      // `path/to/file.ext`
)

// Reference is one inline token extracted from a documentation file.
type Reference struct {
	Kind      ReferenceKind
	Raw       string
	Path      string
	Line      int // 1-based; 0 if not a line reference
	EndLine   int // for ranges; equals Line when not a range
	Symbol    string
	LinkText  string
	SourceCol int
}

// Path character classes accept backslashes so Windows-style inputs like
// a\b.md:12 extract whole; paths are normalized to POSIX on the way out.
var (
	fileLineRe  = regexp.MustCompile(`([\w./\\\-]+\.\w+):(\d+)(?:-(\d+))?`)
	anchorRe    = regexp.MustCompile(`([\w./\\\-]+\.\w+)::([A-Za-z_]\w*)\(\)`)
	dirRe       = regexp.MustCompile("`([\\w./\\\\\\-]+/)`")
	fileRe      = regexp.MustCompile("`([\\w./\\\\\\-]+\\.\\w+)`")
	linkRe      = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	urlSchemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// ExtractReferences scans doc content for inline reference tokens, in the
// priority order anchor > file:line > link > directory > plain file, so a
// single token is not double-counted by a looser pattern.
func ExtractReferences(content string) []Reference {
	var refs []Reference
	var consumed []bool = make([]bool, len(content))

	mark := func(start, end int) {
		for i := start; i < end && i < len(consumed); i++ {
			consumed[i] = true
		}
	}
	overlaps := func(start, end int) bool {
		for i := start; i < end && i < len(consumed); i++ {
			if consumed[i] {
				return true
			}
		}
		return false
	}

	for _, m := range anchorRe.FindAllStringSubmatchIndex(content, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		mark(m[0], m[1])
		refs = append(refs, Reference{
			Kind:   RefAnchor,
			Raw:    content[m[0]:m[1]],
			Path:   pathutil.Normalize(content[m[2]:m[3]]),
			Symbol: content[m[4]:m[5]],
		})
	}

	for _, m := range fileLineRe.FindAllStringSubmatchIndex(content, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		mark(m[0], m[1])
		r := Reference{
			Kind: RefFileLine,
			Raw:  content[m[0]:m[1]],
			Path: pathutil.Normalize(content[m[2]:m[3]]),
			Line: atoiSafe(content[m[4]:m[5]]),
		}
		if m[6] >= 0 {
			r.EndLine = atoiSafe(content[m[6]:m[7]])
		} else {
			r.EndLine = r.Line
		}
		refs = append(refs, r)
	}

	for _, m := range linkRe.FindAllStringSubmatchIndex(content, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		target := content[m[4]:m[5]]
		if urlSchemeRe.MatchString(target) {
			continue
		}
		mark(m[0], m[1])
		refs = append(refs, Reference{
			Kind:     RefLink,
			Raw:      content[m[0]:m[1]],
			Path:     pathutil.Normalize(target),
			LinkText: content[m[2]:m[3]],
		})
	}

	for _, m := range dirRe.FindAllStringSubmatchIndex(content, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		mark(m[0], m[1])
		refs = append(refs, Reference{
			Kind: RefDir,
			Raw:  content[m[0]:m[1]],
			Path: pathutil.Normalize(content[m[2]:m[3]]),
		})
	}

	for _, m := range fileRe.FindAllStringSubmatchIndex(content, -1) {
		if overlaps(m[0], m[1]) {
			continue
		}
		mark(m[0], m[1])
		refs = append(refs, Reference{
			Kind: RefFile,
			Raw:  content[m[0]:m[1]],
			Path: pathutil.Normalize(content[m[2]:m[3]]),
		})
	}

	return refs
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
