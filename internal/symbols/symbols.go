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

// Package symbols extracts declarations (function, class, method, struct,
// interface, impl, module) and the inline reference tokens documentation
// files use to point at source. Extraction is deliberately shallow:
// per-language regex heuristics dispatched by file extension, not a
// semantic parser.
package symbols

import (
	"regexp"
	"strings"

	"github.com/SireJeff/k0ntext/internal/hashutil"
)

// Kind enumerates the recognized declaration kinds.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindImpl      Kind = "impl"
	KindModule    Kind = "module"
)

// Symbol is one extracted declaration.
type Symbol struct {
	Name          string
	Kind          Kind
	LineNumber    int
	SignatureLine string
	BodyHash      string
}

// pattern pairs a declaration kind with the regex that recognizes it. The
// regex's last capture group must be the symbol name.
type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

// languagePatterns maps a file extension (without the dot) to its ordered
// declaration patterns. Order matters: each line is tried against the
// patterns in order and the first match wins.
var languagePatterns = map[string][]pattern{
	"go": {
		{KindFunction, regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s+)?([A-Za-z_]\w*)\s*\(`)},
		{KindStruct, regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+struct\b`)},
		{KindInterface, regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+interface\b`)},
	},
	"py": {
		{KindFunction, regexp.MustCompile(`^\s*def\s+([A-Za-z_]\w*)\s*\(`)},
		{KindClass, regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)\s*[:(]`)},
	},
	"js": {
		{KindFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s+([A-Za-z_$]\w*)\s*\(`)},
		{KindFunction, regexp.MustCompile(`^\s*(?:export\s+)?const\s+([A-Za-z_$]\w*)\s*=\s*(?:async\s*)?\([^)]*\)\s*=>`)},
		{KindMethod, regexp.MustCompile(`^\s*([A-Za-z_$]\w*)\s*\([^)]*\)\s*\{`)},
		{KindClass, regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z_$]\w*)`)},
	},
	"rs": {
		{KindFunction, regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)\s*[(<]`)},
		{KindStruct, regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+([A-Za-z_]\w*)`)},
		{KindInterface, regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+([A-Za-z_]\w*)`)},
		{KindImpl, regexp.MustCompile(`^\s*impl(?:<[^>]*>)?\s+(?:[A-Za-z_:]+\s+for\s+)?([A-Za-z_]\w*)`)},
		{KindModule, regexp.MustCompile(`^\s*(?:pub\s+)?mod\s+([A-Za-z_]\w*)`)},
	},
	"rb": {
		{KindFunction, regexp.MustCompile(`^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`)},
		{KindClass, regexp.MustCompile(`^\s*class\s+([A-Za-z_:]\w*)`)},
		{KindModule, regexp.MustCompile(`^\s*module\s+([A-Za-z_:]\w*)`)},
	},
}

func init() {
	languagePatterns["jsx"] = languagePatterns["js"]
	languagePatterns["ts"] = languagePatterns["js"]
	languagePatterns["tsx"] = languagePatterns["js"]
}

// Extract returns every declaration found in content, dispatched by the
// extension implied by filePath. Unknown extensions yield an empty list
//, never an error.
func Extract(filePath string, content string) []Symbol {
	ext := extensionOf(filePath)
	patterns, ok := languagePatterns[ext]
	if !ok {
		return nil
	}

	lines := strings.Split(content, "\n")
	var decls []struct {
		sym       Symbol
		lineIndex int
	}

	for i, line := range lines {
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := m[len(m)-1]
			decls = append(decls, struct {
				sym       Symbol
				lineIndex int
			}{
				sym: Symbol{
					Name:          name,
					Kind:          p.kind,
					LineNumber:    i + 1,
					SignatureLine: strings.TrimSpace(line),
				},
				lineIndex: i,
			})
			break // first matching pattern per line wins
		}
	}

	out := make([]Symbol, 0, len(decls))
	for idx, d := range decls {
		end := len(lines)
		if idx+1 < len(decls) {
			end = decls[idx+1].lineIndex
		}
		body := strings.Join(lines[d.lineIndex:end], "\n")
		sym := d.sym
		sym.BodyHash = hashutil.HashString(body)
		out = append(out, sym)
	}
	return out
}

func extensionOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}
