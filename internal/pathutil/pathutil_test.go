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

package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBackslashes(t *testing.T) {
	assert.Equal(t, "a/b.md", Normalize(`a\b.md`))
	assert.Equal(t, "a/b/c.go", Normalize(`a\b/c.go`))
}

func TestNormalizePreservesUNC(t *testing.T) {
	assert.Equal(t, "//host/share/file.txt", Normalize(`\\host\share\file.txt`))
}

func TestIsAbsolute(t *testing.T) {
	cases := map[string]bool{
		"/usr/local/bin":  true,
		"relative/path":   false,
		`C:\Users\me`:     true,
		"C:/Users/me":     true,
		`\\host\share`:    true,
		"//host/share":    true,
		"":                false,
		"not:a/drive/ref":  false,
	}
	for p, want := range cases {
		assert.Equal(t, want, IsAbsolute(p), "path=%q", p)
	}
}

func TestRelative(t *testing.T) {
	assert.Equal(t, "commands/init.md", Relative("/project", "/project/commands/init.md"))
	assert.Equal(t, ".", Relative("/project", "/project"))
	assert.Equal(t, "../sibling/file.md", Relative("/project/docs", "/project/sibling/file.md"))
}

func TestWindowsLineRefNormalizesLikePOSIX(t *testing.T) {
	// Windows-style input must normalize to the POSIX form.
	assert.Equal(t, "a/b.md", Normalize(`a\b.md`))
}
