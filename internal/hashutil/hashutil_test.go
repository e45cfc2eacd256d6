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

package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContentLengthAndDeterminism(t *testing.T) {
	h1 := HashContent([]byte("hello\n"))
	h2 := HashContent([]byte("hello\n"))

	assert.Len(t, h1, Length)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashContent([]byte("hello")))
}

func TestHashContentKnownVector(t *testing.T) {
	// SHA-256("hello\n") = 5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03;
	// HashContent takes the leading 16 hex characters of that digest.
	assert.Equal(t, "5891b5b522d5df08", HashContent([]byte("hello\n")))
}

func TestHashFileSafeMissingFile(t *testing.T) {
	assert.Equal(t, "", HashFileSafe(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestHashFileSafeMatchesHashContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o644))

	assert.Equal(t, HashContent([]byte("contents")), HashFileSafe(path))
}
