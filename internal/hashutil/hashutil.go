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

// Package hashutil provides the 16-hex-char SHA-256 digest used
// everywhere k0ntext needs a short, stable content fingerprint: item
// content hashes, scanner file hashes, manifest entries.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Length is the number of hex characters a Hash16 carries. The store schema
// assumes exactly this many; never change it silently.
const Length = 16

// HashContent computes SHA-256 over b, lowercase-hex encodes it, and
// returns the first Length characters.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:Length]
}

// HashString is a convenience wrapper over HashContent for string input.
func HashString(s string) string {
	return HashContent([]byte(s))
}

// HashFileSafe returns HashContent of the file at path, or the empty string
// on any I/O error. It never panics or propagates an error: callers that
// need to distinguish "missing" from "present but unreadable" must perform
// a separate os.Stat.
func HashFileSafe(path string) string {
	b, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled, not user input from a remote source
	if err != nil {
		return ""
	}
	return HashContent(b)
}
