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

package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAndOf(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(IoFailure, "write manifest", base)

	assert.True(t, Is(err, IoFailure))
	assert.False(t, Is(err, Busy))
	assert.Equal(t, IoFailure, Of(err))
	assert.Equal(t, Unknown, Of(base))
}

func TestWrapPreservesUnwrapChain(t *testing.T) {
	base := errors.New("root cause")
	err := Wrap(Busy, "acquire lock", base)
	wrapped := fmt.Errorf("sync failed: %w", err)

	require.True(t, errors.Is(wrapped, base))
	assert.True(t, Is(wrapped, Busy))
}

func TestWithHint(t *testing.T) {
	err := New(NotFound, "file missing").WithHint("did you mean docs/readme.md?")
	assert.Equal(t, "did you mean docs/readme.md?", err.Hint)
	assert.Contains(t, err.Error(), "not_found")
}
