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

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchEmitsDebouncedEvents(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := Start(ctx, dir, Options{Debounce: 100 * time.Millisecond})
	require.NoError(t, err)

	// A burst of writes to the same file must collapse into one event.
	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	select {
	case fe := <-events:
		assert.Equal(t, "note.md", fe.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received before timeout")
	}
}

func TestWatchCancellationClosesStream(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := Start(ctx, dir, Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open, "stream must close after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close before timeout")
	}
}

func TestTranslateSkipsExcludedNames(t *testing.T) {
	_, keep := translate("/root", fsnotify.Event{Name: "/root/app.log", Op: fsnotify.Write})
	assert.False(t, keep)
	_, keep = translate("/root", fsnotify.Event{Name: "/root/.DS_Store", Op: fsnotify.Write})
	assert.False(t, keep)

	fe, keep := translate("/root", fsnotify.Event{Name: "/root/docs/guide.md", Op: fsnotify.Write})
	require.True(t, keep)
	assert.Equal(t, "docs/guide.md", fe.Path)
	assert.Equal(t, OpWrite, fe.Op)
}
