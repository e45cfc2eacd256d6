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

// Package watch turns filesystem change notifications into a bounded
// stream of FileEvent values with a configurable debounce window.
// Consumers drain the channel returned by Start; cancelling the context
// ends the watcher and closes the stream.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/logging"
	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// Op classifies what happened to a path.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// FileEvent is one debounced filesystem change.
type FileEvent struct {
	Path string // POSIX-relative to the watched root
	Op   Op
	At   time.Time
}

// DefaultDebounce is the quiet window applied when none is configured.
const DefaultDebounce = 2 * time.Second

// DefaultBuffer bounds the event stream; events arriving while the
// consumer lags beyond this are dropped (with a log line) rather than
// blocking the watcher goroutine.
const DefaultBuffer = 256

// skipDirs are never watched: descriptor economy and noise.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "bin": true, ".k0ntext": true,
}

// Options configures Start.
type Options struct {
	// Debounce is the quiet window required before buffered raw events are
	// flushed to the consumer. Defaults to DefaultDebounce.
	Debounce time.Duration
	// Buffer is the stream's channel capacity. Defaults to DefaultBuffer.
	Buffer int
	Logger *slog.Logger
}

// Start watches root recursively and returns a bounded stream of debounced
// FileEvents. The stream is closed when ctx is cancelled or the underlying
// watcher fails.
func Start(ctx context.Context, root string, opts Options) (<-chan FileEvent, error) {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	logger := logging.OrDefault(opts.Logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "create filesystem watcher", err)
	}

	watched := 0
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if skipDirs[base] || (strings.HasPrefix(base, ".") && path != root) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			logger.Warn("watch add failed", "path", path, "error", err)
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		watched++
		return nil
	})
	if walkErr != nil {
		watcher.Close()
		return nil, errkind.Wrap(errkind.IoFailure, "walk watch root", walkErr)
	}
	logger.Debug("watching directories", "root", root, "count", watched)

	out := make(chan FileEvent, buffer)
	go run(ctx, root, watcher, out, debounce, logger)
	return out, nil
}

// run is the watcher goroutine: it accumulates raw fsnotify events and
// flushes the deduplicated batch once the debounce window has been quiet.
func run(ctx context.Context, root string, watcher *fsnotify.Watcher, out chan<- FileEvent, debounce time.Duration, logger *slog.Logger) {
	defer watcher.Close()
	defer close(out)

	pending := map[string]FileEvent{}
	var timer *time.Timer
	var timerCh <-chan time.Time // nil = no flush scheduled

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			fe, keep := translate(root, event)
			if !keep {
				continue
			}
			pending[fe.Path] = fe
			// New directories must be added to the watch set so files
			// created inside them are seen.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDirs[filepath.Base(event.Name)] {
					_ = watcher.Add(event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watcher error", "error", err)
		case <-timerCh:
			timerCh = nil
			for _, fe := range pending {
				select {
				case out <- fe:
				default:
					logger.Warn("event stream full, dropping event", "path", fe.Path)
				}
			}
			pending = map[string]FileEvent{}
		}
	}
}

// translate converts a raw fsnotify event to a FileEvent relative to root.
// keep is false for events on excluded names.
func translate(root string, event fsnotify.Event) (FileEvent, bool) {
	base := filepath.Base(event.Name)
	if skipDirs[base] || strings.HasSuffix(base, ".log") || base == ".DS_Store" {
		return FileEvent{}, false
	}
	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		rel = event.Name
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpWrite
	case event.Op&fsnotify.Remove != 0:
		op = OpRemove
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return FileEvent{}, false // chmod-only churn
	}

	return FileEvent{Path: pathutil.Normalize(rel), Op: op, At: time.Now()}, true
}
