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

package main

import (
	"context"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/embed"
	"github.com/SireJeff/k0ntext/internal/indexer"
	"github.com/SireJeff/k0ntext/internal/watch"
)

// runWatch drains the debounced event stream and re-indexes after each
// batch of changes, until interrupted.
func runWatch(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "Quiet window before a re-index is triggered")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := newLogger(globals)
	proj, err := openProject(globals, logger)
	if err != nil {
		return fail(globals, err)
	}
	defer proj.Close()

	embedder, err := embed.FromConfig(proj.Config.Embedding, nil)
	if err != nil {
		return fail(globals, err)
	}
	ix := indexer.New(proj.Root, proj.Store, embedder, proj.Config.Indexing, logger)

	events, err := watch.Start(ctx, proj.Root, watch.Options{Debounce: *debounce, Logger: logger})
	if err != nil {
		return fail(globals, err)
	}

	if !globals.JSON {
		fmt.Printf("watching %s (debounce %s); ctrl-c to stop\n", proj.Root, debounce)
	}

	for {
		fe, open := <-events
		if !open {
			return exitOK // context cancelled, clean shutdown
		}
		logger.Info("change detected", "path", fe.Path, "op", fe.Op)

		// Drain whatever else landed in the same debounce batch before
		// re-indexing once.
		drained := true
		for drained {
			select {
			case extra, ok := <-events:
				if !ok {
					return exitOK
				}
				logger.Debug("change detected", "path", extra.Path, "op", extra.Op)
			case <-time.After(50 * time.Millisecond):
				drained = false
			}
		}

		result, err := ix.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return exitOK
			}
			logger.Warn("re-index failed", "error", err)
			continue
		}
		logger.Info("re-indexed", "items", result.ItemsIndexed, "duration", result.Duration.Round(timeRound))
	}
}
