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
	"os"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/embed"
	"github.com/SireJeff/k0ntext/internal/indexer"
	"github.com/SireJeff/k0ntext/internal/metrics"
)

// runIndex indexes the project tree into the store, optionally serving
// Prometheus metrics while it runs.
func runIndex(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	metricsAddr := fs.String("metrics", "", "Serve /metrics and /healthz on this address while indexing")
	concurrency := fs.Int("concurrency", 0, "Worker pool size (default: logical CPUs)")
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

	if *metricsAddr != "" {
		health := func(ctx context.Context) metrics.HealthStatus {
			st := proj.Store.HealthCheck(ctx)
			return metrics.HealthStatus{Healthy: st.Healthy, Error: st.Error}
		}
		go func() {
			if err := metrics.Serve(ctx, *metricsAddr, health); err != nil {
				logger.Warn("metrics server failed", "error", err)
			}
		}()
	}

	cfg := proj.Config.Indexing
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	ix := indexer.New(proj.Root, proj.Store, embedder, cfg, logger)

	if !globals.JSON {
		var bar *progressbar.ProgressBar
		var phase string
		ix.SetProgressCallback(func(current, total int64, p string) {
			if p != phase {
				if bar != nil {
					_ = bar.Finish()
				}
				phase = p
				bar = progressbar.NewOptions64(total,
					progressbar.OptionSetDescription(p),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set64(current)
		})
	}

	result, err := ix.Run(ctx)
	if err != nil {
		return fail(globals, err)
	}

	if globals.JSON {
		return emitJSON(result)
	}
	fmt.Printf("indexed %d items from %d files (%d skipped, %d embedded, %d failures) in %s\n",
		result.ItemsIndexed, result.FilesScanned, result.ItemsSkipped, result.Embedded,
		len(result.Failures), result.Duration.Round(timeRound))
	for path, msg := range result.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", path, msg)
	}
	return exitOK
}
