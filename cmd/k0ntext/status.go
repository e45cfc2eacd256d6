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

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/embed"
	"github.com/SireJeff/k0ntext/internal/store"
)

var itemTypes = []store.ItemType{
	store.TypeDoc, store.TypeCode, store.TypeToolConfig, store.TypeWorkflow,
	store.TypeConfig, store.TypePattern, store.TypeTemplateFile,
}

// runStatus reports store health, per-type item counts, and template sync
// state.
func runStatus(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := newLogger(globals)
	proj, err := openProject(globals, logger)
	if err != nil {
		return fail(globals, err)
	}
	defer proj.Close()

	health := proj.Store.HealthCheck(ctx)

	counts := map[string]int{}
	for _, t := range itemTypes {
		items, err := proj.Store.GetItemsByType(ctx, t)
		if err != nil {
			return fail(globals, err)
		}
		if len(items) > 0 {
			counts[string(t)] = len(items)
		}
	}

	syncVersion := ""
	if st, err := proj.Store.GetSyncState(ctx, "template"); err == nil {
		syncVersion = st.Version
	}

	if globals.JSON {
		return emitJSON(map[string]any{
			"projectId":       proj.Config.ProjectID,
			"healthy":         health.Healthy,
			"error":           health.Error,
			"items":           counts,
			"templateVersion": syncVersion,
			"embeddingDim":    proj.Store.EmbeddingDim(),
		})
	}

	fmt.Printf("project: %s\n", proj.Config.ProjectID)
	if health.Healthy {
		fmt.Println("store:   healthy")
	} else {
		fmt.Printf("store:   UNHEALTHY: %s\n", health.Error)
	}
	fmt.Printf("embedding dimension: %d\n", proj.Store.EmbeddingDim())
	if syncVersion != "" {
		fmt.Printf("template version: %s\n", syncVersion)
	}
	for t, n := range counts {
		fmt.Printf("  %-14s %d\n", t, n)
	}
	if !health.Healthy {
		return exitError
	}
	return exitOK
}

// runSearch searches indexed items: text-only by default, hybrid when an
// embedder is configured.
func runSearch(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "Maximum results")
	itemType := fs.String("type", "", "Restrict to one item type")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Println("usage: k0ntext search [--limit N] [--type T] <query>")
		return exitUsage
	}
	query := fs.Arg(0)

	logger := newLogger(globals)
	proj, err := openProject(globals, logger)
	if err != nil {
		return fail(globals, err)
	}
	defer proj.Close()

	var queryVec []float32
	if embedder, err := embed.FromConfig(proj.Config.Embedding, nil); err == nil && embedder != nil {
		if vec, err := embedder.Embed(ctx, query); err == nil {
			queryVec = vec
		} else {
			logger.Warn("query embedding failed, using text-only search", "error", err)
		}
	}

	results, err := proj.Store.HybridSearch(ctx, query, queryVec, store.HybridOptions{
		Limit: *limit,
		Type:  store.ItemType(*itemType),
	})
	if err != nil {
		return fail(globals, err)
	}

	if globals.JSON {
		return emitJSON(results)
	}
	for _, r := range results {
		fmt.Printf("%6.3f  %-13s %s", r.Score, r.Item.Type, r.Item.Name)
		if r.Item.FilePath != "" {
			fmt.Printf("  (%s)", r.Item.FilePath)
		}
		fmt.Println()
	}
	if len(results) == 0 {
		fmt.Println("no matches")
	}
	return exitOK
}
