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
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/drift"
)

// runDrift checks the named documents (or every Markdown file under the
// project when none are given) against the live source tree.
func runDrift(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("drift", flag.ContinueOnError)
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

	docs := fs.Args()
	if len(docs) == 0 {
		docs, err = findMarkdownDocs(proj.Root)
		if err != nil {
			return fail(globals, err)
		}
	} else {
		for i, d := range docs {
			if !filepath.IsAbs(d) {
				docs[i] = filepath.Join(proj.Root, d)
			}
		}
	}

	result, err := drift.CheckDocuments(ctx, docs, proj.Root, drift.RunnerOptions{
		Concurrency: *concurrency,
		Store:       proj.Store,
		Logger:      logger,
	})
	if err != nil {
		return fail(globals, err)
	}

	if globals.JSON {
		return emitJSON(result)
	}

	for _, d := range result.Report.Documents {
		fmt.Printf("%-12s %3d%%  %s", d.Status, d.HealthScore, d.DocPath)
		if d.ContentChanged {
			fmt.Print("  (content changed since last index)")
		}
		fmt.Println()
		for _, issue := range d.Issues {
			fmt.Printf("    [%s] %s\n", issue.Level, issue.Message)
			if issue.Suggestion != "" {
				fmt.Printf("      did you mean %s?\n", issue.Suggestion)
			}
		}
	}
	for path, msg := range result.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s: %s\n", path, msg)
	}
	fmt.Printf("%d documents, %d healthy, overall health %.0f%%\n",
		result.Report.TotalDocs, result.Report.HealthyDocs, result.Report.OverallHealth)
	return exitOK
}

// findMarkdownDocs lists every .md file under root, skipping .git,
// node_modules, vendor and .k0ntext directories.
func findMarkdownDocs(root string) ([]string, error) {
	var docs []string
	skip := map[string]bool{".git": true, "node_modules": true, "vendor": true, ".k0ntext": true}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if info.IsDir() {
			if skip[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(info.Name()), ".md") {
			docs = append(docs, p)
		}
		return nil
	})
	return docs, err
}
