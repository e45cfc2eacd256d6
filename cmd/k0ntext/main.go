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

// Package main implements the k0ntext CLI: a thin host around the
// library packages that keeps a project's AI-context artifacts
// synchronized with its source tree.
//
// Usage:
//
//	k0ntext init                  Create .k0ntext/project.yaml and the store
//	k0ntext index                 Index source and docs into the store
//	k0ntext sync                  Sync the template tree into .claude/
//	k0ntext drift [docs...]       Check documentation drift
//	k0ntext search <query>        Search indexed items
//	k0ntext [--json] status       Show store health and counts
//	k0ntext watch                 Watch the tree and re-index on change
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes per the host contract: 0 success, 1 operational failure,
// 2 usage error.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// globalFlags holds flags that apply to every command.
type globalFlags struct {
	JSON    bool
	Config  string
	Verbose bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .k0ntext/project.yaml (default: discovered)")
		jsonOutput  = flag.Bool("json", false, "Emit a single JSON document on stdout, no decorative text")
		verbose     = flag.BoolP("verbose", "v", false, "Enable debug logging")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `k0ntext - AI context engine

Keeps machine-generated AI-context artifacts synchronized with the
source tree: indexes files into a content-addressed store, detects
documentation drift, and template-syncs managed files into .claude/.

Usage:
  k0ntext <command> [options]

Commands:
  init      Create .k0ntext/project.yaml and initialize the store
  index     Index source and documentation into the store
  sync      Three-way sync the template tree into .claude/
  drift     Check documentation references against the source tree
  search    Search indexed items (text, or hybrid with embeddings)
  status    Show store health, item counts, and sync state
  watch     Watch the tree and re-index on change

Global Options:
  --json          Emit one JSON document on stdout
  -c, --config    Path to .k0ntext/project.yaml
  -v, --verbose   Enable debug logging
  -V, --version   Show version and exit

Environment Variables:
  K0NTEXT_PROJECT_ROOT   Project root (default: current directory)
  K0NTEXT_SKIP_HOOKS     Skip host-level hooks
  OPENROUTER_API_KEY     Credential for the remote embedding provider

For detailed command help: k0ntext <command> --help
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("k0ntext version %s (commit %s)\n", version, commit)
		os.Exit(exitOK)
	}

	globals := globalFlags{JSON: *jsonOutput, Config: *configPath, Verbose: *verbose}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch args[0] {
	case "init":
		code = runInit(ctx, args[1:], globals)
	case "index":
		code = runIndex(ctx, args[1:], globals)
	case "sync":
		code = runSync(ctx, args[1:], globals)
	case "drift":
		code = runDrift(ctx, args[1:], globals)
	case "search":
		code = runSearch(ctx, args[1:], globals)
	case "status":
		code = runStatus(ctx, args[1:], globals)
	case "watch":
		code = runWatch(ctx, args[1:], globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		code = exitUsage
	}
	os.Exit(code)
}

// fail reports err on stderr (or as JSON when requested) and returns the
// operational-failure exit code. The kind, message, and hint all surface
// per the error contract.
func fail(globals globalFlags, err error) int {
	kind := errkind.Of(err)
	if globals.JSON {
		payload := map[string]any{"error": err.Error(), "kind": kind.String()}
		var ke *errkind.Error
		if asKindError(err, &ke) && ke.Hint != "" {
			payload["hint"] = ke.Hint
		}
		_ = json.NewEncoder(os.Stdout).Encode(payload)
		return exitError
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var ke *errkind.Error
	if asKindError(err, &ke) && ke.Hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", ke.Hint)
	}
	return exitError
}

// emitJSON writes v as the command's single JSON document.
func emitJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: encode output: %v\n", err)
		return exitError
	}
	return exitOK
}
