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

	flag "github.com/spf13/pflag"

	"github.com/SireJeff/k0ntext/internal/config"
	"github.com/SireJeff/k0ntext/internal/store"
)

// runInit creates .k0ntext/project.yaml and initializes the store file so
// later commands find a migrated schema.
func runInit(ctx context.Context, args []string, globals globalFlags) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	logger := newLogger(globals)

	root, err := config.ProjectRoot()
	if err != nil {
		return fail(globals, err)
	}

	cfgPath := config.Path(root)
	if _, err := os.Stat(cfgPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "configuration already exists at %s (use --force to overwrite)\n", cfgPath)
		return exitError
	}

	cfg := config.DefaultConfig(filepath.Base(root))
	if err := config.Save(cfg, cfgPath); err != nil {
		return fail(globals, err)
	}

	s, err := store.Open(filepath.Join(root, ".k0ntext.db"), store.Options{
		EmbeddingDim: cfg.Embedding.Dimensions,
		Logger:       logger,
	})
	if err != nil {
		return fail(globals, err)
	}
	defer s.Close()

	status := s.HealthCheck(ctx)
	if !status.Healthy {
		return fail(globals, fmt.Errorf("store initialized but unhealthy: %s", status.Error))
	}

	if globals.JSON {
		return emitJSON(map[string]any{
			"projectId": cfg.ProjectID,
			"config":    cfgPath,
			"store":     s.Path(),
		})
	}
	fmt.Printf("initialized project %q\n", cfg.ProjectID)
	fmt.Printf("  config: %s\n", cfgPath)
	fmt.Printf("  store:  %s\n", s.Path())
	return exitOK
}
