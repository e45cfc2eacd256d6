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
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/SireJeff/k0ntext/internal/config"
	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/store"
)

func asKindError(err error, target **errkind.Error) bool {
	return errors.As(err, target)
}

// timeRound trims durations for display.
const timeRound = time.Millisecond

// newLogger builds the process logger: text on stderr so stdout stays
// clean for JSON output mode.
func newLogger(globals globalFlags) *slog.Logger {
	level := slog.LevelInfo
	if globals.Verbose {
		level = slog.LevelDebug
	}
	if globals.JSON {
		level = slog.LevelError // decorative text is suppressed in JSON mode
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// project bundles what every command needs: the resolved root, the loaded
// configuration, and an open store.
type project struct {
	Root   string
	Config *config.Config
	Store  *store.Store
}

func (p *project) Close() {
	if p.Store != nil {
		_ = p.Store.Close()
	}
}

// openProject loads the configuration and opens the ICS at
// <root>/.k0ntext.db.
func openProject(globals globalFlags, logger *slog.Logger) (*project, error) {
	root, err := config.ProjectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(globals.Config)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(filepath.Join(root, ".k0ntext.db"), store.Options{
		EmbeddingDim: cfg.Embedding.Dimensions,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &project{Root: root, Config: cfg, Store: s}, nil
}

// Well-known paths under the project root.
func workingRoot(root string) string { return filepath.Join(root, ".claude") }
func manifestPath(root string) string { return filepath.Join(root, ".claude", ".k0ntext-manifest.json") }
func archiveDir(root string) string { return filepath.Join(root, ".k0ntext", "archive") }
