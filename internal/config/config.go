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

// Package config loads and saves the project configuration at
// .k0ntext/project.yaml: which embedding provider to use (and its
// dimension), indexing excludes and limits, and template-sync defaults.
// The file is a versioned YAML document discovered by walking up from the
// working directory; environment variables override file values after
// load.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

const (
	defaultConfigDir  = ".k0ntext"
	defaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Env var names consumed if present; absence is never an error.
const (
	EnvProjectRoot = "K0NTEXT_PROJECT_ROOT"
	EnvSkipHooks   = "K0NTEXT_SKIP_HOOKS"
	EnvAPIKey      = "OPENROUTER_API_KEY"
)

// Config represents the .k0ntext/project.yaml configuration file.
type Config struct {
	Version   string          `yaml:"version"`
	ProjectID string          `yaml:"project_id"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Sync      SyncConfig      `yaml:"sync"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openrouter, mock, none
	BaseURL    string `yaml:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// IndexingConfig contains indexing settings.
type IndexingConfig struct {
	MaxFileSize int64    `yaml:"max_file_size"` // bytes
	Exclude     []string `yaml:"exclude"`       // glob patterns / leaf substrings
	Concurrency int      `yaml:"concurrency,omitempty"`
}

// SyncConfig contains template-sync defaults.
type SyncConfig struct {
	TemplateRoot   string `yaml:"template_root,omitempty"`
	BackupMode     string `yaml:"backup_mode"` // file or git-stash
	ArchiveRemoved bool   `yaml:"archive_removed"`
}

// DefaultConfig returns a config with sensible defaults for a local
// project.
func DefaultConfig(projectID string) *Config {
	return &Config{
		Version:   configVersion,
		ProjectID: projectID,
		Embedding: EmbeddingConfig{
			Provider:   "none",
			Dimensions: 768,
			APIKey:     getEnv(EnvAPIKey, ""),
		},
		Indexing: IndexingConfig{
			MaxFileSize: 1048576, // 1MB
			Exclude: []string{
				"node_modules",
				".git",
				".DS_Store",
				"*.log",
				".k0ntext-manifest.json",
				"vendor",
				"dist",
				"build",
			},
		},
		Sync: SyncConfig{
			BackupMode:     "file",
			ArchiveRemoved: true,
		},
	}
}

// ProjectRoot returns the project root directory: K0NTEXT_PROJECT_ROOT if
// set, otherwise the current working directory.
func ProjectRoot() (string, error) {
	if root := os.Getenv(EnvProjectRoot); root != "" {
		return root, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "determine working directory", err)
	}
	return dir, nil
}

// SkipHooks reports whether the host requested a hook bypass.
func SkipHooks() bool {
	return os.Getenv(EnvSkipHooks) != ""
}

// Path returns the config file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

// Dir returns the .k0ntext directory inside dir.
func Dir(dir string) string {
	return filepath.Join(dir, defaultConfigDir)
}

// Load reads configuration from configPath, or discovers it by walking up
// from the current directory when configPath is empty. Environment
// variables are applied as overrides after the file is parsed.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		var err error
		configPath, err = find()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // path comes from user config or discovery
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.NotFound, "no configuration file at "+configPath).
				WithHint("run 'k0ntext init' to create one")
		}
		return nil, errkind.Wrap(errkind.IoFailure, "read configuration file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errkind.Wrap(errkind.InvalidData, "parse configuration yaml", err).
			WithHint("edit " + configPath + " to fix syntax errors, or run 'k0ntext init --force' to recreate")
	}

	if cfg.Version != configVersion {
		return nil, errkind.New(errkind.InvalidData,
			fmt.Sprintf("config version %q is not supported (expected %q)", cfg.Version, configVersion)).
			WithHint("run 'k0ntext init --force' to regenerate the configuration file")
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Save writes cfg to configPath as YAML, creating the .k0ntext directory
// if needed.
func Save(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errkind.Wrap(errkind.InvalidData, "encode configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return errkind.Wrap(errkind.IoFailure, "create configuration directory", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errkind.Wrap(errkind.IoFailure, "write configuration file", err)
	}
	return nil
}

// find searches for .k0ntext/project.yaml starting from the project root
// (honoring K0NTEXT_PROJECT_ROOT) and walking up to the filesystem root.
func find() (string, error) {
	dir, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	for {
		configPath := Path(dir)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errkind.New(errkind.NotFound,
		"no .k0ntext/project.yaml found in current directory or any parent").
		WithHint("run 'k0ntext init' to create a new configuration")
}

// applyEnvOverrides applies environment variable overrides to the
// configuration; env values take precedence over file values.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.Embedding.APIKey = key
	}
}

// getEnv retrieves an environment variable or returns fallback if unset.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
