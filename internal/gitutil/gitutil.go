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

// Package gitutil wraps the subset of `git` invocations the template
// merger's git-stash backup mode and FileTimestamp.gitCommit population
// need: repo-root discovery, stash push, and HEAD lookup.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// Repo is a handle onto a discovered git working tree.
type Repo struct {
	root string
}

// Discover runs `git rev-parse --show-toplevel` rooted at startPath. A
// non-git directory is reported as errkind.NotFound, not a generic error,
// so callers (e.g. the indexer's best-effort HEAD lookup) can fall back
// without treating it as fatal.
func Discover(ctx context.Context, startPath string) (*Repo, error) {
	out, err := run(ctx, startPath, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, errkind.Wrap(errkind.NotFound, "not a git repository", err)
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return nil, errkind.New(errkind.NotFound, "could not determine git repository root")
	}
	return &Repo{root: root}, nil
}

// Root returns the absolute path to the repository root.
func (r *Repo) Root() string { return r.root }

// StashPush stashes the single file at relPath (relative to the repo
// root) with message, and returns the stash ref (e.g. "stash@{0}") it
// created. Used by the Merger's git-stash backup mode: the
// merger records "git-stash:<ref>" as the backup pointer.
func (r *Repo) StashPush(ctx context.Context, relPath, message string) (string, error) {
	if _, err := run(ctx, r.root, "stash", "push", "--include-untracked", "-m", message, "--", relPath); err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "git stash push", err)
	}
	out, err := run(ctx, r.root, "stash", "list", "--format=%gd")
	if err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "git stash list", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", errkind.New(errkind.IoFailure, "git stash push left no stash entry")
	}
	return lines[0], nil
}

// HeadSHA returns the current HEAD commit SHA, used to populate
// FileTimestamp.GitCommit.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := run(ctx, r.root, "rev-parse", "HEAD")
	if err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "git rev-parse HEAD", err)
	}
	return strings.TrimSpace(out), nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s timed out or cancelled: %w", args[0], ctx.Err())
		}
		if stderrStr := strings.TrimSpace(stderr.String()); stderrStr != "" {
			return "", fmt.Errorf("git %s: %s", args[0], stderrStr)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}
