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

// Package embed defines the injectable embedding contract the Drift
// Detector and indexer consume: embed(text) -> []float32 of the store's
// configured dimension, with errors propagated, never silenced, and
// credential refusals reported distinctly so batch drivers can abort the
// run.
//
// Remote provider implementations are the host's concern; this package
// ships the contract, a func adapter, and a deterministic mock provider
// for offline use and tests.
package embed

import (
	"context"
	"math"

	"github.com/SireJeff/k0ntext/internal/config"
	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/hashutil"
)

// Embedder produces a dense vector for text. Implementations must honor
// ctx cancellation and must return a vector of the store's configured
// dimension. An authentication refusal from a remote service must surface
// as errkind.AuthFailure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector this embedder returns.
	Dimension() int
}

// Func adapts a plain function to the Embedder interface.
type Func struct {
	Fn  func(ctx context.Context, text string) ([]float32, error)
	Dim int
}

func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.Fn(ctx, text)
}

func (f Func) Dimension() int { return f.Dim }

// Mock is a deterministic offline embedder: the vector is derived from
// the text's content hash, so equal inputs embed equally across runs and
// platforms. Useful for tests and for hosts that want vector search
// plumbing exercised without a remote provider.
type Mock struct {
	Dim int
}

func (m Mock) Dimension() int { return m.Dim }

func (m Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Cancelled, "embedding cancelled", err)
	}
	dim := m.Dim
	if dim <= 0 {
		dim = 768
	}
	vec := make([]float32, dim)
	seed := hashutil.HashString(text)
	// Spread the 16 hash hex chars across the vector and normalize, so
	// cosine similarity behaves sanely for tests.
	var norm float64
	for i := range vec {
		c := seed[i%len(seed)]
		v := float32(c) / 128.0
		if i%2 == 1 {
			v = -v
		}
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// FromConfig selects an Embedder per the project configuration. Provider
// "none" (or empty) returns nil: indexing proceeds without embeddings.
// Provider "openrouter" is a remote collaborator the host injects (it owns
// the HTTP client and credentials); this function validates the credential
// up front and reports the missing-key case as AuthFailure so the host
// surfaces it once instead of failing per-file mid-batch.
func FromConfig(cfg config.EmbeddingConfig, remote Embedder) (Embedder, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "mock":
		return Mock{Dim: cfg.Dimensions}, nil
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, errkind.New(errkind.AuthFailure, "openrouter embedding provider configured without an API key").
				WithHint("set OPENROUTER_API_KEY or embedding.api_key in .k0ntext/project.yaml")
		}
		if remote == nil {
			return nil, errkind.New(errkind.InvalidData, "openrouter provider requires a host-injected embedder")
		}
		return remote, nil
	default:
		return nil, errkind.New(errkind.InvalidData, "unknown embedding provider "+cfg.Provider)
	}
}
