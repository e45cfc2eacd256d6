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

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/SireJeff/k0ntext/internal/errkind"
)

// StoreEmbedding stores (overwriting any prior vector) the embedding for
// itemID. Rejects a dimension mismatch with InvalidData unless force is
// true, in which case ALL existing embeddings are deleted and the store's
// configured dimension is updated.
func (s *Store) StoreEmbedding(ctx context.Context, itemID string, vec []float32, force bool) error {
	dim := s.EmbeddingDim()
	if len(vec) != dim {
		if !force {
			return errkind.New(errkind.InvalidData,
				fmt.Sprintf("embedding dimension %d does not match store dimension %d", len(vec), dim))
		}
		if err := s.reconfigureEmbeddingDim(ctx, len(vec)); err != nil {
			return err
		}
	}

	blob := encodeVector(vec)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, itemID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return errkind.New(errkind.NotFound, fmt.Sprintf("item %q does not exist", itemID))
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (item_id, dim, vector) VALUES (?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector
		`, itemID, len(vec), blob)
		return err
	})
}

// reconfigureEmbeddingDim deletes every stored embedding and switches the
// store's configured dimension to newDim, inside one transaction.
func (s *Store) reconfigureEmbeddingDim(ctx context.Context, newDim int) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)`,
			embeddingDimKey, fmt.Sprintf("%d", newDim))
		return err
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.embeddingDim = newDim
	s.mu.Unlock()
	return nil
}

// SearchByEmbedding returns the top-k items by cosine similarity to
// queryVec, via an exact linear scan.
func (s *Store) SearchByEmbedding(ctx context.Context, queryVec []float32, k int) ([]EmbeddingMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.`+itemColumns+`, e.vector
		FROM embeddings e JOIN items i ON i.id = e.item_id
	`)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "query embeddings", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var item ContextItem
		var typ, metaJSON, createdAt, updatedAt string
		var blob []byte
		if err := rows.Scan(&item.ID, &typ, &item.Name, &item.FilePath, &item.Content, &item.ContentHash,
			&metaJSON, &createdAt, &updatedAt, &blob); err != nil {
			return nil, errkind.Wrap(errkind.IoFailure, "scan embedding row", err)
		}
		item.Type = ItemType(typ)
		item.CreatedAt = parseISO(createdAt)
		item.UpdatedAt = parseISO(updatedAt)
		meta, err := unmarshalMetadata(metaJSON)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidData, "decode item metadata", err)
		}
		item.Metadata = meta

		vec := decodeVector(blob)
		matches = append(matches, EmbeddingMatch{Item: item, Similarity: cosineSimilarity(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "iterate embeddings", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// HybridSearch blends normalized text relevance with cosine similarity.
// When queryVec is nil, it degrades to text-only.
func (s *Store) HybridSearch(ctx context.Context, queryText string, queryVec []float32, opts HybridOptions) ([]SearchResult, error) {
	weight := opts.Weight
	if weight.Text == 0 && weight.Vector == 0 {
		weight = DefaultHybridWeight
	}

	var typeFilter *ItemType
	if opts.Type != "" {
		typeFilter = &opts.Type
	}

	textResults, err := s.SearchText(ctx, queryText, typeFilter)
	if err != nil {
		return nil, err
	}
	if len(queryVec) == 0 {
		if opts.Limit > 0 && len(textResults) > opts.Limit {
			textResults = textResults[:opts.Limit]
		}
		return textResults, nil
	}

	textScore := make(map[string]float64, len(textResults))
	maxText := 0.0
	for _, r := range textResults {
		textScore[r.Item.ID] = r.Score
		if r.Score > maxText {
			maxText = r.Score
		}
	}

	vecMatches, err := s.SearchByEmbedding(ctx, queryVec, 0)
	if err != nil {
		return nil, err
	}

	combined := make(map[string]*SearchResult, len(vecMatches))
	for _, m := range vecMatches {
		if typeFilter != nil && m.Item.Type != *typeFilter {
			continue
		}
		norm := 0.0
		if maxText > 0 {
			norm = textScore[m.Item.ID] / maxText
		}
		combined[m.Item.ID] = &SearchResult{
			Item:  m.Item,
			Score: weight.Text*norm + weight.Vector*m.Similarity,
		}
	}
	// Items with text hits but no embedding still participate, scored on
	// text alone.
	for _, r := range textResults {
		if _, ok := combined[r.Item.ID]; !ok {
			norm := 0.0
			if maxText > 0 {
				norm = r.Score / maxText
			}
			combined[r.Item.ID] = &SearchResult{Item: r.Item, Score: weight.Text * norm}
		}
	}

	out := make([]SearchResult, 0, len(combined))
	for _, r := range combined {
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item.UpdatedAt.After(out[j].Item.UpdatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
