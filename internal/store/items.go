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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/SireJeff/k0ntext/internal/errkind"
	"github.com/SireJeff/k0ntext/internal/hashutil"
	"github.com/SireJeff/k0ntext/internal/pathutil"
)

// ItemID deterministically derives a ContextItem's id from its uniqueness
// key (type, name, filePath).
func ItemID(t ItemType, name, filePath string) string {
	key := string(t) + "\x00" + name + "\x00" + pathutil.Normalize(filePath)
	return fmt.Sprintf("%s:%s", t, hashutil.HashString(key))
}

// UpsertItem inserts or replaces an item by its (type, name, filePath)
// uniqueness key, recomputing ContentHash. If the hash changed, any
// associated embedding is invalidated in the same transaction.
func (s *Store) UpsertItem(ctx context.Context, t ItemType, name, filePath, content string, meta Metadata) (ContextItem, error) {
	if t == TypeTemplateFile && !strings.HasPrefix(pathutil.Normalize(filePath), ".claude/") {
		return ContextItem{}, errkind.New(errkind.InvalidData, "template_file items must have a filePath under .claude/")
	}

	filePath = pathutil.Normalize(filePath)
	if cap := maxContentBytes(t); cap > 0 && len(content) > cap {
		content = content[:cap]
	}

	id := ItemID(t, name, filePath)
	hash := hashutil.HashString(content)
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return ContextItem{}, errkind.Wrap(errkind.InvalidData, "marshal item metadata", err)
	}

	var item ContextItem
	now := nowISO()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var prevHash string
		scanErr := tx.QueryRowContext(ctx, `SELECT content_hash FROM items WHERE id = ?`, id).Scan(&prevHash)
		existed := scanErr == nil
		if scanErr != nil && scanErr != sql.ErrNoRows {
			return scanErr
		}

		createdAt := now
		if existed {
			var prevCreated string
			_ = tx.QueryRowContext(ctx, `SELECT created_at FROM items WHERE id = ?`, id).Scan(&prevCreated)
			createdAt = prevCreated
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, type, name, file_path, content, content_hash, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				content_hash = excluded.content_hash,
				metadata = excluded.metadata,
				updated_at = excluded.updated_at
		`, id, string(t), name, filePath, content, hash, metaJSON, createdAt, now)
		if err != nil {
			return err
		}

		if existed && prevHash != hash {
			if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE item_id = ?`, id); err != nil {
				return err
			}
		}

		item = ContextItem{
			ID: id, Type: t, Name: name, FilePath: filePath, Content: content,
			ContentHash: hash, Metadata: meta,
			CreatedAt: parseISO(createdAt), UpdatedAt: parseISO(now),
		}
		return nil
	})
	if err != nil {
		return ContextItem{}, err
	}
	return item, nil
}

// GetItemsByType returns all items of the given type, ordered by path.
func (s *Store) GetItemsByType(ctx context.Context, t ItemType) ([]ContextItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE type = ? ORDER BY file_path, name`, string(t))
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "query items by type", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetAllItems returns every item in the store.
func (s *Store) GetAllItems(ctx context.Context) ([]ContextItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY type, file_path, name`)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "query all items", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetItemByFile looks up the item whose filePath matches exactly.
// Returns errkind.NotFound if no such item exists.
func (s *Store) GetItemByFile(ctx context.Context, filePath string) (ContextItem, error) {
	filePath = pathutil.Normalize(filePath)
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE file_path = ? LIMIT 1`, filePath)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return ContextItem{}, errkind.New(errkind.NotFound, fmt.Sprintf("no item for file %q", filePath))
	}
	if err != nil {
		return ContextItem{}, errkind.Wrap(errkind.IoFailure, "query item by file", err)
	}
	return item, nil
}

// SearchText performs a substring match over name and content, optionally
// restricted to a type, ordered by relevance then recency.
func (s *Store) SearchText(ctx context.Context, query string, t *ItemType) ([]SearchResult, error) {
	var rows *sql.Rows
	var err error
	like := "%" + query + "%"
	if t != nil {
		rows, err = s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE type = ? AND (name LIKE ? OR content LIKE ?)`, string(*t), like, like)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE name LIKE ? OR content LIKE ?`, like, like)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.IoFailure, "search text", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(items))
	for _, it := range items {
		results = append(results, SearchResult{Item: it, Score: textRelevance(query, it)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.UpdatedAt.After(results[j].Item.UpdatedAt)
	})
	return results, nil
}

// textRelevance is a substring-frequency score: occurrences of query in
// name count triple those in content (cheap BM25-like bias toward title
// matches), normalized by content length so long documents don't win by
// sheer repetition.
func textRelevance(query string, item ContextItem) float64 {
	if query == "" {
		return 0
	}
	q := strings.ToLower(query)
	nameHits := strings.Count(strings.ToLower(item.Name), q)
	contentHits := strings.Count(strings.ToLower(item.Content), q)
	length := float64(len(item.Content))
	if length == 0 {
		length = 1
	}
	return float64(nameHits)*3 + float64(contentHits)/length*1000
}

const itemColumns = `id, type, name, file_path, content, content_hash, metadata, created_at, updated_at`

func scanItems(rows *sql.Rows) ([]ContextItem, error) {
	var out []ContextItem
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, errkind.Wrap(errkind.IoFailure, "scan item row", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (ContextItem, error) {
	return scanItemRow(row)
}

func scanItemRow(row scannable) (ContextItem, error) {
	var item ContextItem
	var typ, metaJSON, createdAt, updatedAt string
	if err := row.Scan(&item.ID, &typ, &item.Name, &item.FilePath, &item.Content, &item.ContentHash, &metaJSON, &createdAt, &updatedAt); err != nil {
		return ContextItem{}, err
	}
	item.Type = ItemType(typ)
	item.CreatedAt = parseISO(createdAt)
	item.UpdatedAt = parseISO(updatedAt)
	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return ContextItem{}, err
	}
	item.Metadata = meta
	return item, nil
}

func marshalMetadata(m Metadata) (string, error) {
	if m == nil {
		m = Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (Metadata, error) {
	if s == "" {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Metadata{}
	}
	return m, nil
}
