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

import "time"

// ItemType enumerates the kinds of content the ICS indexes.
type ItemType string

const (
	TypeDoc          ItemType = "doc"
	TypeCode         ItemType = "code"
	TypeToolConfig   ItemType = "tool_config"
	TypeWorkflow     ItemType = "workflow"
	TypeConfig       ItemType = "config"
	TypePattern      ItemType = "pattern"
	TypeTemplateFile ItemType = "template_file"
)

// maxContentBytes returns the per-type content cap: 20,000 bytes for
// code and 50,000 for every other known type. An unknown type is left
// uncapped.
func maxContentBytes(t ItemType) int {
	switch t {
	case TypeDoc, TypeConfig, TypeToolConfig, TypeWorkflow, TypePattern, TypeTemplateFile:
		return 50_000
	case TypeCode:
		return 20_000
	default:
		return 0
	}
}

// Metadata is a typed, JSON-serializable key/value bag; JSON is the
// boundary serialization format.
type Metadata map[string]any

// ContextItem is the fundamental ICS unit.
type ContextItem struct {
	ID          string
	Type        ItemType
	Name        string
	Content     string
	FilePath    string
	Metadata    Metadata
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding is a dense vector associated with a ContextItem.
type Embedding struct {
	ItemID string
	Vector []float32
}

// GeneratedFile is provenance for a file k0ntext writes under the
// repository.
type GeneratedFile struct {
	Tool        string
	FilePath    string
	ContentHash string
	BackupPath  string
	Metadata    Metadata
	GeneratedAt time.Time

	// UserModified is derived, not stored: true iff the on-disk hash differs
	// from ContentHash. Populated by GetGeneratedFiles when askedFor.
	UserModified bool
}

// FileTimestamp tracks a scanned file's last-known state.
type FileTimestamp struct {
	Path          string
	Mtime         time.Time
	Size          int64
	Hash          string
	LastCheckedAt time.Time
	GitCommit     string
}

// SyncState is the per-tool version-tracking row.
type SyncState struct {
	Tool         string
	Version      string
	UserModified bool
	LastChecked  time.Time
	FilePath     string
	ContentHash  string
}

// SearchResult pairs an item with a relevance score for text search.
type SearchResult struct {
	Item  ContextItem
	Score float64
}

// EmbeddingMatch pairs an item with a cosine similarity score.
type EmbeddingMatch struct {
	Item       ContextItem
	Similarity float64
}

// HybridWeight configures hybrid_search's text/vector blend.
type HybridWeight struct {
	Text   float64
	Vector float64
}

// DefaultHybridWeight is the 0.5/0.5 default blend.
var DefaultHybridWeight = HybridWeight{Text: 0.5, Vector: 0.5}

// HybridOptions configures a hybrid_search call.
type HybridOptions struct {
	Limit  int
	Type   ItemType // empty means "all types"
	Weight HybridWeight
}

// HealthStatus is the result of health_check().
type HealthStatus struct {
	Healthy bool
	Error   string
}
