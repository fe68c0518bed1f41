package embedstore

import (
	"github.com/RoaringBitmap/roaring"
)

// CacheVersion is bumped when the on-disk cache layout changes.
const CacheVersion = 1

// Matrix holds one unit vector per catalog position.
//
// Rows[i] belongs to catalog position i. A nil row means the verse could not be
// encoded; its position is also recorded in Failed.
type Matrix struct {
	ModelID string
	Dim     int
	Rows    [][]float32
	Failed  *roaring.Bitmap
}

// Len returns the number of positions, including failed ones.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// Present returns the number of rows that hold a vector.
func (m *Matrix) Present() int {
	if m == nil {
		return 0
	}
	if m.Failed == nil {
		return len(m.Rows)
	}
	return len(m.Rows) - int(m.Failed.GetCardinality())
}

// IsFailed reports whether position i has no vector.
func (m *Matrix) IsFailed(i int) bool {
	return m.Failed != nil && m.Failed.Contains(uint32(i))
}

// Manifest describes a persisted cache and how to interpret it.
type Manifest struct {
	CacheVersion int    `json:"cache_version"`
	CreatedAt    string `json:"created_at"`
	ModelID      string `json:"model_id"`
	Dim          int    `json:"dim"`
	Normalize    bool   `json:"normalize"`
	Count        int    `json:"count"`
	VectorFile   string `json:"vector_file,omitempty"`
	EntriesFile  string `json:"entries_file,omitempty"`
}

// Entry is one cached vector with the identifier and text hash it was computed from.
type Entry struct {
	ID        string    `json:"id"`
	TextHash  string    `json:"text_hash"`
	UpdatedAt string    `json:"updated_at,omitempty"`
	Vector    []float32 `json:"-"`
}

// Snapshot is the full content of a cache.
type Snapshot struct {
	Manifest Manifest
	Entries  []Entry
}
