// Package vecindex is an exact inner-product index over unit vectors.
//
// Vectors are normalized before they reach the index, so the inner product is
// the cosine similarity. Every query scans all rows; there is no approximation.
package vecindex

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kamusis/sloka-search/internal/embeddings"
	"github.com/kamusis/sloka-search/internal/embedstore"
)

// Hit is one query result: a catalog position and its similarity.
type Hit struct {
	Position int
	Score    float64
}

// Index holds the present rows of a matrix in flat row-major order. It is
// immutable after Build or Load and safe for concurrent queries.
type Index struct {
	modelID     string
	dim         int
	positions   []int
	vectors     []float32
	fingerprint string
}

// Build copies the non-failed rows of m into a new index.
func Build(m *embedstore.Matrix) (*Index, error) {
	if m == nil || m.Present() == 0 {
		return nil, &IndexBuildError{Reason: "no vectors"}
	}
	dim := m.Dim
	ix := &Index{modelID: m.ModelID}
	for pos, row := range m.Rows {
		if row == nil || m.IsFailed(pos) {
			continue
		}
		if dim == 0 {
			dim = len(row)
		}
		if len(row) != dim {
			return nil, &IndexBuildError{Reason: fmt.Sprintf("row %d has %d dims, want %d", pos, len(row), dim)}
		}
		ix.positions = append(ix.positions, pos)
		ix.vectors = append(ix.vectors, row...)
	}
	if dim == 0 {
		return nil, &IndexBuildError{Reason: "zero dimension"}
	}
	ix.dim = dim
	ix.fingerprint = Fingerprint(m)
	return ix, nil
}

// Len returns the number of indexed rows.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.positions)
}

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// ModelID returns the embedding space the vectors came from.
func (ix *Index) ModelID() string { return ix.modelID }

// Positions returns the indexed catalog positions in ascending order.
func (ix *Index) Positions() []int { return slices.Clone(ix.positions) }

// Query returns the topK rows with the highest inner product against vec.
// topK is clamped to [1, Len()]. Equal scores are ordered by ascending position.
func (ix *Index) Query(vec []float32, topK int) ([]Hit, error) {
	n := ix.Len()
	if n == 0 {
		return []Hit{}, nil
	}
	if len(vec) != ix.dim {
		return nil, &embeddings.DimensionMismatchError{Got: len(vec), Want: ix.dim, Source: "query"}
	}
	topK = max(1, min(topK, n))

	hits := make([]Hit, n)
	for i, pos := range ix.positions {
		row := ix.vectors[i*ix.dim : (i+1)*ix.dim]
		s := embeddings.Dot(vec, row)
		hits[i] = Hit{Position: pos, Score: max(-1, min(1, s))}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return hits[:topK:topK], nil
}
