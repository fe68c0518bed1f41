package embedstore

import (
	"fmt"

	"github.com/kamusis/sloka-search/internal/corpus"
)

// Plan is the outcome of comparing a cache snapshot with the catalog.
type Plan struct {
	// Reuse maps catalog position to the index of the snapshot entry to reuse.
	Reuse map[int]int
	// Encode lists catalog positions that need a fresh vector, ascending.
	Encode []int
	// Changed counts Encode positions whose identifier was cached with different text.
	Changed int
	// Drop lists cached identifiers absent from the catalog.
	Drop []string
	// Hashes holds the text hash of every catalog position.
	Hashes []string
	// Discarded explains why the whole snapshot was ignored, if it was.
	Discarded error
}

// Reconcile decides, for every catalog position, whether a cached vector can be
// reused. A snapshot from another embedding space (model or dimension) is
// discarded entirely. dim may be 0 when the live dimension is not known yet.
func Reconcile(cat *corpus.Catalog, snap *Snapshot, modelID string, dim int) Plan {
	n := cat.Len()
	p := Plan{
		Reuse:  make(map[int]int, n),
		Hashes: make([]string, n),
	}
	for i := 0; i < n; i++ {
		p.Hashes[i] = TextHash(CanonicalText(cat.At(i)))
	}

	if snap != nil {
		switch {
		case snap.Manifest.CacheVersion != CacheVersion:
			p.Discarded = fmt.Errorf("cache version %d, want %d", snap.Manifest.CacheVersion, CacheVersion)
		case snap.Manifest.ModelID != modelID:
			p.Discarded = fmt.Errorf("cache model %q, want %q", snap.Manifest.ModelID, modelID)
		case dim > 0 && snap.Manifest.Dim != dim:
			p.Discarded = fmt.Errorf("cache dim %d, want %d", snap.Manifest.Dim, dim)
		}
		if p.Discarded != nil {
			snap = nil
		}
	}

	cached := map[string]int{}
	if snap != nil {
		for i, e := range snap.Entries {
			if len(e.Vector) == snap.Manifest.Dim {
				cached[e.ID] = i
			}
		}
	}

	for i := 0; i < n; i++ {
		id := cat.At(i).ID
		j, ok := cached[id]
		if !ok {
			p.Encode = append(p.Encode, i)
			continue
		}
		if snap.Entries[j].TextHash != p.Hashes[i] {
			p.Encode = append(p.Encode, i)
			p.Changed++
			continue
		}
		p.Reuse[i] = j
	}

	if snap != nil {
		for _, e := range snap.Entries {
			if _, ok := cat.Lookup(e.ID); !ok {
				p.Drop = append(p.Drop, e.ID)
			}
		}
	}
	return p
}

// Dirty reports whether executing the plan changes the persisted cache.
func (p Plan) Dirty() bool {
	return len(p.Encode) > 0 || len(p.Drop) > 0 || p.Discarded != nil
}
