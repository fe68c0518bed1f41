package corpus

import (
	"fmt"
	"sort"
)

// VerseRecord is one stanza of the corpus. Records are immutable once loaded;
// consumers hold pointers into the Catalog rather than copies.
type VerseRecord struct {
	ID              string            `json:"id"`
	Mandala         int               `json:"mandala"`
	Hymn            int               `json:"hymn"`
	Stanza          int               `json:"stanza"`
	SourceText      string            `json:"sanskrit"`
	TranslatedText  string            `json:"translation"`
	Transliteration string            `json:"transliteration,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Location renders the zero-padded reference used by the explorer, e.g. "01.001.01".
func (v *VerseRecord) Location() string {
	return fmt.Sprintf("%02d.%03d.%02d", v.Mandala, v.Hymn, v.Stanza)
}

// VerseID builds the stable identifier for a stanza.
func VerseID(mandala, hymn, stanza int) string {
	return fmt.Sprintf("%d.%d.%d", mandala, hymn, stanza)
}

// HymnSummary is one row of a partition's table of contents.
type HymnSummary struct {
	Hymn    int `json:"hymn_number"`
	Stanzas int `json:"total_stanzas"`
}

// Catalog is the ordered verse sequence. Position i is the canonical index shared
// with the embedding matrix and the vector index; it is fixed at load time.
type Catalog struct {
	records    []*VerseRecord
	byID       map[string]int
	partitions []int
	skipped    []*PartitionError
}

// NewCatalog builds a catalog from records in the given order. Identifiers must be unique.
func NewCatalog(records []*VerseRecord) (*Catalog, error) {
	c := &Catalog{
		records: make([]*VerseRecord, 0, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	seen := map[int]bool{}
	for _, r := range records {
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate verse id %s", r.ID)
		}
		c.byID[r.ID] = len(c.records)
		c.records = append(c.records, r)
		if !seen[r.Mandala] {
			seen[r.Mandala] = true
			c.partitions = append(c.partitions, r.Mandala)
		}
	}
	sort.Ints(c.partitions)
	return c, nil
}

// Len returns the number of verses.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// At returns the record at position i.
func (c *Catalog) At(i int) *VerseRecord {
	return c.records[i]
}

// Lookup returns the position of id.
func (c *Catalog) Lookup(id string) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// Find returns the record for a mandala/hymn/stanza reference.
func (c *Catalog) Find(mandala, hymn, stanza int) (*VerseRecord, bool) {
	i, ok := c.byID[VerseID(mandala, hymn, stanza)]
	if !ok {
		return nil, false
	}
	return c.records[i], true
}

// IDs returns identifiers in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.ID
	}
	return out
}

// Partitions returns the loaded partition numbers in ascending order.
func (c *Catalog) Partitions() []int {
	return append([]int(nil), c.partitions...)
}

// Skipped returns the partitions that were skipped during load.
func (c *Catalog) Skipped() []*PartitionError {
	return append([]*PartitionError(nil), c.skipped...)
}

// Partition summarizes the hymns of one mandala in catalog order.
func (c *Catalog) Partition(mandala int) ([]HymnSummary, bool) {
	var out []HymnSummary
	idx := map[int]int{}
	for _, r := range c.records {
		if r.Mandala != mandala {
			continue
		}
		i, ok := idx[r.Hymn]
		if !ok {
			i = len(out)
			idx[r.Hymn] = i
			out = append(out, HymnSummary{Hymn: r.Hymn})
		}
		out[i].Stanzas++
	}
	return out, len(out) > 0
}
