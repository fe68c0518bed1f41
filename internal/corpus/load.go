package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var partitionFileRe = regexp.MustCompile(`^mandala_(\d+)\.json$`)

// partitionFile mirrors dataset/mandala_<N>.json.
type partitionFile struct {
	MandalaNumber int `json:"mandala_number"`
	Hymns         []struct {
		HymnNumber int              `json:"hymn_number"`
		Stanzas    []map[string]any `json:"stanzas"`
	} `json:"hymns"`
}

// PartitionSource is one discovered partition file.
type PartitionSource struct {
	Number int
	Path   string
}

// DiscoverPartitions lists mandala_<N>.json files in dir ordered by N ascending.
func DiscoverPartitions(dir string) ([]PartitionSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read dataset directory %s: %w", dir, err)
	}
	var out []PartitionSource
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partitionFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, PartitionSource{Number: n, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// LoadAllPartitions reads every partition in dir into a Catalog.
//
// Traversal order is partition number ascending, then file order within a
// partition. A partition that cannot be read or fails validation is skipped
// with a warning. When an identifier repeats, the earlier entry is removed and
// the later one takes its place at the end of the sequence.
func LoadAllPartitions(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sources, err := DiscoverPartitions(dir)
	if err != nil {
		return nil, &DataLoadError{Dir: dir, Err: fmt.Errorf("%w: %v", ErrNoPartitions, err)}
	}

	var (
		records []*VerseRecord
		pos     = map[string]int{}
		skipped []*PartitionError
		loaded  int
	)
	for _, src := range sources {
		part, err := LoadPartition(src.Path, src.Number)
		if err != nil {
			pe := &PartitionError{Path: src.Path, Err: err}
			skipped = append(skipped, pe)
			logger.Warn("skipping partition", slog.String("path", src.Path), slog.String("error", err.Error()))
			continue
		}
		loaded++
		for _, r := range part {
			if prev, dup := pos[r.ID]; dup {
				logger.Warn("duplicate verse id, moving to end",
					slog.String("id", r.ID),
					slog.Int("previous_position", prev),
					slog.String("path", src.Path))
				records[prev] = nil
			}
			pos[r.ID] = len(records)
			records = append(records, r)
		}
	}
	if loaded == 0 {
		return nil, &DataLoadError{Dir: dir, Skipped: skipped, Err: ErrNoPartitions}
	}

	compact := records[:0]
	for _, r := range records {
		if r != nil {
			compact = append(compact, r)
		}
	}
	cat, err := NewCatalog(compact)
	if err != nil {
		return nil, &DataLoadError{Dir: dir, Skipped: skipped, Err: err}
	}
	cat.skipped = skipped
	logger.Info("corpus loaded",
		slog.Int("partitions", loaded),
		slog.Int("skipped", len(skipped)),
		slog.Int("verses", cat.Len()))
	return cat, nil
}

// LoadPartition parses one partition file. number is the partition number taken
// from the file name; a conflicting mandala_number inside the file is an error.
// Any invalid stanza invalidates the whole partition.
func LoadPartition(path string, number int) ([]*VerseRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read: %w", err)
	}
	var pf partitionFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if pf.MandalaNumber != 0 && pf.MandalaNumber != number {
		return nil, fmt.Errorf("mandala_number %d does not match file name (%d)", pf.MandalaNumber, number)
	}

	var out []*VerseRecord
	for hi, h := range pf.Hymns {
		if h.HymnNumber <= 0 {
			return nil, fmt.Errorf("hymn #%d: invalid hymn_number %d", hi, h.HymnNumber)
		}
		for si, raw := range h.Stanzas {
			r, err := parseStanza(number, h.HymnNumber, raw)
			if err != nil {
				return nil, fmt.Errorf("hymn %d stanza #%d: %w", h.HymnNumber, si, err)
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func parseStanza(mandala, hymn int, raw map[string]any) (*VerseRecord, error) {
	num, ok := raw["stanza_number"].(float64)
	if !ok || num <= 0 || num != math.Trunc(num) {
		return nil, fmt.Errorf("invalid stanza_number %v", raw["stanza_number"])
	}
	stanza := int(num)

	r := &VerseRecord{
		ID:      VerseID(mandala, hymn, stanza),
		Mandala: mandala,
		Hymn:    hymn,
		Stanza:  stanza,
	}
	for k, v := range raw {
		s, isStr := v.(string)
		switch k {
		case "stanza_number":
		case "sanskrit":
			if !isStr {
				return nil, fmt.Errorf("sanskrit must be a string")
			}
			r.SourceText = cleanText(s)
		case "translation":
			if !isStr {
				return nil, fmt.Errorf("translation must be a string")
			}
			r.TranslatedText = cleanText(s)
		case "transliteration":
			if isStr {
				r.Transliteration = cleanText(s)
			}
		default:
			if isStr && strings.TrimSpace(s) != "" {
				if r.Metadata == nil {
					r.Metadata = map[string]string{}
				}
				r.Metadata[k] = cleanText(s)
			}
		}
	}
	if r.SourceText == "" && r.TranslatedText == "" {
		return nil, fmt.Errorf("stanza %s has no text", r.ID)
	}
	return r, nil
}

// cleanText trims and NFC-normalizes text so Devanagari compares byte-for-byte.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
