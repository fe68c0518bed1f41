package search

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/embeddings"
)

// keywordBlobs returns one case-folded search text per catalog position,
// covering identifier, location, texts and metadata values.
func keywordBlobs(cat *corpus.Catalog) []string {
	fold := cases.Fold()
	out := make([]string, cat.Len())
	for i := range out {
		v := cat.At(i)
		parts := []string{v.ID, v.Location(), v.SourceText, v.TranslatedText, v.Transliteration}
		for _, m := range v.Metadata {
			parts = append(parts, m)
		}
		out[i] = fold.String(strings.Join(parts, "\n"))
	}
	return out
}

// keywordSearch matches verses whose blob contains every query token (AND
// semantics). Results keep catalog order; limit <= 0 means no limit.
func keywordSearch(cat *corpus.Catalog, blobs []string, query string, limit int) []Result {
	tokens := embeddings.Tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}

	out := []Result{}
	for i, blob := range blobs {
		ok := true
		for _, tok := range tokens {
			if !strings.Contains(blob, tok) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, Result{Verse: cat.At(i), Score: 1, Position: i, Why: "keyword"})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
