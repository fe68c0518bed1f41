package embedstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/kamusis/sloka-search/internal/corpus"
)

// CanonicalText returns the text a verse is embedded from: the translation,
// or the source text when no translation exists.
func CanonicalText(v *corpus.VerseRecord) string {
	if v.TranslatedText != "" {
		return v.TranslatedText
	}
	return v.SourceText
}

// TextHash returns a sha256 hash (hex) of the canonical text.
func TextHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
