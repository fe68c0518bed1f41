package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultHashDim is the dimension of the offline hash provider.
const DefaultHashDim = 384

// hashProvider is an offline bag-of-words encoder: each token and each pair of
// adjacent tokens is hashed into a signed bucket. It needs no model files and
// gives identical vectors on every machine.
type hashProvider struct {
	dim int
}

// NewHash returns the deterministic feature-hashing provider.
func NewHash(dim int) Provider {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &hashProvider{dim: dim}
}

func (p *hashProvider) ModelID() string {
	return fmt.Sprintf("hash:%d", p.dim)
}

func (p *hashProvider) Dim() int {
	return p.dim
}

func (p *hashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toks := Tokenize(text)
	if len(toks) == 0 {
		return nil, fmt.Errorf("cannot embed text without tokens")
	}
	v := make([]float32, p.dim)
	for i, t := range toks {
		p.add(v, t, 1)
		if i > 0 {
			p.add(v, toks[i-1]+" "+t, 0.5)
		}
	}
	return v, nil
}

func (p *hashProvider) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Tokenize splits text into case-folded NFC tokens. Letters, digits and
// combining marks (Devanagari vowel signs) are kept; everything else separates.
func Tokenize(text string) []string {
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r)
	})
}
