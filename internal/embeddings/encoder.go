package embeddings

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var errZeroVector = errors.New("provider returned a zero vector")

// Encoder turns text into unit vectors of one embedding space.
//
// The dimension is fixed by the first successful encode or by Expect; every
// later vector of a different length is rejected with DimensionMismatchError.
// An Encoder is safe for concurrent use.
type Encoder struct {
	provider Provider
	workers  int
	dim      atomic.Int64
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithWorkers bounds the number of concurrent provider calls in EncodeBatch.
func WithWorkers(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEncoder wraps p.
func NewEncoder(p Provider, opts ...Option) *Encoder {
	e := &Encoder{provider: p, workers: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ModelID identifies the embedding space together with Dim.
func (e *Encoder) ModelID() string { return e.provider.ModelID() }

// Dim returns the fixed dimension, or 0 before the first encode.
func (e *Encoder) Dim() int { return int(e.dim.Load()) }

// Provider returns the wrapped provider.
func (e *Encoder) Provider() Provider { return e.provider }

// Expect pins the dimension to dim, typically taken from a cache or index.
func (e *Encoder) Expect(dim int) error {
	if dim <= 0 {
		return &DimensionMismatchError{Got: dim, Want: e.Dim(), Source: "expect"}
	}
	if e.dim.CompareAndSwap(0, int64(dim)) {
		return nil
	}
	if cur := e.Dim(); cur != dim {
		return &DimensionMismatchError{Got: dim, Want: cur, Source: "expect"}
	}
	return nil
}

// Encode embeds one text and returns its unit vector.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	v, err := e.encode(ctx, text)
	if err != nil {
		return nil, &EncodingError{Index: -1, Err: err}
	}
	return v, nil
}

// EncodeBatch embeds texts with bounded parallelism. Both returned slices are
// aligned with texts; exactly one of vecs[i] and errs[i] is non-nil.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := e.encode(ctx, text)
			if err != nil {
				errs[i] = &EncodingError{Index: i, Err: err}
				return nil
			}
			vecs[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return vecs, errs
}

func (e *Encoder) encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}
	raw, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	n := int64(len(raw))
	if n == 0 {
		return nil, errors.New("provider returned an empty vector")
	}
	if !e.dim.CompareAndSwap(0, n) {
		if want := e.dim.Load(); want != n {
			return nil, &DimensionMismatchError{Got: int(n), Want: int(want), Source: e.provider.ModelID()}
		}
	}
	v, ok := NormalizeL2(raw)
	if !ok {
		return nil, errZeroVector
	}
	return v, nil
}
