// Package search answers verse queries over a lazily bootstrapped corpus,
// embedding matrix and vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/embedstore"
	"github.com/kamusis/sloka-search/internal/vecindex"
)

// Options configures an Engine.
type Options struct {
	DatasetDir string
	// IndexPath is where the vector index is persisted. Empty keeps it in memory only.
	IndexPath string
	Store     *embedstore.Store
	Logger    *slog.Logger
}

// loadedCorpus is published as soon as the catalog is read so explorer and
// keyword lookups keep working when embeddings are unavailable.
type loadedCorpus struct {
	catalog *corpus.Catalog
	blobs   []string
}

// loaded is everything a semantic query needs. Immutable once published.
type loaded struct {
	*loadedCorpus
	matrix *embedstore.Matrix
	index  *vecindex.Index
}

// Engine owns the search state of one process.
//
// The first call that needs data runs the bootstrap while holding boot;
// concurrent callers block on the same mutex and then take the fast path.
// Status reads a separate snapshot and never waits for the bootstrap.
type Engine struct {
	opts Options
	log  *slog.Logger

	boot    sync.Mutex
	failure error // set under boot when the last bootstrap failed

	cur    atomic.Pointer[loaded]
	corpus atomic.Pointer[loadedCorpus]

	statusMu sync.RWMutex
	status   Status
}

// New returns an uninitialized engine. Nothing is loaded until the first query
// or an explicit EnsureReady.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		opts:   opts,
		log:    log.With(slog.String("component", "search")),
		status: Status{State: StateUninitialized},
	}
}

// EnsureReady runs the bootstrap once. It returns nil when the engine is ready
// and the stored ErrNotReady failure when a previous bootstrap failed; call
// Reload to try again.
func (e *Engine) EnsureReady(ctx context.Context) error {
	if e.cur.Load() != nil {
		return nil
	}
	e.boot.Lock()
	defer e.boot.Unlock()
	if e.cur.Load() != nil {
		return nil
	}
	if e.failure != nil {
		return e.failure
	}
	return e.bootstrap(ctx)
}

// Reload discards the current state and bootstraps again.
func (e *Engine) Reload(ctx context.Context) error {
	e.boot.Lock()
	defer e.boot.Unlock()
	e.failure = nil
	return e.bootstrap(ctx)
}

// bootstrap must be called with boot held. It is not bounded by the caller's
// deadline: a client giving up must not leave the engine degraded.
func (e *Engine) bootstrap(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	serving := e.cur.Load() != nil
	e.setStatus(func(s *Status) {
		// A reload keeps reporting what the current state still serves.
		if !serving {
			*s = Status{}
		}
		s.State = StateBootstrapping
	})
	e.log.Info("bootstrap started", slog.String("dataset", e.opts.DatasetDir))

	if e.opts.Store == nil {
		return e.fail(errors.New("no embedding store configured"))
	}

	cat, err := corpus.LoadAllPartitions(e.opts.DatasetDir, e.log)
	if err != nil {
		e.corpus.Store(nil)
		return e.fail(err)
	}
	lc := &loadedCorpus{catalog: cat, blobs: keywordBlobs(cat)}
	e.corpus.Store(lc)
	e.setStatus(func(s *Status) {
		s.DataLoaded = true
		s.TotalVerses = cat.Len()
	})

	m, err := e.opts.Store.LoadOrBuild(ctx, cat)
	if err != nil {
		return e.fail(err)
	}
	e.setStatus(func(s *Status) {
		s.ModelLoaded = true
		s.ModelID = m.ModelID
	})

	ix, err := vecindex.LoadOrBuild(e.opts.IndexPath, m, e.log)
	if err != nil {
		return e.fail(err)
	}

	e.cur.Store(&loaded{loadedCorpus: lc, matrix: m, index: ix})
	e.setStatus(func(s *Status) {
		s.IndexLoaded = true
		s.Indexed = ix.Len()
		s.Ready = true
		s.State = StateReady
	})
	e.log.Info("bootstrap finished",
		slog.Int("verses", cat.Len()),
		slog.Int("indexed", ix.Len()),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (e *Engine) fail(err error) error {
	e.cur.Store(nil)
	e.failure = fmt.Errorf("%w: %w", ErrNotReady, err)
	e.setStatus(func(s *Status) {
		s.Ready = false
		s.IndexLoaded = false
		s.State = StateDegraded
		s.Reason = err.Error()
	})
	e.log.Error("bootstrap failed", slog.String("error", err.Error()))
	return e.failure
}

func (e *Engine) setStatus(fn func(*Status)) {
	e.statusMu.Lock()
	fn(&e.status)
	e.statusMu.Unlock()
}

// Status returns the current readiness snapshot without triggering a bootstrap.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Search encodes query and returns the topK most similar verses, best first.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if topK < 1 {
		return nil, &ValidationError{Field: "top_k", Reason: "must be at least 1"}
	}
	if err := e.EnsureReady(ctx); err != nil {
		return nil, err
	}
	st := e.cur.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	if st.index.Len() == 0 {
		return []Result{}, nil
	}

	qv, err := e.opts.Store.Encoder().Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cannot encode query: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := st.index.Query(qv, topK)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Verse: st.catalog.At(h.Position), Score: h.Score, Position: h.Position, Why: "semantic"}
	}
	return out, nil
}

// RandomSample returns min(n, total) distinct verses drawn uniformly without
// replacement. Each call draws independently.
func (e *Engine) RandomSample(ctx context.Context, n int) ([]Result, error) {
	if n < 1 {
		return nil, &ValidationError{Field: "n", Reason: "must be at least 1"}
	}
	if err := e.EnsureReady(ctx); err != nil {
		return nil, err
	}
	st := e.cur.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	positions := samplePositions(st.catalog.Len(), n)
	out := make([]Result, len(positions))
	for i, pos := range positions {
		out[i] = Result{Verse: st.catalog.At(pos), Position: pos, Why: "random"}
	}
	return out, nil
}

// samplePositions is a partial Fisher-Yates shuffle over [0, total) that only
// materializes the swapped slots.
func samplePositions(total, n int) []int {
	n = min(n, total)
	swapped := make(map[int]int, n)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		j := i + rand.Intn(total-i)
		out[i] = at(j)
		swapped[j] = at(i)
	}
	return out
}

// corpusOnly returns the loaded catalog even when the semantic side failed.
func (e *Engine) corpusOnly(ctx context.Context) (*loadedCorpus, error) {
	err := e.EnsureReady(ctx)
	if lc := e.corpus.Load(); lc != nil {
		return lc, nil
	}
	if err == nil {
		err = ErrNotReady
	}
	return nil, err
}

// Keyword returns verses containing every query token, in catalog order.
func (e *Engine) Keyword(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	lc, err := e.corpusOnly(ctx)
	if err != nil {
		return nil, err
	}
	return keywordSearch(lc.catalog, lc.blobs, query, limit), nil
}

// Verse looks up one stanza by reference.
func (e *Engine) Verse(ctx context.Context, mandala, hymn, stanza int) (*corpus.VerseRecord, error) {
	lc, err := e.corpusOnly(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := lc.catalog.Find(mandala, hymn, stanza)
	if !ok {
		return nil, fmt.Errorf("verse %s: %w", corpus.VerseID(mandala, hymn, stanza), ErrNotFound)
	}
	return v, nil
}

// Partition returns the hymn summary of one mandala.
func (e *Engine) Partition(ctx context.Context, mandala int) ([]corpus.HymnSummary, error) {
	lc, err := e.corpusOnly(ctx)
	if err != nil {
		return nil, err
	}
	hymns, ok := lc.catalog.Partition(mandala)
	if !ok {
		return nil, fmt.Errorf("mandala %d: %w", mandala, ErrNotFound)
	}
	return hymns, nil
}
