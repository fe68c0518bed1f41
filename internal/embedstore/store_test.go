package embedstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/embeddings"
)

// countingProvider wraps the hash provider, counts calls and fails on listed texts.
type countingProvider struct {
	embeddings.Provider
	calls atomic.Int64
	fail  map[string]bool
}

func newCountingProvider(fail ...string) *countingProvider {
	p := &countingProvider{Provider: embeddings.NewHash(32), fail: map[string]bool{}}
	for _, f := range fail {
		p.fail[f] = true
	}
	return p
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.fail[text] {
		return nil, fmt.Errorf("refusing %q", text)
	}
	return p.Provider.Embed(ctx, text)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func catalogOf(t *testing.T, texts map[string]string, order ...string) *corpus.Catalog {
	t.Helper()
	var recs []*corpus.VerseRecord
	for i, id := range order {
		recs = append(recs, &corpus.VerseRecord{ID: id, Mandala: 1, Hymn: 1, Stanza: i + 1, TranslatedText: texts[id]})
	}
	cat, err := corpus.NewCatalog(recs)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func newStore(t *testing.T, cache Cache, p embeddings.Provider, force bool) *Store {
	t.Helper()
	return New(Options{
		Cache:     cache,
		Encoder:   embeddings.NewEncoder(p, embeddings.WithWorkers(3)),
		LockPath:  filepath.Join(t.TempDir(), "cache.lock"),
		BatchSize: 2,
		Force:     force,
		Logger:    testLogger(),
	})
}

func TestReconcile_Plan(t *testing.T) {
	cat := catalogOf(t, map[string]string{
		"b": "beta", "c": "gamma changed", "d": "delta",
	}, "b", "c", "d")
	snap := &Snapshot{
		Manifest: Manifest{CacheVersion: CacheVersion, ModelID: "hash:2", Dim: 2},
		Entries: []Entry{
			{ID: "a", TextHash: TextHash("alpha"), Vector: []float32{1, 0}},
			{ID: "b", TextHash: TextHash("beta"), Vector: []float32{0, 1}},
			{ID: "c", TextHash: TextHash("gamma"), Vector: []float32{1, 1}},
		},
	}

	p := Reconcile(cat, snap, "hash:2", 2)
	if p.Discarded != nil {
		t.Fatalf("unexpected discard: %v", p.Discarded)
	}
	if len(p.Reuse) != 1 || p.Reuse[0] != 1 {
		t.Fatalf("reuse: %v", p.Reuse)
	}
	if fmt.Sprint(p.Encode) != "[1 2]" || p.Changed != 1 {
		t.Fatalf("encode: %v changed=%d", p.Encode, p.Changed)
	}
	if fmt.Sprint(p.Drop) != "[a]" {
		t.Fatalf("drop: %v", p.Drop)
	}
	if !p.Dirty() {
		t.Fatalf("plan should be dirty")
	}

	for _, tc := range []struct {
		model string
		dim   int
	}{{"hash:3", 0}, {"hash:2", 3}} {
		p := Reconcile(cat, snap, tc.model, tc.dim)
		if p.Discarded == nil || len(p.Reuse) != 0 || len(p.Encode) != 3 || len(p.Drop) != 0 {
			t.Fatalf("%s/%d: expected whole snapshot discarded, got %+v", tc.model, tc.dim, p)
		}
	}
}

func TestStore_LoadOrBuildReusesCache(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "cache")
			cache, err := OpenCache(backend, dir)
			if err != nil {
				t.Fatal(err)
			}
			texts := map[string]string{"1.1.1": "Agni the priest", "1.1.2": "Indra slays the serpent", "1.1.3": "Soma flows"}
			cat := catalogOf(t, texts, "1.1.1", "1.1.2", "1.1.3")

			p1 := newCountingProvider()
			m1, err := newStore(t, cache, p1, false).LoadOrBuild(context.Background(), cat)
			if err != nil {
				t.Fatalf("first build: %v", err)
			}
			if p1.calls.Load() != 3 || m1.Present() != 3 || m1.Dim != 32 {
				t.Fatalf("first build: calls=%d present=%d dim=%d", p1.calls.Load(), m1.Present(), m1.Dim)
			}
			for i, row := range m1.Rows {
				if math.Abs(embeddings.Dot(row, row)-1) > 1e-5 {
					t.Fatalf("row %d not normalized", i)
				}
			}

			p2 := newCountingProvider()
			m2, err := newStore(t, cache, p2, false).LoadOrBuild(context.Background(), cat)
			if err != nil {
				t.Fatalf("second build: %v", err)
			}
			if p2.calls.Load() != 0 {
				t.Fatalf("expected full cache reuse, got %d encoder calls", p2.calls.Load())
			}
			for i := range m1.Rows {
				if embeddings.Dot(m1.Rows[i], m2.Rows[i]) < 0.99999 {
					t.Fatalf("row %d differs after reload", i)
				}
			}

			texts["1.1.2"] = "Indra drinks soma"
			texts["1.1.4"] = "Dawn appears"
			cat2 := catalogOf(t, texts, "1.1.2", "1.1.3", "1.1.4")
			p3 := newCountingProvider()
			m3, err := newStore(t, cache, p3, false).LoadOrBuild(context.Background(), cat2)
			if err != nil {
				t.Fatalf("third build: %v", err)
			}
			if p3.calls.Load() != 2 || m3.Len() != 3 {
				t.Fatalf("expected 2 encodes for changed+new, got %d", p3.calls.Load())
			}
			snap, err := cache.Load(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(snap.Entries) != 3 || snap.Entries[0].ID != "1.1.2" {
				t.Fatalf("cache not rewritten in catalog order: %+v", snap.Entries)
			}
		})
	}
}

func TestStore_FailedItemsStayAligned(t *testing.T) {
	cache := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	texts := map[string]string{"a": "fire", "b": "broken", "c": "water"}
	cat := catalogOf(t, texts, "a", "b", "c")

	m, err := newStore(t, cache, newCountingProvider("broken"), false).LoadOrBuild(context.Background(), cat)
	if err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if m.Len() != 3 || m.Present() != 2 {
		t.Fatalf("len=%d present=%d", m.Len(), m.Present())
	}
	if !m.IsFailed(1) || m.Rows[1] != nil || m.Rows[0] == nil || m.Rows[2] == nil {
		t.Fatalf("failed row not recorded at its position")
	}
	snap, err := cache.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("failed entry should not be cached, got %d entries", len(snap.Entries))
	}
}

func TestStore_AllFailedIsEmptyMatrix(t *testing.T) {
	cache := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	cat := catalogOf(t, map[string]string{"a": "x", "b": "y"}, "a", "b")

	_, err := newStore(t, cache, newCountingProvider("x", "y"), false).LoadOrBuild(context.Background(), cat)
	if !errors.Is(err, ErrEmptyMatrix) {
		t.Fatalf("expected ErrEmptyMatrix, got %v", err)
	}
}

func TestStore_ForceIgnoresCache(t *testing.T) {
	cache := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	cat := catalogOf(t, map[string]string{"a": "fire", "b": "water"}, "a", "b")

	if _, err := newStore(t, cache, newCountingProvider(), false).LoadOrBuild(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	p := newCountingProvider()
	if _, err := newStore(t, cache, p, true).LoadOrBuild(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("force should re-encode everything, got %d calls", p.calls.Load())
	}
}

func TestFileCache_LoadMissing(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "nope"))
	if _, err := c.Load(context.Background()); !errors.Is(err, ErrNoCache) {
		t.Fatalf("expected ErrNoCache, got %v", err)
	}
	s := NewSQLiteCache(filepath.Join(t.TempDir(), "nope.db"))
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrNoCache) {
		t.Fatalf("expected ErrNoCache from sqlite, got %v", err)
	}
}

// unsizedProvider reports no dimension up front, like a remote model with
// embeddings.dim unset, and answers with vectors of the given width.
type unsizedProvider struct {
	embeddings.Provider
	calls atomic.Int64
}

func newUnsizedProvider(width int) *unsizedProvider {
	return &unsizedProvider{Provider: embeddings.NewHash(width)}
}

func (p *unsizedProvider) ModelID() string { return "text-embedding-3-small" }
func (p *unsizedProvider) Dim() int        { return 0 }

func (p *unsizedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	return p.Provider.Embed(ctx, text)
}

func TestStore_CacheOfOtherWidthIsRebuilt(t *testing.T) {
	cache := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	cat := catalogOf(t, map[string]string{"a": "fire", "b": "water", "c": "dawn"}, "a", "b", "c")

	m, err := newStore(t, cache, newUnsizedProvider(8), false).LoadOrBuild(context.Background(), cat)
	if err != nil {
		t.Fatal(err)
	}
	if m.Dim != 8 {
		t.Fatalf("first build dim: %d", m.Dim)
	}

	p := newUnsizedProvider(16)
	s := newStore(t, cache, p, false)
	m, err = s.LoadOrBuild(context.Background(), cat)
	if err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if m.Dim != 16 || m.Present() != 3 {
		t.Fatalf("stale cache served: dim=%d present=%d", m.Dim, m.Present())
	}
	for i, row := range m.Rows {
		if len(row) != 16 {
			t.Fatalf("row %d has width %d", i, len(row))
		}
	}
	if p.calls.Load() < 3 {
		t.Fatalf("expected every verse re-encoded, got %d calls", p.calls.Load())
	}
	if _, err := s.Encoder().Encode(context.Background(), "fire and sacrifice"); err != nil {
		t.Fatalf("query encode after rebuild: %v", err)
	}
	snap, err := cache.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Manifest.Dim != 16 {
		t.Fatalf("cache not rewritten at the live width: %d", snap.Manifest.Dim)
	}

	// Same width again: the cache is reused after the one sizing encode.
	p = newUnsizedProvider(16)
	if _, err := newStore(t, cache, p, false).LoadOrBuild(context.Background(), cat); err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected only the sizing encode, got %d calls", p.calls.Load())
	}
}

// failingCache never has a snapshot and rejects every save.
type failingCache struct {
	saves atomic.Int64
}

func (c *failingCache) Load(context.Context) (*Snapshot, error) { return nil, ErrNoCache }
func (c *failingCache) Location() string                        { return "failing" }

func (c *failingCache) Save(context.Context, *Snapshot) error {
	c.saves.Add(1)
	return errors.New("disk full")
}

func TestStore_FailedSaveIsRetriedThenIgnored(t *testing.T) {
	cache := &failingCache{}
	cat := catalogOf(t, map[string]string{"a": "fire", "b": "water"}, "a", "b")
	s := New(Options{
		Cache:        cache,
		Encoder:      embeddings.NewEncoder(newCountingProvider()),
		LockPath:     filepath.Join(t.TempDir(), "cache.lock"),
		SaveAttempts: 3,
		RetryDelay:   time.Millisecond,
		Logger:       testLogger(),
	})

	m, err := s.LoadOrBuild(context.Background(), cat)
	if err != nil {
		t.Fatalf("a failed cache write must not fail the build: %v", err)
	}
	if got := cache.saves.Load(); got != 3 {
		t.Fatalf("expected 3 save attempts, got %d", got)
	}
	if m.Present() != 2 {
		t.Fatalf("matrix not served after failed save: present=%d", m.Present())
	}
}
