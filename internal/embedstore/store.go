package embedstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/gofrs/flock"

	"github.com/kamusis/sloka-search/internal/corpus"
	"github.com/kamusis/sloka-search/internal/embeddings"
)

// ErrEmptyMatrix is returned when no catalog position ends up with a vector.
var ErrEmptyMatrix = errors.New("no embeddings could be produced")

const (
	defaultBatchSize    = 32
	defaultSaveAttempts = 3
	defaultRetryDelay   = 200 * time.Millisecond
	lockTimeout         = 30 * time.Second
	dimSampleAttempts   = 3
)

// Options configures a Store.
type Options struct {
	Cache   Cache
	Encoder *embeddings.Encoder
	// LockPath is the flock file serializing cache writers across processes.
	// Empty disables locking.
	LockPath     string
	BatchSize    int
	Force        bool
	SaveAttempts int
	RetryDelay   time.Duration
	Logger       *slog.Logger
}

// Store produces the embedding matrix for a catalog, reusing cached vectors.
type Store struct {
	opts Options
	log  *slog.Logger
}

// New returns a Store. Cache and Encoder are required.
func New(opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SaveAttempts <= 0 {
		opts.SaveAttempts = defaultSaveAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{opts: opts, log: log.With(slog.String("component", "embedstore"))}
}

// Encoder returns the encoder the store embeds with.
func (s *Store) Encoder() *embeddings.Encoder { return s.opts.Encoder }

// Cache returns the backing cache.
func (s *Store) Cache() Cache { return s.opts.Cache }

// LoadOrBuild returns one normalized row per catalog position. Cached vectors
// are reused when identifier, text hash and embedding space all match; the rest
// are encoded in batches. The cache is rewritten when anything changed; a
// failed write is logged and the in-memory matrix is still returned.
func (s *Store) LoadOrBuild(ctx context.Context, cat *corpus.Catalog) (*Matrix, error) {
	if s.opts.Cache == nil || s.opts.Encoder == nil {
		return nil, fmt.Errorf("embedstore: cache and encoder are required")
	}
	start := time.Now()
	enc := s.opts.Encoder

	snap := s.loadSnapshot(ctx)
	if snap != nil && s.liveDim() == 0 {
		s.learnDim(ctx, cat)
	}
	plan := Reconcile(cat, snap, enc.ModelID(), s.liveDim())
	if plan.Discarded == nil && snap != nil {
		if err := enc.Expect(snap.Manifest.Dim); err != nil {
			plan = Reconcile(cat, nil, enc.ModelID(), s.liveDim())
			plan.Discarded = err
		}
	}
	if plan.Discarded != nil {
		s.log.Warn("discarding embedding cache", slog.String("reason", plan.Discarded.Error()))
		snap = nil
	}
	s.log.Info("cache reconciled",
		slog.Int("reuse", len(plan.Reuse)),
		slog.Int("encode", len(plan.Encode)),
		slog.Int("changed", plan.Changed),
		slog.Int("drop", len(plan.Drop)))

	n := cat.Len()
	m := &Matrix{
		ModelID: enc.ModelID(),
		Rows:    make([][]float32, n),
		Failed:  roaring.New(),
	}
	updated := make([]string, n)
	for pos, j := range plan.Reuse {
		e := snap.Entries[j]
		v, ok := embeddings.NormalizeL2(e.Vector)
		if !ok {
			plan.Encode = append(plan.Encode, pos)
			continue
		}
		m.Rows[pos] = v
		updated[pos] = e.UpdatedAt
	}

	if err := s.encodeMissing(ctx, cat, plan.Encode, m, updated); err != nil {
		return nil, err
	}
	m.Dim = enc.Dim()

	if m.Present() == 0 {
		return nil, fmt.Errorf("%w (%d verses, %d failed)", ErrEmptyMatrix, n, m.Failed.GetCardinality())
	}
	if !m.Failed.IsEmpty() {
		s.log.Warn("some verses could not be encoded", slog.Uint64("failed", m.Failed.GetCardinality()))
	}

	if plan.Dirty() || s.opts.Force {
		s.persist(ctx, cat, m, plan.Hashes, updated)
	}
	s.log.Info("embedding matrix ready",
		slog.Int("rows", n),
		slog.Int("present", m.Present()),
		slog.Int("dim", m.Dim),
		slog.Duration("took", time.Since(start)))
	return m, nil
}

func (s *Store) liveDim() int {
	if d := s.opts.Encoder.Dim(); d > 0 {
		return d
	}
	return s.opts.Encoder.Provider().Dim()
}

// learnDim encodes a catalog text so a cache written by a provider of another
// width is checked against the live dimension instead of pinning it.
func (s *Store) learnDim(ctx context.Context, cat *corpus.Catalog) {
	var err error
	for i := 0; i < min(cat.Len(), dimSampleAttempts); i++ {
		if _, err = s.opts.Encoder.Encode(ctx, CanonicalText(cat.At(i))); err == nil {
			s.log.Debug("live embedding dimension", slog.Int("dim", s.opts.Encoder.Dim()))
			return
		}
	}
	if err != nil {
		s.log.Warn("cannot determine live embedding dimension, trusting cache", slog.String("error", err.Error()))
	}
}

func (s *Store) loadSnapshot(ctx context.Context) *Snapshot {
	if s.opts.Force {
		return nil
	}
	snap, err := s.opts.Cache.Load(ctx)
	switch {
	case errors.Is(err, ErrNoCache):
		s.log.Info("no embedding cache yet", slog.String("location", s.opts.Cache.Location()))
		return nil
	case err != nil:
		s.log.Warn("cannot read embedding cache", slog.String("location", s.opts.Cache.Location()), slog.String("error", err.Error()))
		return nil
	}
	return snap
}

func (s *Store) encodeMissing(ctx context.Context, cat *corpus.Catalog, positions []int, m *Matrix, updated []string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	bs := s.opts.BatchSize
	for lo := 0; lo < len(positions); lo += bs {
		hi := min(lo+bs, len(positions))
		batch := positions[lo:hi]
		texts := make([]string, len(batch))
		for i, pos := range batch {
			texts[i] = CanonicalText(cat.At(pos))
		}
		vecs, errs := s.opts.Encoder.EncodeBatch(ctx, texts)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("encoding interrupted: %w", err)
		}
		for i, pos := range batch {
			if errs[i] != nil {
				m.Failed.Add(uint32(pos))
				s.log.Debug("verse encoding failed",
					slog.String("id", cat.At(pos).ID),
					slog.String("error", errs[i].Error()))
				continue
			}
			m.Rows[pos] = vecs[i]
			updated[pos] = now
		}
		s.log.Debug("batch encoded", slog.Int("done", hi), slog.Int("total", len(positions)))
	}
	return nil
}

func (s *Store) persist(ctx context.Context, cat *corpus.Catalog, m *Matrix, hashes, updated []string) {
	snap := &Snapshot{
		Manifest: Manifest{
			CacheVersion: CacheVersion,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			ModelID:      m.ModelID,
			Dim:          m.Dim,
			Normalize:    true,
		},
		Entries: make([]Entry, 0, m.Present()),
	}
	for i, row := range m.Rows {
		if row == nil {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			ID:        cat.At(i).ID,
			TextHash:  hashes[i],
			UpdatedAt: updated[i],
			Vector:    row,
		})
	}

	var err error
	for attempt := 1; attempt <= s.opts.SaveAttempts; attempt++ {
		if err = s.saveLocked(ctx, snap); err == nil {
			s.log.Info("embedding cache written",
				slog.String("location", s.opts.Cache.Location()),
				slog.Int("entries", len(snap.Entries)))
			return
		}
		s.log.Warn("cache write failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		if attempt < s.opts.SaveAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.RetryDelay * time.Duration(attempt)):
			}
		}
	}
	s.log.Error("giving up on cache write", slog.String("error", err.Error()))
}

func (s *Store) saveLocked(ctx context.Context, snap *Snapshot) error {
	if s.opts.LockPath == "" {
		return s.opts.Cache.Save(ctx, snap)
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.LockPath), 0o755); err != nil {
		return fmt.Errorf("cannot create lock dir: %w", err)
	}
	l := flock.New(s.opts.LockPath)
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := l.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("cannot acquire cache lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("cache is locked by another process (lock: %s)", s.opts.LockPath)
	}
	defer func() { _ = l.Unlock() }()
	return s.opts.Cache.Save(ctx, snap)
}
