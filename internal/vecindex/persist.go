package vecindex

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kamusis/sloka-search/internal/embedstore"
)

// artifact is the msgpack layout of a persisted index.
type artifact struct {
	Version     string    `msgpack:"version"`
	CreatedAt   string    `msgpack:"created_at"`
	ModelID     string    `msgpack:"model_id"`
	Dim         int       `msgpack:"dim"`
	Fingerprint string    `msgpack:"fingerprint"`
	Positions   []int     `msgpack:"positions"`
	Vectors     []float32 `msgpack:"vectors"`
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// MarshalBinary encodes the index as zstd-compressed msgpack.
func (ix *Index) MarshalBinary() ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(&artifact{
		Version:     FormatVersion,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		ModelID:     ix.modelID,
		Dim:         ix.dim,
		Fingerprint: ix.fingerprint,
		Positions:   ix.positions,
		Vectors:     ix.vectors,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot encode index: %w", err)
	}
	return enc.EncodeAll(raw, nil), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary. Artifacts written in
// another format version are rejected with ErrIncompatibleVersion.
func (ix *Index) UnmarshalBinary(data []byte) error {
	_, dec, err := codecs()
	if err != nil {
		return err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("cannot decompress index: %w", err)
	}
	var a artifact
	if err := msgpack.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("cannot decode index: %w", err)
	}
	if compareSemver(a.Version, FormatVersion) != 0 {
		return fmt.Errorf("%w: %q, want %q", ErrIncompatibleVersion, a.Version, FormatVersion)
	}
	if a.Dim <= 0 || len(a.Vectors) != len(a.Positions)*a.Dim {
		return fmt.Errorf("corrupt index: %d positions, %d floats, dim %d", len(a.Positions), len(a.Vectors), a.Dim)
	}
	*ix = Index{
		modelID:     a.ModelID,
		dim:         a.Dim,
		positions:   a.Positions,
		vectors:     a.Vectors,
		fingerprint: a.Fingerprint,
	}
	return nil
}

// Persist writes the index to path atomically (temp file + rename).
func (ix *Index) Persist(path string) error {
	b, err := ix.MarshalBinary()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".verses-*.idx")
	if err != nil {
		return fmt.Errorf("cannot create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot move index into place: %w", err)
	}
	return nil
}

// Load reads a persisted index.
func Load(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ix := &Index{}
	if err := ix.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return ix, nil
}

// Validate checks that ix was built from m: same embedding space, same
// present positions and same vector content.
func (ix *Index) Validate(m *embedstore.Matrix) error {
	switch {
	case ix.modelID != m.ModelID:
		return &StaleError{Reason: fmt.Sprintf("model %q, want %q", ix.modelID, m.ModelID)}
	case ix.dim != m.Dim:
		return &StaleError{Reason: fmt.Sprintf("dim %d, want %d", ix.dim, m.Dim)}
	case ix.Len() != m.Present():
		return &StaleError{Reason: fmt.Sprintf("%d rows, want %d", ix.Len(), m.Present())}
	}
	want := make([]int, 0, m.Present())
	for pos, row := range m.Rows {
		if row != nil && !m.IsFailed(pos) {
			want = append(want, pos)
		}
	}
	if !slices.Equal(ix.positions, want) {
		return &StaleError{Reason: "position set differs"}
	}
	if ix.fingerprint != Fingerprint(m) {
		return &StaleError{Reason: "vector content differs"}
	}
	return nil
}

// LoadOrBuild returns the persisted index at path when it still matches m, and
// otherwise builds a fresh one from m and persists it. A failed write is
// logged; the built index is returned either way.
func LoadOrBuild(path string, m *embedstore.Matrix, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		ix, err := Load(path)
		switch {
		case err == nil:
			verr := ix.Validate(m)
			if verr == nil {
				logger.Info("index loaded", slog.String("path", path), slog.Int("rows", ix.Len()))
				return ix, nil
			}
			logger.Info("rebuilding index", slog.String("reason", verr.Error()))
		case errors.Is(err, os.ErrNotExist):
			logger.Info("no persisted index, building", slog.String("path", path))
		default:
			logger.Warn("discarding unreadable index", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	start := time.Now()
	ix, err := Build(m)
	if err != nil {
		return nil, err
	}
	logger.Info("index built", slog.Int("rows", ix.Len()), slog.Int("dim", ix.Dim()), slog.Duration("took", time.Since(start)))
	if path != "" {
		if err := ix.Persist(path); err != nil {
			logger.Warn("cannot persist index", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return ix, nil
}

// Fingerprint hashes the present rows of m with their positions.
func Fingerprint(m *embedstore.Matrix) string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m.Dim))
	h.Write(buf[:])
	for pos, row := range m.Rows {
		if row == nil || m.IsFailed(pos) {
			continue
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(pos))
		h.Write(buf[:])
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
