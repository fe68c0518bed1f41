package embedstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	manifestFile = "cache_manifest.json"
	entriesFile  = "entries.jsonl"
	vectorFile   = "vectors.f32"
)

// FileCache stores a snapshot as a directory holding a JSON manifest, one JSONL
// row per entry and a flat little-endian float32 vector file.
type FileCache struct {
	dir string
}

// NewFileCache returns a file-backed cache rooted at dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

func (c *FileCache) Location() string { return c.dir }

// Load reads the snapshot from the cache directory.
func (c *FileCache) Load(ctx context.Context) (*Snapshot, error) {
	manifestPath := filepath.Join(c.dir, manifestFile)
	b, err := os.ReadFile(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", manifestPath, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON %s: %w", manifestPath, err)
	}
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in manifest: %d", m.Dim)
	}
	if m.VectorFile == "" {
		m.VectorFile = vectorFile
	}
	if m.EntriesFile == "" {
		m.EntriesFile = entriesFile
	}

	entries, err := loadEntries(filepath.Join(c.dir, m.EntriesFile))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors, err := loadVectors(filepath.Join(c.dir, m.VectorFile), len(entries), m.Dim)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Vector = vectors[i*m.Dim : (i+1)*m.Dim : (i+1)*m.Dim]
	}
	return &Snapshot{Manifest: m, Entries: entries}, nil
}

func loadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open entries file %s: %w", path, err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("invalid entries JSONL %s: %w", path, err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read entries file %s: %w", path, err)
	}
	return out, nil
}

func loadVectors(path string, n, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(n) * int64(dim) * 4
	if expected != st.Size() {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (entries=%d dim=%d)", st.Size(), expected, n, dim)
	}
	out := make([]float32, n*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}

// Save writes the snapshot into a sibling temp directory and swaps it into place.
func (c *FileCache) Save(ctx context.Context, snap *Snapshot) error {
	m := snap.Manifest
	if m.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", m.Dim)
	}
	m.VectorFile = vectorFile
	m.EntriesFile = entriesFile
	m.Count = len(snap.Entries)
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	parent := filepath.Dir(c.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create cache parent %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, ".cache-*")
	if err != nil {
		return fmt.Errorf("cannot create temp cache dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmp, manifestFile), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	if err := writeEntries(filepath.Join(tmp, entriesFile), snap.Entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeVectors(filepath.Join(tmp, vectorFile), snap.Entries, m.Dim); err != nil {
		return err
	}
	return atomicSwap(tmp, c.dir)
}

func writeEntries(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create entries file: %w", err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeVectors(path string, entries []Entry, dim int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	bw := bufio.NewWriter(f)
	for _, e := range entries {
		if len(e.Vector) != dim {
			_ = f.Close()
			return fmt.Errorf("entry %s has %d dims, want %d", e.ID, len(e.Vector), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, e.Vector); err != nil {
			_ = f.Close()
			return fmt.Errorf("cannot write vectors: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// atomicSwap replaces destDir with srcDir by renaming.
func atomicSwap(srcDir, destDir string) error {
	backup := destDir + ".bak"
	_ = os.RemoveAll(backup)
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		if _, stErr := os.Stat(backup); stErr == nil {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	_ = os.RemoveAll(backup)
	return nil
}
