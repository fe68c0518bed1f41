package embedstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	pos        INTEGER PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	text_hash  TEXT NOT NULL,
	updated_at TEXT,
	embedding  BLOB NOT NULL
);`

// SQLiteCache stores a snapshot in a single SQLite database file.
type SQLiteCache struct {
	path string
}

// NewSQLiteCache returns a cache backed by the database at path.
func NewSQLiteCache(path string) *SQLiteCache {
	return &SQLiteCache{path: path}
}

func (c *SQLiteCache) Location() string { return c.path }

func (c *SQLiteCache) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite cache %s: %w", c.path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot create sqlite schema: %w", err)
	}
	return db, nil
}

// Load reads all entries ordered by their stored position.
func (c *SQLiteCache) Load(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCache
	}
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := map[string]string{}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM cache_meta`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		meta[k] = v
	}
	rows.Close()
	if len(meta) == 0 {
		return nil, ErrNoCache
	}

	m := Manifest{
		ModelID:   meta["model_id"],
		CreatedAt: meta["created_at"],
		Normalize: meta["normalize"] == "true",
	}
	m.CacheVersion, _ = strconv.Atoi(meta["cache_version"])
	m.Dim, _ = strconv.Atoi(meta["dim"])
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in sqlite cache: %q", meta["dim"])
	}

	rows, err = db.QueryContext(ctx, `SELECT id, text_hash, COALESCE(updated_at, ''), embedding FROM entries ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.TextHash, &e.UpdatedAt, &blob); err != nil {
			return nil, err
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	m.Count = len(entries)
	return &Snapshot{Manifest: m, Entries: entries}, nil
}

// Save replaces the database content in one transaction.
func (c *SQLiteCache) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Manifest.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", snap.Manifest.Dim)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("cannot create cache dir: %w", err)
	}
	db, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_meta`); err != nil {
		return err
	}

	created := snap.Manifest.CreatedAt
	if created == "" {
		created = time.Now().UTC().Format(time.RFC3339)
	}
	meta := map[string]string{
		"cache_version": strconv.Itoa(snap.Manifest.CacheVersion),
		"created_at":    created,
		"model_id":      snap.Manifest.ModelID,
		"dim":           strconv.Itoa(snap.Manifest.Dim),
		"normalize":     strconv.FormatBool(snap.Manifest.Normalize),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cache_meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries(pos, id, text_hash, updated_at, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range snap.Entries {
		if len(e.Vector) != snap.Manifest.Dim {
			return fmt.Errorf("entry %s has %d dims, want %d", e.ID, len(e.Vector), snap.Manifest.Dim)
		}
		if _, err := stmt.ExecContext(ctx, i, e.ID, e.TextHash, e.UpdatedAt, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("cannot insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
