package embedstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNoCache is returned by Cache.Load when nothing has been persisted yet.
var ErrNoCache = errors.New("no embedding cache")

// Cache persists embedding snapshots.
type Cache interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Location() string
}

// OpenCache returns the cache backend named by backend ("file" or "sqlite") rooted at dir.
func OpenCache(backend, dir string) (Cache, error) {
	switch backend {
	case "", "file":
		return NewFileCache(dir), nil
	case "sqlite":
		return NewSQLiteCache(filepath.Join(dir, "embeddings.db")), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", backend)
	}
}
