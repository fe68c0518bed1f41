package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/kamusis/sloka-search/internal/config"
	"github.com/kamusis/sloka-search/internal/embeddings"
	"github.com/kamusis/sloka-search/internal/embedstore"
	"github.com/kamusis/sloka-search/internal/search"
)

// loadConfig wraps config.Load with the hint every command prints.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'sloka init' first.", err)
	}
	return cfg, nil
}

// newProvider resolves the configured embeddings provider.
func newProvider(cfg *config.Config) (embeddings.Provider, error) {
	embCfg, err := embeddings.LoadConfig(cfg)
	if err != nil {
		return nil, err
	}
	return embeddings.NewFromConfig(embCfg)
}

// cacheLockPath is the flock file guarding cache writes, beside the cache dir.
func cacheLockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.CacheDir), "cache.lock")
}

// newEngine wires config into provider, cache, store and engine. force
// re-encodes every verse instead of reusing cached vectors.
func newEngine(cfg *config.Config, force bool) (*search.Engine, error) {
	prov, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := embedstore.OpenCache(cfg.CacheBackend, cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	store := embedstore.New(embedstore.Options{
		Cache:     cache,
		Encoder:   embeddings.NewEncoder(prov, embeddings.WithWorkers(cfg.EncodeWorkers)),
		LockPath:  cacheLockPath(cfg),
		BatchSize: cfg.BatchSize,
		Force:     force,
		Logger:    logger,
	})
	return search.New(search.Options{
		DatasetDir: cfg.DatasetDir,
		IndexPath:  cfg.IndexPath,
		Store:      store,
		Logger:     logger,
	}), nil
}
