package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embeddings selects and configures the embedding provider.
type Embeddings struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Dim      int    `yaml:"dim,omitempty"`
}

// Config is the in-memory representation of ~/.sloka/sloka.yaml.
type Config struct {
	DataDir       string     `yaml:"data_dir"`
	DatasetDir    string     `yaml:"dataset_dir,omitempty"`
	CacheDir      string     `yaml:"cache_dir,omitempty"`
	IndexPath     string     `yaml:"index_path,omitempty"`
	AudioDir      string     `yaml:"audio_dir,omitempty"`
	CacheBackend  string     `yaml:"cache_backend,omitempty"`
	BatchSize     int        `yaml:"batch_size,omitempty"`
	EncodeWorkers int        `yaml:"encode_workers,omitempty"`
	DefaultTopK   int        `yaml:"default_top_k,omitempty"`
	ListenAddr    string     `yaml:"listen_addr,omitempty"`
	RequireAPIKey bool       `yaml:"require_api_key,omitempty"`
	Embeddings    Embeddings `yaml:"embeddings"`
}

// SlokaDir returns the absolute path to ~/.sloka/.
func SlokaDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".sloka"), nil
}

// ConfigPath returns the config file path. SLOKA_CONFIG overrides ~/.sloka/sloka.yaml.
func ConfigPath() (string, error) {
	if p := os.Getenv("SLOKA_CONFIG"); p != "" {
		return ExpandPath(p)
	}
	dir, err := SlokaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sloka.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the default Config written on first sloka init.
func DefaultConfig() (*Config, error) {
	dir, err := SlokaDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		DataDir:       filepath.Join(dir, "data"),
		CacheBackend:  "file",
		BatchSize:     32,
		EncodeWorkers: 4,
		DefaultTopK:   10,
		ListenAddr:    ":8008",
		Embeddings: Embeddings{
			Provider: "hash",
			Dim:      384,
		},
	}, nil
}

// Load reads and parses the config file. A missing file yields DefaultConfig.
// Environment overrides are applied after parsing.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}
	if err := cfg.applyOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save marshals cfg and writes it to the config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyOverrides() error {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SLOKA_DATA_DIR", &c.DataDir},
		{"SLOKA_LISTEN_ADDR", &c.ListenAddr},
		{"SLOKA_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider},
		{"SLOKA_EMBEDDINGS_MODEL", &c.Embeddings.Model},
		{"SLOKA_EMBEDDINGS_BASE_URL", &c.Embeddings.BaseURL},
	}
	for _, o := range overrides {
		v, err := GetConfigValue(o.key)
		if err != nil {
			return err
		}
		if v != "" {
			*o.dst = v
		}
	}
	return nil
}

// resolvePaths expands ~ and derives unset artifact paths from DataDir.
func (c *Config) resolvePaths() error {
	var err error
	if c.DataDir, err = ExpandPath(c.DataDir); err != nil {
		return err
	}
	if c.DatasetDir == "" {
		c.DatasetDir = filepath.Join(c.DataDir, "dataset")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "embeddings", "cache")
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.DataDir, "embeddings", "index", "verses.idx")
	}
	if c.AudioDir == "" {
		c.AudioDir = filepath.Join(c.DataDir, "audio")
	}
	for _, p := range []*string{&c.DatasetDir, &c.CacheDir, &c.IndexPath, &c.AudioDir} {
		if *p, err = ExpandPath(*p); err != nil {
			return err
		}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.EncodeWorkers <= 0 {
		c.EncodeWorkers = 1
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 10
	}
	return nil
}
