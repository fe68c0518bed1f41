package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/kamusis/sloka-search/internal/config"
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model and
// safe for concurrent use.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Pinger is implemented by providers that can check their backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Dim      int
}

// LoadConfig resolves embeddings config from the YAML config, with the API key
// taken from the environment first, then ~/.sloka/.env.
func LoadConfig(cfg *config.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	apiKey, err := config.GetConfigValue("SLOKA_EMBEDDINGS_API_KEY")
	if err != nil {
		return nil, err
	}
	out := &Config{
		Provider: strings.ToLower(strings.TrimSpace(cfg.Embeddings.Provider)),
		Model:    cfg.Embeddings.Model,
		APIKey:   apiKey,
		BaseURL:  cfg.Embeddings.BaseURL,
		Dim:      cfg.Embeddings.Dim,
	}
	if out.BaseURL == "" {
		switch out.Provider {
		case "openai":
			out.BaseURL = "https://api.openai.com/v1"
		case "ollama":
			out.BaseURL = "http://localhost:11434"
		}
	}
	return out, nil
}

// NewFromConfig returns an embeddings provider.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	switch cfg.Provider {
	case "", "hash":
		return NewHash(cfg.Dim), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
}
