package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lexhaven/vecsync/internal/config"
	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// ProviderType identifies an embedding provider
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses deterministic hash embeddings (offline, tests)
	ProviderStatic ProviderType = "static"
)

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "openai":
		return ProviderOpenAI
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// NewFromConfig builds the embedder stack described by the config: the
// selected provider wrapped with an LRU cache (cache_size > 0) and a
// request rate limit (rate_per_sec > 0). A negative cache_size disables
// caching.
//
// The OpenAI key comes only from the OPENAI_API_KEY environment
// variable. Config files never carry secrets.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var embedder Embedder
	var err error

	switch ParseProvider(cfg.Provider) {
	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		ocfg.Dimensions = cfg.Dimensions
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		embedder, err = NewOllamaEmbedder(ctx, ocfg)

	case ProviderOpenAI:
		oa := OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}
		embedder, err = NewOpenAIEmbedder(oa)

	case ProviderStatic:
		embedder = NewStaticEmbedderWithDimensions(cfg.Dimensions)

	default:
		return nil, syncerrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize >= 0 {
		embedder, err = NewCachedEmbedder(embedder, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}

	return NewRateLimitedEmbedder(embedder, cfg.RatePerSec), nil
}

// Info describes an embedder for status output.
type Info struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo inspects an embedder, unwrapping cache and rate limit layers.
func GetInfo(ctx context.Context, embedder Embedder) Info {
	info := Info{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	for {
		switch e := inner.(type) {
		case *CachedEmbedder:
			inner = e.inner
			continue
		case *RateLimitedEmbedder:
			inner = e.inner
			continue
		}
		break
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *OpenAIEmbedder:
		info.Provider = ProviderOpenAI
	default:
		info.Provider = ProviderStatic
	}

	return info
}
