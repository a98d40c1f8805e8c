package index

import (
	"fmt"
	"os"
	"strings"

	"github.com/lexhaven/vecsync/internal/config"
	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// ProviderType identifies an index provider
type ProviderType string

const (
	// ProviderPinecone uses a Pinecone serverless index
	ProviderPinecone ProviderType = "pinecone"

	// ProviderLocal uses an on-disk HNSW index (offline, tests)
	ProviderLocal ProviderType = "local"
)

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "local":
		return ProviderLocal
	default:
		return ProviderPinecone
	}
}

// NewFromConfig builds the index client stack described by the config:
// the selected provider wrapped with a rate limit (rate_per_sec > 0) and
// a circuit breaker outermost, so an open circuit fails fast without
// consuming rate tokens.
//
// The Pinecone key comes only from the PINECONE_API_KEY environment
// variable. Config files never carry secrets.
func NewFromConfig(cfg config.IndexConfig) (Client, error) {
	var client Client
	var err error

	switch ParseProvider(cfg.Provider) {
	case ProviderPinecone:
		client, err = NewPineconeClient(PineconeConfig{
			APIKey:    os.Getenv("PINECONE_API_KEY"),
			IndexName: cfg.Name,
			Namespace: cfg.Namespace,
			Cloud:     cfg.Cloud,
			Region:    cfg.Region,
			Metric:    cfg.Metric,
			BatchSize: cfg.BatchSize,
		})

	case ProviderLocal:
		client, err = NewLocalClient(LocalConfig{
			Path:   cfg.Path,
			Metric: cfg.Metric,
		})

	default:
		return nil, syncerrors.ConfigError(
			fmt.Sprintf("unknown index provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	client = NewRateLimitedClient(client, cfg.RatePerSec)
	return NewBreakerClient(client), nil
}
