package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexhaven/vecsync/internal/config"
	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// NewFromConfig builds the registry backend named by the config.
// Backends: sqlite (default), redis, memory.
func NewFromConfig(ctx context.Context, cfg config.RegistryConfig) (Registry, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return NewSQLiteRegistry(cfg.Path)

	case "redis":
		return NewRedisRegistry(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

	case "memory":
		return NewMemoryRegistry(), nil

	default:
		return nil, syncerrors.ConfigError(
			fmt.Sprintf("unknown registry backend %q", cfg.Backend), nil)
	}
}

// History returns the pass history interface when the backend provides
// one. All bundled backends do.
func History(reg Registry) (PassHistory, bool) {
	h, ok := reg.(PassHistory)
	return h, ok
}
