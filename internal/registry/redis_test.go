package registry

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestRedis connects to the server named by VECSYNC_TEST_REDIS_ADDR
// and isolates the run under a throwaway logical database. Skipped when
// the variable is unset so the suite stays hermetic by default.
func newTestRedis(t *testing.T) *RedisRegistry {
	t.Helper()

	addr := os.Getenv("VECSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set VECSYNC_TEST_REDIS_ADDR to run redis registry tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg, err := NewRedisRegistry(ctx, RedisConfig{Addr: addr, DB: 9})
	require.NoError(t, err)
	require.NoError(t, reg.Clear(ctx))
	t.Cleanup(func() {
		_ = reg.Clear(context.Background())
		_ = reg.Close()
	})
	return reg
}

func TestRedisRegistry_Contract(t *testing.T) {
	runRegistrySuite(t, func(t *testing.T) Registry {
		reg := newTestRedis(t)
		require.NoError(t, reg.Clear(context.Background()))
		return reg
	})
}

func TestRedisRegistry_PassHistoryNewestFirst(t *testing.T) {
	reg := newTestRedis(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, reg.AppendPass(ctx, PassRecord{
			PassID:     fmt.Sprintf("pass-%d", i),
			FinishedAt: time.Now().UTC(),
		}))
	}

	passes, err := reg.RecentPasses(ctx, 2)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	require.Equal(t, "pass-2", passes[0].PassID)
	require.Equal(t, "pass-1", passes[1].PassID)
}
