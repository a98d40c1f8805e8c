package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// Redis key layout
const (
	// redisDocPrefix + id is a hash holding fingerprint and timestamp.
	redisDocPrefix = "reg:"
	// redisChunkPrefix + id is a set of the document's chunk ids.
	redisChunkPrefix = "regchunks:"
	// redisDocSet tracks every registered document id.
	redisDocSet = "reg:docs"
	// redisPassList holds JSON pass summaries, newest first.
	redisPassList = "reg:passes"
)

// Hash field names
const (
	fieldFingerprint = "fingerprint"
	fieldIndexedAt   = "last_indexed_at"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Addr is host:port (default: localhost:6379).
	Addr string

	// DB selects the logical database.
	DB int

	// PoolSize caps connections (default: go-redis default).
	PoolSize int
}

// RedisRegistry stores records in Redis: a hash per document plus a
// chunk-id set, and a master set of document ids for enumeration.
// Multi-key mutations go through transactional pipelines, and a striped
// in-process lock serializes read-modify-write per document id.
type RedisRegistry struct {
	client  *redis.Client
	stripes stripedMutex
}

// NewRedisRegistry connects and pings. The password comes only from the
// REDIS_PASSWORD environment variable.
func NewRedisRegistry(ctx context.Context, cfg RedisConfig) (*RedisRegistry, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, syncerrors.RegistryError(
			fmt.Sprintf("failed to connect to redis at %s", cfg.Addr), err).
			WithSuggestion("check registry.redis.addr and REDIS_PASSWORD")
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Get(ctx context.Context, documentID string) (RegistryRecord, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisDocPrefix+documentID).Result()
	if err != nil {
		return RegistryRecord{}, false, syncerrors.RegistryError("failed to read record", err)
	}
	if len(fields) == 0 {
		return RegistryRecord{}, false, nil
	}

	rec := RegistryRecord{
		DocumentID:  documentID,
		Fingerprint: fields[fieldFingerprint],
	}
	if raw := fields[fieldIndexedAt]; raw != "" {
		if rec.LastIndexedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return RegistryRecord{}, false, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				fmt.Sprintf("record %s has malformed timestamp %q", documentID, raw), err)
		}
	}

	ids, err := r.client.SMembers(ctx, redisChunkPrefix+documentID).Result()
	if err != nil {
		return RegistryRecord{}, false, syncerrors.RegistryError("failed to read chunk ids", err)
	}
	sort.Strings(ids)
	rec.ChunkIDs = ids
	return rec, true, nil
}

func (r *RedisRegistry) Diff(ctx context.Context, current map[string]string) (DiffResult, error) {
	ids, err := r.client.SMembers(ctx, redisDocSet).Result()
	if err != nil {
		return DiffResult{}, syncerrors.RegistryError("failed to enumerate records", err)
	}

	// One pipelined round trip for all fingerprints.
	pipe := r.client.Pipeline()
	gets := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		gets[i] = pipe.HGet(ctx, redisDocPrefix+id, fieldFingerprint)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return DiffResult{}, syncerrors.RegistryError("failed to read fingerprints", err)
	}

	records := make([]RegistryRecord, 0, len(ids))
	for i, id := range ids {
		fp, err := gets[i].Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return DiffResult{}, syncerrors.RegistryError("failed to read fingerprint", err)
		}
		records = append(records, RegistryRecord{DocumentID: id, Fingerprint: fp})
	}
	return computeDiff(records, current), nil
}

func (r *RedisRegistry) Commit(ctx context.Context, documentID, fingerprint string, chunkIDs []string) error {
	stripe := r.stripes.lock(documentID)
	defer stripe.Unlock()

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, redisDocPrefix+documentID,
		fieldFingerprint, fingerprint,
		fieldIndexedAt, time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Del(ctx, redisChunkPrefix+documentID)
	if len(chunkIDs) > 0 {
		members := make([]any, len(chunkIDs))
		for i, id := range chunkIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, redisChunkPrefix+documentID, members...)
	}
	pipe.SAdd(ctx, redisDocSet, documentID)

	if _, err := pipe.Exec(ctx); err != nil {
		return syncerrors.RegistryError("failed to commit record", err)
	}
	return nil
}

func (r *RedisRegistry) Delete(ctx context.Context, documentID string) error {
	stripe := r.stripes.lock(documentID)
	defer stripe.Unlock()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisDocPrefix+documentID)
	pipe.Del(ctx, redisChunkPrefix+documentID)
	pipe.SRem(ctx, redisDocSet, documentID)

	if _, err := pipe.Exec(ctx); err != nil {
		return syncerrors.RegistryError("failed to delete record", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]RegistryRecord, error) {
	ids, err := r.client.SMembers(ctx, redisDocSet).Result()
	if err != nil {
		return nil, syncerrors.RegistryError("failed to enumerate records", err)
	}
	sort.Strings(ids)

	records := make([]RegistryRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, redisDocSet).Result()
	if err != nil {
		return 0, syncerrors.RegistryError("failed to count records", err)
	}
	return int(n), nil
}

func (r *RedisRegistry) Clear(ctx context.Context) error {
	ids, err := r.client.SMembers(ctx, redisDocSet).Result()
	if err != nil {
		return syncerrors.RegistryError("failed to enumerate records", err)
	}

	pipe := r.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, redisDocPrefix+id)
		pipe.Del(ctx, redisChunkPrefix+id)
	}
	pipe.Del(ctx, redisDocSet)

	if _, err := pipe.Exec(ctx); err != nil {
		return syncerrors.RegistryError("failed to clear registry", err)
	}
	return nil
}

func (r *RedisRegistry) AppendPass(ctx context.Context, pass PassRecord) error {
	raw, err := json.Marshal(pass)
	if err != nil {
		return syncerrors.InternalError("failed to encode pass", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, redisPassList, raw)
	pipe.LTrim(ctx, redisPassList, 0, maxStoredPasses-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return syncerrors.RegistryError("failed to record pass", err)
	}
	return nil
}

func (r *RedisRegistry) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.client.LRange(ctx, redisPassList, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, syncerrors.RegistryError("failed to read pass history", err)
	}

	passes := make([]PassRecord, 0, len(rows))
	for _, raw := range rows {
		var pass PassRecord
		if err := json.Unmarshal([]byte(raw), &pass); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				"pass history entry is malformed", err)
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

var (
	_ Registry    = (*RedisRegistry)(nil)
	_ PassHistory = (*RedisRegistry)(nil)
)
