package semanticcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "gateway:cache:entry:"
	redisModelPrefix = "gateway:cache:model:"
	redisStatsPrefix = "gateway:cache:stats:"
	redisModelsKey   = "gateway:cache:models"
	allModelsStats   = "_all"
)

// RedisBackend stores entries as JSON strings with a native TTL. A set per
// model tracks its keys so a model can be cleared without scanning.
type RedisBackend struct {
	redisClient *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{redisClient: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	raw, err := b.redisClient.Get(ctx, redisEntryPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &entry, nil
}

func (b *RedisBackend) Put(ctx context.Context, entry models.CacheEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	pipe := b.redisClient.TxPipeline()
	pipe.Set(ctx, redisEntryPrefix+entry.Key, raw, ttl)
	pipe.SAdd(ctx, redisModelPrefix+entry.Model, entry.Key)
	pipe.SAdd(ctx, redisModelsKey, entry.Model)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeleteModel(ctx context.Context, model string) ([]string, error) {
	keys, err := b.redisClient.SMembers(ctx, redisModelPrefix+model).Result()
	if err != nil {
		return nil, fmt.Errorf("cache members: %w", err)
	}

	pipe := b.redisClient.TxPipeline()
	dels := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		dels[i] = pipe.Del(ctx, redisEntryPrefix+key)
	}
	pipe.Del(ctx, redisModelPrefix+model)
	pipe.SRem(ctx, redisModelsKey, model)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache clear: %w", err)
	}

	// Members whose entry already expired are dropped from the set but not counted.
	removed := make([]string, 0, len(keys))
	for i, cmd := range dels {
		if cmd.Val() > 0 {
			removed = append(removed, keys[i])
		}
	}
	return removed, nil
}

func (b *RedisBackend) Count(ctx context.Context, model string) (int64, error) {
	modelNames := []string{model}
	if model == "" {
		names, err := b.redisClient.SMembers(ctx, redisModelsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("cache models: %w", err)
		}
		modelNames = names
	}

	var total int64
	for _, name := range modelNames {
		keys, err := b.redisClient.SMembers(ctx, redisModelPrefix+name).Result()
		if err != nil {
			return 0, fmt.Errorf("cache members: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = redisEntryPrefix + k
		}
		n, err := b.redisClient.Exists(ctx, full...).Result()
		if err != nil {
			return 0, fmt.Errorf("cache exists: %w", err)
		}
		total += n
	}
	return total, nil
}

func (b *RedisBackend) RecordLookup(ctx context.Context, model string, hit bool, tokensSaved int64, costSaved float64) error {
	pipe := b.redisClient.Pipeline()
	for _, name := range []string{allModelsStats, model} {
		if name == "" {
			continue
		}
		key := redisStatsPrefix + name
		if hit {
			pipe.HIncrBy(ctx, key, "hits", 1)
			pipe.HIncrBy(ctx, key, "tokens_saved", tokensSaved)
			pipe.HIncrByFloat(ctx, key, "cost_saved", costSaved)
		} else {
			pipe.HIncrBy(ctx, key, "misses", 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Counters(ctx context.Context, model string) (models.CacheStats, error) {
	name := model
	if name == "" {
		name = allModelsStats
	}
	fields, err := b.redisClient.HGetAll(ctx, redisStatsPrefix+name).Result()
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Hits:         parseInt(fields["hits"]),
		Misses:       parseInt(fields["misses"]),
		TokensSaved:  parseInt(fields["tokens_saved"]),
		CostSavedUSD: parseFloat(fields["cost_saved"]),
	}, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
