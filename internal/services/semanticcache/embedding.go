package semanticcache

import (
	"context"
	"fmt"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	embedcache "github.com/botirk38/semanticcache"
	"github.com/botirk38/semanticcache/options"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// EmbeddingIndex maps normalized query text to exact cache keys by embedding
// similarity. It stores only keys; entries stay in the Store's backend.
type EmbeddingIndex struct {
	cache     *embedcache.SemanticCache[string, string]
	threshold float32
}

// NewEmbeddingIndex builds an index from cache config. It returns nil without
// error when no embedding API key is configured.
func NewEmbeddingIndex(cfg models.CacheConfig) (*EmbeddingIndex, error) {
	if cfg.OpenAIAPIKey == "" {
		fiberlog.Info("SemanticCache: no embedding key configured, using exact-match lookups")
		return nil, nil
	}

	threshold := cfg.SemanticThreshold
	if threshold <= 0 || threshold > 1 {
		fiberlog.Warnf("SemanticCache: invalid threshold %.2f, using default %.2f", threshold, DefaultThreshold)
		threshold = DefaultThreshold
	}
	embedModel := cfg.EmbeddingModel
	if embedModel == "" {
		embedModel = defaultEmbeddingModel
	}

	var (
		cache *embedcache.SemanticCache[string, string]
		err   error
	)
	switch cfg.Backend {
	case models.CacheBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL not set for redis cache backend")
		}
		fiberlog.Debugf("SemanticCache: embedding index on redis, threshold=%.2f", threshold)
		cache, err = embedcache.New(
			options.WithOpenAIProvider[string, string](cfg.OpenAIAPIKey, embedModel),
			options.WithRedisBackend[string, string](cfg.RedisURL, 0),
		)
	default:
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		fiberlog.Debugf("SemanticCache: embedding index in memory (capacity=%d), threshold=%.2f", capacity, threshold)
		cache, err = embedcache.New(
			options.WithOpenAIProvider[string, string](cfg.OpenAIAPIKey, embedModel),
			options.WithLRUBackend[string, string](capacity),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding index: %w", err)
	}

	return &EmbeddingIndex{cache: cache, threshold: float32(threshold)}, nil
}

// Lookup returns the cache key of the closest indexed query above the threshold
func (i *EmbeddingIndex) Lookup(ctx context.Context, text string) (string, float32, bool) {
	match, err := i.cache.Lookup(ctx, text, i.threshold)
	if err != nil {
		fiberlog.Warnf("SemanticCache: similarity lookup failed: %v", err)
		return "", 0, false
	}
	if match == nil {
		return "", 0, false
	}
	return match.Value, match.Score, true
}

// Add indexes text under key
func (i *EmbeddingIndex) Add(ctx context.Context, key, text string) error {
	return i.cache.Set(ctx, key, text, key)
}

// Remove drops key from the index without waiting
func (i *EmbeddingIndex) Remove(ctx context.Context, key string) {
	i.cache.DeleteAsync(ctx, key)
}

func (i *EmbeddingIndex) Close() error {
	return i.cache.Close()
}
