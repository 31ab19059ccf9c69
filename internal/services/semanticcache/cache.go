package semanticcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	DefaultTTL       = time.Hour
	DefaultThreshold = 0.92
)

// Cache maps a normalized query and target model to a previously computed response
type Cache interface {
	FindSimilar(ctx context.Context, query, model string) (*models.CacheEntry, error)
	Set(ctx context.Context, entry models.CacheEntry) error
	ClearModel(ctx context.Context, model string) (int, error)
	// Stats aggregates over every model when model is empty
	Stats(ctx context.Context, model string) (models.CacheStats, error)
}

// Backend is the key-value store behind a Store
type Backend interface {
	// Get returns nil without error on a miss
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry models.CacheEntry, ttl time.Duration) error
	// DeleteModel removes every entry stored for model and returns the removed keys
	DeleteModel(ctx context.Context, model string) ([]string, error)
	Count(ctx context.Context, model string) (int64, error)
	RecordLookup(ctx context.Context, model string, hit bool, tokensSaved int64, costSaved float64) error
	Counters(ctx context.Context, model string) (models.CacheStats, error)
}

// Key hashes the normalized query together with the model identity
func Key(query, model string) string {
	sum := sha256.Sum256([]byte(Normalize(query) + "|" + model))
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases and trims a query before hashing
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// indexText is the text embedded for similarity, scoped to the target model
func indexText(query, model string) string {
	return model + "|" + Normalize(query)
}

// similarityIndex resolves a query to the cache key of its nearest neighbour
type similarityIndex interface {
	Lookup(ctx context.Context, text string) (string, float32, bool)
	Add(ctx context.Context, key, text string) error
	Remove(ctx context.Context, key string)
	Close() error
}

// Store implements Cache on top of a Backend with exact-key lookups,
// upgraded to similarity matching when an EmbeddingIndex is attached.
type Store struct {
	backend Backend
	index   similarityIndex
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEmbeddingIndex enables similarity lookups after an exact miss
func WithEmbeddingIndex(index *EmbeddingIndex) Option {
	return func(s *Store) {
		if index != nil {
			s.index = index
		}
	}
}

// NewStore creates a cache store over backend
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindSimilar returns the live entry for query and model, or nil on a miss.
// Expired entries are misses even if the backend has not evicted them yet.
func (s *Store) FindSimilar(ctx context.Context, query, model string) (*models.CacheEntry, error) {
	entry, err := s.backend.Get(ctx, Key(query, model))
	if err != nil {
		s.recordLookup(ctx, model, nil)
		return nil, err
	}
	if s.live(entry) {
		entry.Tier = models.CacheTierExact
		s.recordLookup(ctx, model, entry)
		return entry, nil
	}

	if s.index != nil {
		if similar := s.findBySimilarity(ctx, query, model); similar != nil {
			similar.Tier = models.CacheTierSimilar
			s.recordLookup(ctx, model, similar)
			return similar, nil
		}
	}

	s.recordLookup(ctx, model, nil)
	return nil, nil
}

func (s *Store) findBySimilarity(ctx context.Context, query, model string) *models.CacheEntry {
	key, score, ok := s.index.Lookup(ctx, indexText(query, model))
	if !ok {
		return nil
	}
	entry, err := s.backend.Get(ctx, key)
	if err != nil {
		fiberlog.Warnf("SemanticCache: similar entry fetch failed: %v", err)
		return nil
	}
	if !s.live(entry) || entry.Model != model {
		return nil
	}
	fiberlog.Debugf("SemanticCache: similarity hit for model %s (score %.3f)", model, score)
	return entry
}

func (s *Store) live(entry *models.CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ExpiresAt.IsZero() || s.now().Before(entry.ExpiresAt)
}

func (s *Store) recordLookup(ctx context.Context, model string, hit *models.CacheEntry) {
	var tokens int64
	var cost float64
	if hit != nil {
		tokens = int64(hit.TokensIn + hit.TokensOut)
		cost = hit.CostUSD
	}
	if err := s.backend.RecordLookup(ctx, model, hit != nil, tokens, cost); err != nil {
		fiberlog.Warnf("SemanticCache: failed to record lookup stats: %v", err)
	}
}

// Set stores entry under the key derived from its query and model
func (s *Store) Set(ctx context.Context, entry models.CacheEntry) error {
	now := s.now()
	entry.Key = Key(entry.Query, entry.Model)
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(s.ttl)
	entry.Tier = ""

	if err := s.backend.Put(ctx, entry, s.ttl); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Add(ctx, entry.Key, indexText(entry.Query, entry.Model)); err != nil {
			fiberlog.Warnf("SemanticCache: failed to index entry for similarity: %v", err)
		}
	}
	return nil
}

// ClearModel drops every entry cached for model
func (s *Store) ClearModel(ctx context.Context, model string) (int, error) {
	keys, err := s.backend.DeleteModel(ctx, model)
	if err != nil {
		return 0, err
	}
	if s.index != nil {
		for _, key := range keys {
			s.index.Remove(ctx, key)
		}
	}
	fiberlog.Infof("SemanticCache: cleared %d entries for model %s", len(keys), model)
	return len(keys), nil
}

func (s *Store) Stats(ctx context.Context, model string) (models.CacheStats, error) {
	stats, err := s.backend.Counters(ctx, model)
	if err != nil {
		return models.CacheStats{}, err
	}
	entries, err := s.backend.Count(ctx, model)
	if err != nil {
		return models.CacheStats{}, err
	}
	stats.Model = model
	stats.Entries = entries
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRatePercent = float64(stats.Hits) / float64(total) * 100
	}
	return stats, nil
}

// Close releases the similarity index, if any
func (s *Store) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}
