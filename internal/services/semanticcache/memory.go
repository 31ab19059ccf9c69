package semanticcache

import (
	"context"
	"sync"
	"time"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCapacity = 1000

// MemoryBackend keeps entries in a process-local LRU with TTL eviction
type MemoryBackend struct {
	entries *expirable.LRU[string, models.CacheEntry]

	mu       sync.Mutex
	counters map[string]*models.CacheStats
}

// NewMemoryBackend creates an LRU backend holding at most capacity entries
func NewMemoryBackend(capacity int, ttl time.Duration) *MemoryBackend {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBackend{
		entries:  expirable.NewLRU[string, models.CacheEntry](capacity, nil, ttl),
		counters: make(map[string]*models.CacheStats),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	entry, ok := b.entries.Get(key)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (b *MemoryBackend) Put(_ context.Context, entry models.CacheEntry, _ time.Duration) error {
	b.entries.Add(entry.Key, entry)
	return nil
}

func (b *MemoryBackend) DeleteModel(_ context.Context, model string) ([]string, error) {
	var removed []string
	for _, key := range b.entries.Keys() {
		entry, ok := b.entries.Peek(key)
		if !ok || entry.Model != model {
			continue
		}
		if b.entries.Remove(key) {
			removed = append(removed, key)
		}
	}
	return removed, nil
}

func (b *MemoryBackend) Count(_ context.Context, model string) (int64, error) {
	if model == "" {
		return int64(b.entries.Len()), nil
	}
	var n int64
	for _, key := range b.entries.Keys() {
		if entry, ok := b.entries.Peek(key); ok && entry.Model == model {
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) RecordLookup(_ context.Context, model string, hit bool, tokensSaved int64, costSaved float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range []string{"", model} {
		c, ok := b.counters[name]
		if !ok {
			c = &models.CacheStats{}
			b.counters[name] = c
		}
		if hit {
			c.Hits++
			c.TokensSaved += tokensSaved
			c.CostSavedUSD += costSaved
		} else {
			c.Misses++
		}
		if model == "" {
			break
		}
	}
	return nil
}

func (b *MemoryBackend) Counters(_ context.Context, model string) (models.CacheStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.counters[model]; ok {
		return *c, nil
	}
	return models.CacheStats{}, nil
}
