package clientcache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds SDK clients keyed by a configuration fingerprint.
// Concurrent misses on the same key build the client once.
type Cache[T any] struct {
	entries sync.Map
	group   singleflight.Group
}

// NewCache creates an empty client cache
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the client stored under key, building it with factory on a miss
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.entries.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.entries.Load(key); ok {
			return cached.(T), nil
		}
		client, err := factory()
		if err != nil {
			return nil, err
		}
		c.entries.Store(key, client)
		return client, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete drops the client stored under key
func (c *Cache[T]) Delete(key string) {
	c.entries.Delete(key)
}

// Len reports how many clients are cached
func (c *Cache[T]) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Fingerprint hashes a connection config into a cache key.
// Secrets are hashed before they are mixed in so they never appear in keys or logs.
func Fingerprint(baseURL, apiKey string, headers map[string]string) string {
	keyHash := sha256.Sum256([]byte(apiKey))
	payload, err := json.Marshal(struct {
		BaseURL    string            `json:"base_url"`
		Headers    map[string]string `json:"headers"`
		APIKeyHash string            `json:"api_key_hash"`
	}{baseURL, headers, fmt.Sprintf("%x", keyHash[:8])})
	if err != nil {
		// Only reachable with unmarshalable input; the key hash alone still separates clients.
		return fmt.Sprintf("%x", keyHash[:16])
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum[:16])
}
