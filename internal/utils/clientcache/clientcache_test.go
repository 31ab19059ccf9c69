package clientcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ id int32 }

func TestGetOrCreateBuildsOncePerKey(t *testing.T) {
	cache := NewCache[*fakeClient]()
	var builds int32

	var wg sync.WaitGroup
	results := make([]*fakeClient, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := cache.GetOrCreate("k", func() (*fakeClient, error) {
				return &fakeClient{id: atomic.AddInt32(&builds, 1)}, nil
			})
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	cache := NewCache[*fakeClient]()
	_, err := cache.GetOrCreate("k", func() (*fakeClient, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	assert.Zero(t, cache.Len())

	c, err := cache.GetOrCreate("k", func() (*fakeClient, error) { return &fakeClient{id: 7}, nil })
	require.NoError(t, err)
	assert.Equal(t, int32(7), c.id)

	cache.Delete("k")
	assert.Zero(t, cache.Len())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("https://api.example.com", "sk-1", nil)
	assert.Equal(t, a, Fingerprint("https://api.example.com", "sk-1", nil))
	assert.NotEqual(t, a, Fingerprint("https://api.example.com", "sk-2", nil))
	assert.NotEqual(t, a, Fingerprint("https://api.example.com", "sk-1", map[string]string{"X": "1"}))
	assert.NotContains(t, a, "sk-1")
}
