package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}
	require.NoError(t, mc.Delete("test_key"))

	// Add stores absent keys only
	added, err := mc.Add("test_key", []byte("test_value"), time.Second)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = mc.Add("test_key", []byte("other"), time.Second)
	assert.NoError(t, err)
	assert.False(t, added)

	// Delete the value
	err = mc.Delete("test_key")
	assert.NoError(t, err)

	// Deleting a missing key is not an error
	assert.NoError(t, mc.Delete("test_key"))

	added, err = mc.Add("test_key", []byte("other"), time.Second)
	require.NoError(t, err)
	assert.True(t, added)
	assert.NoError(t, mc.Delete("test_key"))
}

func TestMemoryCache(t *testing.T) {
	mc := NewMemoryCache()
	clock := time.Date(2026, 3, 2, 9, 40, 0, 0, time.UTC)
	mc.now = func() time.Time { return clock }

	added, err := mc.Add("k", []byte("v1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = mc.Add("k", []byte("v2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	// expired keys can be added again
	clock = clock.Add(2 * time.Minute)
	added, err = mc.Add("k", []byte("v3"), 0)
	require.NoError(t, err)
	assert.True(t, added)

	// no expiration keeps the key
	clock = clock.Add(24 * time.Hour)
	added, err = mc.Add("k", []byte("v4"), 0)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, mc.Delete("k"))
	added, err = mc.Add("k", []byte("v5"), time.Minute)
	require.NoError(t, err)
	assert.True(t, added)
}
