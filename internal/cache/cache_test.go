package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemory()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), 0)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory()
	c.Set("k", []byte("v"), time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	c := NewMemory()
	val := []byte("v")
	c.Set("k", val, 0)
	val[0] = 'x'
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestNewSelectsTier(t *testing.T) {
	assert.IsType(t, &memory{}, New(""))
	assert.IsType(t, &redisCache{}, New("localhost:6379"))
}
