package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGetAndExpiry(t *testing.T) {
	c := New(Config{DefaultTTL: 50 * time.Millisecond, CleanupInterval: time.Hour})

	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := New(Config{DefaultTTL: time.Minute, CleanupInterval: time.Hour})

	c.Set("token:a", "x", 0)
	c.Set("token:b", "y", 0)
	c.Set("other:c", "z", 0)

	c.InvalidatePrefix("token:")

	_, ok := c.Get("token:a")
	assert.False(t, ok)
	_, ok = c.Get("other:c")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestTokenCacheRoundTrip(t *testing.T) {
	tc := NewTokenCache(Config{DefaultTTL: time.Minute, CleanupInterval: time.Hour})

	tc.SetToken("abc", "claims", 0)
	v, ok := tc.GetToken("abc")
	assert.True(t, ok)
	assert.Equal(t, "claims", v)

	tc.InvalidateToken("abc")
	_, ok = tc.GetToken("abc")
	assert.False(t, ok)

	tc.SetToken("d", 1, 0)
	tc.SetToken("e", 2, 0)
	tc.InvalidateAllTokens()
	_, ok = tc.GetToken("d")
	assert.False(t, ok)
}
