// Package cache provides a small in-process TTL cache, used by the auth
// layer to avoid re-verifying the same bearer token on every request.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	expiration time.Time
}

// Config tunes a Cache.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the cache defaults: five-minute entries swept every
// ten minutes.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// Cache is a mutex-guarded map of expiring entries. Expired entries are
// invisible to Get immediately and physically removed by a background sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
}

// New returns a running cache; zero config fields take their defaults.
func New(cfg Config) *Cache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	c := &Cache{
		entries: make(map[string]*entry),
		config:  cfg,
	}

	go c.sweep()
	return c
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, e := range c.entries {
			if now.After(e.expiration) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

// Get returns the live value for key, if any.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl (0 selects the default TTL).
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// InvalidatePrefix drops every key sharing prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries, including any not yet swept.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// TokenCache namespaces a Cache for verified-token lookups keyed by token
// hash.
type TokenCache struct {
	cache     *Cache
	keyPrefix string
}

// NewTokenCache returns a token cache over a fresh Cache.
func NewTokenCache(cfg Config) *TokenCache {
	return &TokenCache{
		cache:     New(cfg),
		keyPrefix: "token:",
	}
}

// GetToken returns the cached verification result for tokenHash.
func (c *TokenCache) GetToken(tokenHash string) (interface{}, bool) {
	return c.cache.Get(c.keyPrefix + tokenHash)
}

// SetToken caches a verification result for tokenHash.
func (c *TokenCache) SetToken(tokenHash string, value interface{}, ttl time.Duration) {
	c.cache.Set(c.keyPrefix+tokenHash, value, ttl)
}

// InvalidateToken drops one cached token.
func (c *TokenCache) InvalidateToken(tokenHash string) {
	c.cache.Invalidate(c.keyPrefix + tokenHash)
}

// InvalidateAllTokens drops every cached token, e.g. on signing-key rotation.
func (c *TokenCache) InvalidateAllTokens() {
	c.cache.InvalidatePrefix(c.keyPrefix)
}
