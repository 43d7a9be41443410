// Package signedurl resolves storage keys to short-lived download URLs
// and caches them for their validity window
package signedurl

import (
	"context"
	"sync"
	"time"

	"bitrel/media-api/internal/storage"

	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultSafetyMargin = 30 * time.Second

type Cache struct {
	gw      storage.Gateway
	entries *ttlcache.Cache
	group   singleflight.Group
	margin  time.Duration

	// mu guards gens, the per-key generation counters that keep a
	// resolve started before a refresh from storing its stale URL
	mu   sync.Mutex
	gens map[string]uint64
}

// New builds a cache over the gateway. An entry is never served within
// margin of its real expiry so in-flight playback doesn't hit a dead
// link the moment it starts
func New(gw storage.Gateway, margin time.Duration) *Cache {
	if margin <= 0 {
		margin = defaultSafetyMargin
	}

	entries := ttlcache.NewCache()
	entries.SkipTTLExtensionOnHit(true)

	return &Cache{
		gw:      gw,
		entries: entries,
		margin:  margin,
		gens:    make(map[string]uint64),
	}
}

// Resolve returns a usable URL for a key, reissuing the credential only
// when the cached one is missing or inside the safety margin.
// Concurrent calls for the same key coalesce into one gateway request
func (c *Cache) Resolve(ctx context.Context, key string) (string, error) {
	if v, err := c.entries.Get(key); err == nil {
		return v.(string), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A racer may have stored the entry while we queued
		if v, err := c.entries.Get(key); err == nil {
			return v, nil
		}

		return c.issue(ctx, key)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// ForceRefresh unconditionally requests a new credential and replaces
// the cached entry. A burst of refreshes for the same key still issues
// only one request
func (c *Cache) ForceRefresh(ctx context.Context, key string) (string, error) {
	// Bumping the generation invalidates any resolve already in flight
	// for this key so it cannot write its stale URL back afterwards
	c.mu.Lock()
	c.gens[key]++
	c.entries.Remove(key)
	c.mu.Unlock()

	v, err, _ := c.group.Do("refresh\x00"+key, func() (interface{}, error) {
		return c.issue(ctx, key)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// ResolveBatch resolves every key in one pass. Keys that fail resolve
// are skipped, the caller gets whatever could be served
func (c *Cache) ResolveBatch(ctx context.Context, keys []string) map[string]string {
	out := make(map[string]string, len(keys))

	for _, k := range keys {
		url, err := c.Resolve(ctx, k)
		if err != nil {
			zap.L().Warn("Failed to resolve storage key", zap.String("key", k), zap.Error(err))
			continue
		}
		out[k] = url
	}

	return out
}

// Purge drops every cached entry
func (c *Cache) Purge() {
	c.entries.Purge()
}

func (c *Cache) Close() {
	c.entries.Close()
}

func (c *Cache) issue(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()

	cred, err := c.gw.IssueDownloadCredential(ctx, key)
	if err != nil {
		return "", err
	}

	ttl := time.Until(cred.ExpiresAt) - c.margin

	c.mu.Lock()
	if ttl > 0 && c.gens[key] == gen {
		c.entries.SetWithTTL(key, cred.URL, ttl)
	}
	c.mu.Unlock()

	return cred.URL, nil
}
