// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// defaultCacheTTL is the renewal window for embedding cache entries; every
// cache hit refreshes the entry for another full TTL.
const defaultCacheTTL = 10 * 24 * time.Hour

// EmbeddingEntry is the value stored in the embedding cache, keyed by
// chunk hash. It is tenant-agnostic: two tenants submitting chunks with
// identical content share the same entry.
type EmbeddingEntry struct {
	Summary   string
	Embedding []float32
}

// EmbeddingCache is a content-addressed, cross-tenant cache from chunk
// hash to {summary, embedding}, with a TTL renewed on every access.
type EmbeddingCache struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewEmbeddingCache builds an EmbeddingCache with the given TTL. A TTL of
// zero uses the default renewal window.
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &EmbeddingCache{
		c:   cache.New(ttl, ttl/2),
		ttl: ttl,
	}
}

// Get looks up hash, refreshing its TTL on a hit.
func (e *EmbeddingCache) Get(hash string) (EmbeddingEntry, bool) {
	v, ok := e.c.Get(hash)
	if !ok {
		return EmbeddingEntry{}, false
	}
	entry := v.(EmbeddingEntry)
	e.c.Set(hash, entry, e.ttl)
	return entry, true
}

// Set stores hash -> entry with a fresh TTL. Concurrent writers of the
// same key are safe: the value is a pure function of the hash, so any two
// writers write identical payloads.
func (e *EmbeddingCache) Set(hash string, entry EmbeddingEntry) {
	e.c.Set(hash, entry, e.ttl)
}

// GetMany looks up multiple hashes at once, returning a hit map and the
// list of hashes that missed.
func (e *EmbeddingCache) GetMany(hashes []string) (hits map[string]EmbeddingEntry, misses []string) {
	hits = make(map[string]EmbeddingEntry, len(hashes))
	for _, h := range hashes {
		if entry, ok := e.Get(h); ok {
			hits[h] = entry
		} else {
			misses = append(misses, h)
		}
	}
	return hits, misses
}

// ItemCount returns the number of live entries, used for metrics.
func (e *EmbeddingCache) ItemCount() int {
	return e.c.ItemCount()
}
