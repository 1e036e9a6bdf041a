// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig configures the embedding vector index.
type VectorStoreConfig struct {
	// Dimensions is the embedding width produced by the AI call. Every
	// inserted and queried vector must match this exactly.
	Dimensions int

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW search-time candidate list size.
	EfSearch int
}

// ErrDimensionMismatch is returned by Upsert/Search when a vector's length
// does not match the store's configured Dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrZeroVector is returned when a caller attempts to upsert or search with
// an all-zero vector, which cosine similarity cannot meaningfully compare.
var ErrZeroVector = fmt.Errorf("zero-magnitude vector rejected")

// VectorMatch is a single hit returned from Search.
type VectorMatch struct {
	ID    string
	Score float32
}

// VectorStore is a cosine-similarity nearest-neighbor index over
// composite, tenant-scoped vector IDs. IDs are opaque strings of the form
// "<shortUserId>_<shortProjectId>_<shortChunkHash>"; the store itself does
// not parse them. Search optionally narrows results to IDs carrying a
// given tenant prefix, but the short user/project segments are only 32
// bits wide and can collide across tenants, so this filter is a
// distribution hint, never a trust boundary: callers must still verify
// each match's real tenant identity against the authoritative record
// (see Reconciler.Search / Store.ChunkByVectorID) before returning it.
type VectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewVectorStore builds a VectorStore backed by a pure-Go HNSW graph.
func NewVectorStore(cfg VectorStoreConfig) *VectorStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorStore{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}
}

// Upsert inserts or replaces a single vector under id. Replacement is lazy:
// the old graph node is orphaned rather than deleted, since coder/hnsw does
// not support safe deletion of the last remaining node.
func (s *VectorStore) Upsert(id string, vector []float32) error {
	if len(vector) != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(vector)}
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if !normalizeInPlace(vec) {
		return ErrZeroVector
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingKey, exists := s.idMap[id]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	return nil
}

// Search returns up to k nearest neighbors to query whose IDs carry
// tenantPrefix (e.g. "shortUserId_shortProjectId_"). It over-fetches from
// the shared graph and truncates after prefix filtering, since the
// underlying HNSW graph has no native notion of tenancy. The prefix
// match is a distribution hint only: the caller is responsible for a
// final, authoritative tenant check against each returned ID.
func (s *VectorStore) Search(query []float32, tenantPrefix string, k int) ([]VectorMatch, error) {
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	if !normalizeInPlace(q) {
		return nil, ErrZeroVector
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return nil, nil
	}

	overfetch := k * 4
	if overfetch < k+8 {
		overfetch = k + 8
	}
	nodes := s.graph.Search(q, overfetch)

	matches := make([]VectorMatch, 0, k)
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		if tenantPrefix != "" && !hasPrefix(id, tenantPrefix) {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		matches = append(matches, VectorMatch{ID: id, Score: 1.0 - distance/2.0})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// Delete removes ids from the lookup tables (lazy deletion).
func (s *VectorStore) Delete(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idMap[id]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
}

// Contains reports whether id currently has a live vector.
func (s *VectorStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of live (non-orphaned) vectors.
func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

func normalizeInPlace(v []float32) bool {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return false
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
