// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/idxsync/pkg/wire"
)

// fakeAI returns a deterministic, non-zero embedding derived from each
// code string's length, so repeated calls with identical input are stable.
type fakeAI struct {
	dims int
}

func (f *fakeAI) Process(ctx context.Context, codes []string) ([]AIResult, error) {
	out := make([]AIResult, len(codes))
	for i, code := range codes {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(code)) + 1
		out[i] = AIResult{Summary: "summary", Embedding: vec}
	}
	return out, nil
}

func newTestReconciler(t *testing.T) *Reconciler {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reconciler.db")
	store, err := OpenStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := DefaultConfig()
	cfg.EmbeddingWidth = 4
	vectors := NewVectorStore(VectorStoreConfig{Dimensions: cfg.EmbeddingWidth})
	cache := NewEmbeddingCache(cfg.CacheTTL)
	ai := &fakeAI{dims: cfg.EmbeddingWidth}

	return New(cfg, cache, vectors, store, ai, nil)
}

func chunkMeta(hash string) wire.ChunkMetadata {
	return wire.ChunkMetadata{Hash: hash, Kind: "function", LanguageID: "typescript", FilePath: "a.ts", Lines: [2]int{1, 1}}
}

// TestInitThenReInitIsIdempotent grounds property 6 (idempotence) and S1:
// a second init with identical content yields only cache hits, no new
// vectors.
func TestInitThenReInitIsIdempotent(t *testing.T) {
	r := newTestReconciler(t)
	req := wire.InitRequest{
		ProjectID:  "proj1",
		MerkleRoot: "root1",
		Chunks: []wire.ChunkWithCode{
			{ChunkMetadata: chunkMeta("hashA"), Code: "export function f(){return 1}"},
		},
	}

	first, err := r.Init(context.Background(), "user1", req)
	require.NoError(t, err)
	assert.Equal(t, "indexed", first.Status)
	assert.Equal(t, 1, first.AIProcessed)
	assert.Equal(t, 1, first.ChunksReceived)

	second, err := r.Init(context.Background(), "user1", req)
	require.NoError(t, err)
	assert.Equal(t, 1, second.ChunksReceived)
	assert.Equal(t, 0, second.AIProcessed, "re-init with unchanged content must not re-embed")
	assert.Equal(t, second.VectorsStored, second.CacheHits, "cacheHits should equal vectorsStored on the second run")
}

// TestTwoFilesSameBodyShareChunkHash grounds S2: identical function bodies
// in two files produce the same chunk hash, so the second file's phase-1
// is a pure cache hit.
func TestTwoFilesSameBodyShareChunkHash(t *testing.T) {
	r := newTestReconciler(t)
	code := "export function f(){return 1}"

	_, err := r.Init(context.Background(), "user1", wire.InitRequest{
		ProjectID:  "proj1",
		MerkleRoot: "rootA",
		Chunks:     []wire.ChunkWithCode{{ChunkMetadata: chunkMeta("sharedHash"), Code: code}},
	})
	require.NoError(t, err)

	second := chunkMeta("sharedHash")
	second.FilePath = "b.ts"
	phase1, err := r.Phase1("user1", wire.SyncPhase1Request{
		ProjectID:  "proj1",
		MerkleRoot: "rootB",
		Chunks:     []wire.ChunkMetadata{second},
	})
	require.NoError(t, err)
	assert.Empty(t, phase1.Needed)
	assert.Equal(t, 1, phase1.CacheHits)
	assert.Equal(t, 1, phase1.Vectorized)
}

// TestPhase2OnlyEmbedsTrulyNewChunks grounds S3: three chunks, one hash
// differs; phase-1 needed has one element, phase-2 embeds exactly one.
func TestPhase2OnlyEmbedsTrulyNewChunks(t *testing.T) {
	r := newTestReconciler(t)
	_, err := r.Init(context.Background(), "user1", wire.InitRequest{
		ProjectID:  "proj1",
		MerkleRoot: "root0",
		Chunks: []wire.ChunkWithCode{
			{ChunkMetadata: chunkMeta("h1"), Code: "fn one"},
			{ChunkMetadata: chunkMeta("h2"), Code: "fn two"},
			{ChunkMetadata: chunkMeta("h3"), Code: "fn three"},
		},
	})
	require.NoError(t, err)

	phase1, err := r.Phase1("user1", wire.SyncPhase1Request{
		ProjectID:  "proj1",
		MerkleRoot: "root1",
		Chunks: []wire.ChunkMetadata{
			chunkMeta("h1"),
			chunkMeta("h2"),
			chunkMeta("h4-changed"),
		},
	})
	require.NoError(t, err)
	require.Len(t, phase1.Needed, 1)
	assert.Equal(t, "h4-changed", phase1.Needed[0])
	assert.Equal(t, 2, phase1.CacheHits)

	phase2, err := r.Phase2(context.Background(), "user1", wire.SyncPhase2Request{
		ProjectID:  "proj1",
		MerkleRoot: "root1",
		Chunks:     []wire.ChunkWithCode{{ChunkMetadata: chunkMeta("h4-changed"), Code: "fn four changed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, phase2.AIProcessed)
	assert.Equal(t, 1, phase2.VectorsStored)
}

// TestCrossTenantSearchIsolation grounds property 8 (cross-tenant
// isolation). userA and userB are crafted to share their first 8
// characters ("tenant-X"), so TenantPrefix collides for both tenants
// under the same projectID even though their full identities differ -
// exactly the 32-bit collision §4.10 warns the ID prefix cannot be
// trusted to rule out. Both tenants index distinct content under that
// colliding prefix; searching as userA must never surface userB's chunk,
// which a prefix-only filter (matching by construction) could not catch.
func TestCrossTenantSearchIsolation(t *testing.T) {
	r := newTestReconciler(t)
	const userA = "tenant-X-userA"
	const userB = "tenant-X-userB"
	require.Equal(t, TenantPrefix(userA, "proj1"), TenantPrefix(userB, "proj1"),
		"test setup must force a short-prefix collision between tenants")

	_, err := r.Init(context.Background(), userA, wire.InitRequest{
		ProjectID:  "proj1",
		MerkleRoot: "rootA",
		Chunks:     []wire.ChunkWithCode{{ChunkMetadata: chunkMeta("hashFromA"), Code: "fn belongsToUserA"}},
	})
	require.NoError(t, err)
	_, err = r.Init(context.Background(), userB, wire.InitRequest{
		ProjectID:  "proj1",
		MerkleRoot: "rootB",
		Chunks:     []wire.ChunkWithCode{{ChunkMetadata: chunkMeta("hashFromB"), Code: "fn belongsToUserB, much longer body"}},
	})
	require.NoError(t, err)

	resp, err := r.Search(context.Background(), userA, wire.SearchRequest{Query: "fn belongsToUserA", ProjectID: "proj1", TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, res := range resp.Results {
		assert.NotEqual(t, "hashFromB", res.Hash, "search must not leak a colliding-prefix tenant's vector")
		assert.Equal(t, "hashFromA", res.Hash)
	}
}

// TestPhase2AIMismatchYieldsPartial exercises the AI-mismatch error path:
// a client whose AI response count does not match the request is treated
// as a recoverable "partial" sync, not an error.
func TestPhase2AIMismatchYieldsPartial(t *testing.T) {
	r := newTestReconciler(t)
	r.ai = mismatchAI{}

	resp, err := r.Phase2(context.Background(), "user1", wire.SyncPhase2Request{
		ProjectID:  "proj1",
		MerkleRoot: "root1",
		Chunks:     []wire.ChunkWithCode{{ChunkMetadata: chunkMeta("h1"), Code: "fn one"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "partial", resp.Status)
	assert.Equal(t, 0, resp.VectorsStored)
}

type mismatchAI struct{}

func (mismatchAI) Process(ctx context.Context, codes []string) ([]AIResult, error) {
	return nil, nil
}
