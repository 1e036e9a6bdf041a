// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconciler implements the server-side half of two-phase sync:
// cache lookup, opportunistic upsert, AI-backed embedding, and
// tenant-scoped vector storage.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/idxsync/pkg/metrics"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// Config bundles the tunables a Reconciler needs beyond its three shared
// stores.
type Config struct {
	AITimeout      time.Duration
	CacheTTL       time.Duration
	VectorBatch    int
	SearchTopKCap  int
	EmbeddingWidth int
}

// DefaultConfig returns the tunables named in the server reconciler's
// concurrency and batching rules.
func DefaultConfig() Config {
	return Config{
		AITimeout:      25 * time.Second,
		CacheTTL:       10 * 24 * time.Hour,
		VectorBatch:    100,
		SearchTopKCap:  50,
		EmbeddingWidth: 1024,
	}
}

// Reconciler is the stateless-per-request core behind the sync endpoints.
// It holds the three shared stores named in the concurrency model: the
// embedding cache, the vector store, and the relational merkle-root /
// chunk-membership store. It does not hold per-tenant state in memory.
type Reconciler struct {
	cfg     Config
	cache   *EmbeddingCache
	vectors *VectorStore
	store   *Store
	ai      AIClient
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New builds a Reconciler over the given shared stores and AI client.
func New(cfg Config, cache *EmbeddingCache, vectors *VectorStore, store *Store, ai AIClient, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cfg: cfg, cache: cache, vectors: vectors, store: store, ai: ai, logger: logger}
}

// SetMetrics attaches a Prometheus registry that Phase1/Phase2 report
// cache and AI outcomes into. Leaving it unset (the zero value, nil) is
// valid: every call site below is a no-op when r.metrics is nil.
func (r *Reconciler) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// Check reports whether the tenant's last-accepted root differs from the
// client's current root, per POST /v1/index/check.
func (r *Reconciler) Check(userID string, req wire.CheckRequest) (wire.CheckResponse, error) {
	serverRoot, known, err := r.store.MerkleRoot(userID, req.ProjectID)
	if err != nil {
		return wire.CheckResponse{}, err
	}
	if !known {
		return wire.CheckResponse{Changed: true}, nil
	}
	return wire.CheckResponse{
		Changed:    serverRoot != req.MerkleRoot,
		ServerRoot: serverRoot,
	}, nil
}

// Init runs the full-init path in one request: phase-1 over every submitted
// chunk (cache hits are upserted directly), then phase-2 over the chunks
// phase-1 reported as needed, using the code the request already carries.
// A fully stored result is reported as "indexed".
func (r *Reconciler) Init(ctx context.Context, userID string, req wire.InitRequest) (wire.InitResponse, error) {
	metas := make([]wire.ChunkMetadata, len(req.Chunks))
	for i, c := range req.Chunks {
		metas[i] = c.ChunkMetadata
	}

	phase1, err := r.Phase1(userID, wire.SyncPhase1Request{
		ProjectID:  req.ProjectID,
		MerkleRoot: req.MerkleRoot,
		Chunks:     metas,
	})
	if err != nil {
		return wire.InitResponse{}, err
	}

	needed := make(map[string]bool, len(phase1.Needed))
	for _, h := range phase1.Needed {
		needed[h] = true
	}

	var withCode []wire.ChunkWithCode
	for _, c := range req.Chunks {
		if needed[c.Hash] {
			withCode = append(withCode, c)
		}
	}

	phase2, err := r.Phase2(ctx, userID, wire.SyncPhase2Request{
		ProjectID:  req.ProjectID,
		MerkleRoot: req.MerkleRoot,
		Chunks:     withCode,
	})
	if err != nil {
		return wire.InitResponse{}, err
	}

	status := phase2.Status
	if status == "stored" {
		status = "indexed"
	}
	return wire.InitResponse{
		Status:         status,
		MerkleRoot:     phase2.MerkleRoot,
		ChunksReceived: len(req.Chunks),
		AIProcessed:    phase2.AIProcessed,
		CacheHits:      phase1.CacheHits + phase2.CacheHits,
		VectorsStored:  phase1.Vectorized + phase2.VectorsStored,
		AIErrors:       phase2.AIErrors,
	}, nil
}

// Phase1 implements §4.8: hash-check every chunk against the embedding
// cache, opportunistically upsert cache hits, and persist the new root.
func (r *Reconciler) Phase1(userID string, req wire.SyncPhase1Request) (wire.SyncPhase1Response, error) {
	resp := wire.SyncPhase1Response{}

	hashes := make([]string, len(req.Chunks))
	byHash := make(map[string]wire.ChunkMetadata, len(req.Chunks))
	for i, c := range req.Chunks {
		hashes[i] = c.Hash
		byHash[c.Hash] = c
	}

	hits, misses := r.cache.GetMany(hashes)
	resp.Needed = misses
	resp.CacheHits = len(hits)
	if r.metrics != nil {
		r.metrics.CacheHitsTotal.Add(float64(len(hits)))
		r.metrics.CacheMissesTotal.Add(float64(len(misses)))
	}

	for hash, entry := range hits {
		meta := byHash[hash]
		if err := r.upsertOne(userID, req.ProjectID, hash, meta, entry); err != nil {
			r.logger.Warn("phase1 upsert failed", "hash", hash, "error", err)
			continue
		}
		resp.Vectorized++
	}

	if err := r.store.SetMerkleRoot(userID, req.ProjectID, req.MerkleRoot); err != nil {
		return wire.SyncPhase1Response{}, err
	}
	return resp, nil
}

// Phase2 implements §4.9: embed the truly-new chunks under a bounded AI
// timeout, discard zero vectors, cache and upsert the rest, and persist
// the new root.
func (r *Reconciler) Phase2(ctx context.Context, userID string, req wire.SyncPhase2Request) (wire.SyncPhase2Response, error) {
	resp := wire.SyncPhase2Response{Status: "stored", MerkleRoot: req.MerkleRoot}

	var stillCached []wire.ChunkWithCode
	var trulyNew []wire.ChunkWithCode
	for _, c := range req.Chunks {
		if _, ok := r.cache.Get(c.Hash); ok {
			stillCached = append(stillCached, c)
		} else {
			trulyNew = append(trulyNew, c)
		}
	}
	resp.CacheHits = len(stillCached)

	var results []AIResult
	var aiErrors int
	if len(trulyNew) > 0 {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.AITimeout)
		defer cancel()

		codes := make([]string, len(trulyNew))
		for i, c := range trulyNew {
			codes[i] = c.Code
		}

		res, err := r.callAI(callCtx, codes)
		if err != nil || len(res) != len(trulyNew) {
			if r.metrics != nil {
				if err == context.DeadlineExceeded {
					r.metrics.AITimeoutsTotal.Inc()
				} else {
					r.metrics.AIMismatchesTotal.Inc()
				}
			}
			resp.Status = "partial"
			resp.Message = "ai call failed or returned mismatched count"
			if err := r.store.SetMerkleRoot(userID, req.ProjectID, req.MerkleRoot); err != nil {
				return wire.SyncPhase2Response{}, err
			}
			resp.MerkleRoot = req.MerkleRoot
			resp.Received = receivedHashes(stillCached, nil)
			return resp, nil
		}
		results = res
	}

	for i, c := range trulyNew {
		ai := results[i]
		if ZeroVector(ai.Embedding) {
			aiErrors++
			continue
		}
		r.cache.Set(c.Hash, EmbeddingEntry{Summary: ai.Summary, Embedding: ai.Embedding})
		resp.AIProcessed++
	}

	var toUpsert []wire.ChunkWithCode
	toUpsert = append(toUpsert, stillCached...)
	for i, c := range trulyNew {
		if !ZeroVector(results[i].Embedding) {
			toUpsert = append(toUpsert, c)
		}
	}

	for _, batch := range batchChunks(toUpsert, r.cfg.VectorBatch) {
		for _, c := range batch {
			entry, ok := r.cache.Get(c.Hash)
			if !ok {
				continue
			}
			if err := r.upsertOne(userID, req.ProjectID, c.Hash, c.ChunkMetadata, entry); err != nil {
				r.logger.Warn("phase2 upsert failed", "hash", c.Hash, "error", err)
				continue
			}
			resp.VectorsStored++
		}
	}
	if r.metrics != nil {
		r.metrics.VectorsStoredTotal.Add(float64(resp.VectorsStored))
	}

	resp.AIErrors = aiErrors
	resp.Received = receivedHashes(stillCached, trulyNew)

	if err := r.store.SetMerkleRoot(userID, req.ProjectID, req.MerkleRoot); err != nil {
		return wire.SyncPhase2Response{}, err
	}
	return resp, nil
}

func (r *Reconciler) callAI(ctx context.Context, codes []string) ([]AIResult, error) {
	type outcome struct {
		res []AIResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.ai.Process(ctx, codes)
		ch <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-ch:
		return o.res, o.err
	}
}

func (r *Reconciler) upsertOne(userID, projectID, hash string, meta wire.ChunkMetadata, entry EmbeddingEntry) error {
	if ZeroVector(entry.Embedding) {
		return fmt.Errorf("refusing to upsert zero vector for hash %s", hash)
	}
	id := vectorIDFromHex(userID, projectID, hash)
	if err := r.vectors.Upsert(id, entry.Embedding); err != nil {
		return err
	}
	return r.store.RecordChunk(userID, projectID, hash, id, meta, entry.Summary)
}

// Search implements POST /v1/search: embed the query the same way chunk
// code is embedded, then search the shared vector graph narrowed by this
// tenant's ID prefix, over-fetching to absorb filter losses, and finally
// drop any candidate whose recorded tenant identity does not exactly
// match (userID, req.ProjectID).
func (r *Reconciler) Search(ctx context.Context, userID string, req wire.SearchRequest) (wire.SearchResponse, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	if topK > r.cfg.SearchTopKCap {
		topK = r.cfg.SearchTopKCap
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.AITimeout)
	defer cancel()

	res, err := r.ai.Process(callCtx, []string{req.Query})
	if err != nil || len(res) != 1 || ZeroVector(res[0].Embedding) {
		return wire.SearchResponse{Query: req.Query}, nil
	}

	// The tenant prefix only narrows the shared graph's candidate set; per
	// §4.10 it is a distribution hint, not a trust boundary, since the
	// short user/project hashes are 32 bits wide and can collide across
	// tenants. Every candidate below is re-verified against the tenant
	// identity actually recorded for its vector ID before it is returned.
	prefix := TenantPrefix(userID, req.ProjectID)
	matches, err := r.vectors.Search(res[0].Embedding, prefix, topK)
	if err != nil {
		return wire.SearchResponse{}, err
	}

	results := make([]wire.SearchResult, 0, len(matches))
	for _, m := range matches {
		rec, ok, err := r.store.ChunkByVectorID(m.ID)
		if err != nil {
			return wire.SearchResponse{}, err
		}
		if !ok || rec.UserID != userID || rec.ProjectID != req.ProjectID {
			continue
		}
		results = append(results, wire.SearchResult{
			Hash:       rec.Metadata.Hash,
			Score:      m.Score,
			Summary:    rec.Summary,
			Kind:       rec.Metadata.Kind,
			Name:       rec.Metadata.Name,
			LanguageID: rec.Metadata.LanguageID,
			Lines:      rec.Metadata.Lines,
			FilePath:   rec.Metadata.FilePath,
		})
	}
	return wire.SearchResponse{Results: results, Query: req.Query}, nil
}

func receivedHashes(groups ...[]wire.ChunkWithCode) []string {
	var out []string
	for _, g := range groups {
		for _, c := range g {
			out = append(out, c.Hash)
		}
	}
	return out
}

func batchChunks(chunks []wire.ChunkWithCode, size int) [][]wire.ChunkWithCode {
	if size <= 0 {
		size = len(chunks)
	}
	var batches [][]wire.ChunkWithCode
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[i:end])
	}
	return batches
}

// vectorIDFromHex builds a composite vector ID given a hash already in
// its string hex form, as carried on the wire.
func vectorIDFromHex(userID, projectID, chunkHashHex string) string {
	short := chunkHashHex
	if len(short) > shortChunkHashLen {
		short = short[:shortChunkHashLen]
	}
	return shorten(userID, shortUserIDLen) + "_" + shorten(projectID, shortProjectIDLen) + "_" + short
}
