// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/idxsync/pkg/chunker"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/kraklabs/idxsync/pkg/project"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// Path names the sync path chosen by Orchestrator.Sync, per the
// {isNew, serverRoot, dirtyQueue} decision table.
type Path string

const (
	PathFullInit    Path = "full_init"
	PathNoop        Path = "noop"
	PathIncremental Path = "incremental"
	PathReopen      Path = "reopen"
)

// Orchestrator drives one project's sync lifecycle against a reconciler
// server: choosing a path, chunking the relevant files, and running the
// two-phase protocol. Only one Sync call may be in flight per project at a
// time; callers serialize invocations themselves (the cooperative
// scheduler described in the concurrency model).
type Orchestrator struct {
	client        *Client
	chunkerConfig chunker.Config
	logger        *slog.Logger
	onSummary     func(wire.SyncSummary)
	onProgress    func(current, total int64, phase string)
}

// New builds an Orchestrator.
func New(client *Client, chunkerConfig chunker.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, chunkerConfig: chunkerConfig, logger: logger}
}

// OnSummary registers a callback fired with the per-sync summary after
// Sync completes successfully.
func (o *Orchestrator) OnSummary(fn func(wire.SyncSummary)) {
	o.onSummary = fn
}

// OnProgress registers a callback fired as files are chunked during a
// sync round, reporting the current/total file count and the phase name,
// which is always "chunking".
func (o *Orchestrator) OnProgress(fn func(current, total int64, phase string)) {
	o.onProgress = fn
}

func (o *Orchestrator) reportProgress(current, total int64, phase string) {
	if o.onProgress != nil {
		o.onProgress(current, total, phase)
	}
}

// Sync runs one sync round for the project rooted at repoRoot, whose
// persisted state lives in store. isNew reports whether store.LoadOrCreate
// just created a fresh project identity.
func (o *Orchestrator) Sync(ctx context.Context, repoRoot string, store *project.Store, isNew bool) (Path, error) {
	projectID := store.ProjectID()

	if isNew {
		return PathFullInit, o.runFullInit(ctx, repoRoot, store, projectID)
	}

	var localRoot string
	var dirtyPaths []string
	store.WithState(func(tree *merkle.Tree, queue *dirtyqueue.Queue) {
		localRoot = merkle.WireRoot(tree.Root())
		dirtyPaths, _ = queue.Snapshot()
	})

	checkResp, err := o.client.Check(ctx, wire.CheckRequest{ProjectID: projectID, MerkleRoot: localRoot})
	if err != nil {
		return "", fmt.Errorf("sync: check: %w", err)
	}

	if checkResp.ServerRoot == "" {
		// Server has no record of this project: promote to full-init.
		return PathFullInit, o.runFullInit(ctx, repoRoot, store, projectID)
	}
	if !checkResp.Changed {
		// Roots already match; do not touch the dirty queue.
		return PathNoop, nil
	}
	if len(dirtyPaths) > 0 {
		return PathIncremental, o.runTwoPhase(ctx, repoRoot, store, projectID, dirtyPaths)
	}

	// Roots differ but the queue is empty: the editor wasn't running to
	// observe the changes, so the queue is not authoritative. Rescan.
	allPaths, err := listTrackedPaths(repoRoot)
	if err != nil {
		return "", fmt.Errorf("sync: reopen scan: %w", err)
	}
	return PathReopen, o.runTwoPhase(ctx, repoRoot, store, projectID, allPaths)
}

// runFullInit chunks every tracked file and submits the whole project in
// one /v1/index/init call.
func (o *Orchestrator) runFullInit(ctx context.Context, repoRoot string, store *project.Store, projectID string) error {
	tree, err := scanProjectFiles(repoRoot)
	if err != nil {
		return fmt.Errorf("full init: scan: %w", err)
	}

	leaves := tree.Leaves()
	var chunks []wire.ChunkWithCode
	for i, leaf := range leaves {
		o.reportProgress(int64(i), int64(len(leaves)), "chunking")
		cs, err := o.chunkFile(repoRoot, leaf.RelativePath)
		if err != nil {
			o.logger.Warn("sync.chunk_failed", "path", leaf.RelativePath, "error", err)
			continue
		}
		chunks = append(chunks, cs...)
	}
	o.reportProgress(int64(len(leaves)), int64(len(leaves)), "chunking")

	root := merkle.WireRoot(tree.Root())
	resp, err := o.client.Init(ctx, wire.InitRequest{ProjectID: projectID, MerkleRoot: root, Chunks: chunks})
	if err != nil {
		return fmt.Errorf("full init: %w", err)
	}

	store.WithState(func(t *merkle.Tree, q *dirtyqueue.Queue) {
		*t = *tree
		q.ClearAll()
	})
	if err := store.Save(); err != nil {
		return fmt.Errorf("full init: persist: %w", err)
	}

	o.emitSummary(wire.SyncSummary{
		ChunksTotal:  len(chunks),
		ChunksNeeded: resp.AIProcessed,
		ChunksCached: resp.CacheHits,
		Message:      fmt.Sprintf("full init: %s", resp.Status),
	})
	return nil
}

// runTwoPhase chunks exactly the given relative paths and runs phase-1
// then phase-2 against them, per §4.8/§4.9. A phase-2 call with zero
// needed chunks is still issued so the server can commit the new root.
func (o *Orchestrator) runTwoPhase(ctx context.Context, repoRoot string, store *project.Store, projectID string, paths []string) error {
	var allChunks []wire.ChunkWithCode
	var localRoot string

	store.WithState(func(tree *merkle.Tree, _ *dirtyqueue.Queue) {
		for _, p := range paths {
			content, err := os.ReadFile(filepath.Join(repoRoot, p))
			if err != nil {
				// File may have been deleted mid-run: drop it from the tree
				// and skip chunking, but still mark the root change.
				tree.RemoveLeaf(p)
				continue
			}
			tree.UpdateLeaf(p, content)
		}
		localRoot = merkle.WireRoot(tree.Root())
	})

	for i, p := range paths {
		o.reportProgress(int64(i), int64(len(paths)), "chunking")
		cs, err := o.chunkFile(repoRoot, p)
		if err != nil {
			o.logger.Warn("sync.chunk_failed", "path", p, "error", err)
			continue
		}
		allChunks = append(allChunks, cs...)
	}
	o.reportProgress(int64(len(paths)), int64(len(paths)), "chunking")

	metas := make([]wire.ChunkMetadata, len(allChunks))
	byHash := make(map[string]wire.ChunkWithCode, len(allChunks))
	for i, c := range allChunks {
		metas[i] = c.ChunkMetadata
		byHash[c.Hash] = c
	}

	phase1, err := o.client.SyncPhase1(ctx, wire.SyncPhase1Request{
		ProjectID:  projectID,
		MerkleRoot: localRoot,
		Chunks:     metas,
	})
	if err != nil {
		// Error policy: abort without clearing the dirty queue; the next
		// tick retries.
		return fmt.Errorf("sync phase1: %w", err)
	}

	var needed []wire.ChunkWithCode
	for _, h := range phase1.Needed {
		if c, ok := byHash[h]; ok {
			needed = append(needed, c)
		}
	}

	phase2, err := o.client.SyncPhase2(ctx, wire.SyncPhase2Request{
		ProjectID:  projectID,
		MerkleRoot: localRoot,
		Chunks:     needed,
	})
	if err != nil {
		return fmt.Errorf("sync phase2: %w", err)
	}

	// Phase-2 succeeded (even if status=partial for AI reasons): clear the
	// dirty queue unconditionally per §4.7 and persist the advanced tree.
	store.WithState(func(_ *merkle.Tree, q *dirtyqueue.Queue) {
		for _, p := range paths {
			q.Clear(p)
		}
	})
	if err := store.Save(); err != nil {
		return fmt.Errorf("sync: persist: %w", err)
	}

	o.emitSummary(wire.SyncSummary{
		ChunksTotal:  len(allChunks),
		ChunksNeeded: len(needed),
		ChunksCached: phase1.CacheHits,
		Message:      fmt.Sprintf("sync: %s", phase2.Status),
	})
	return nil
}

func (o *Orchestrator) emitSummary(s wire.SyncSummary) {
	if o.onSummary != nil {
		o.onSummary(s)
	}
}

// chunkFile reads relPath under repoRoot, resolves its language from
// extension, and chunks it, returning wire-ready ChunkWithCode records.
func (o *Orchestrator) chunkFile(repoRoot, relPath string) ([]wire.ChunkWithCode, error) {
	content, err := os.ReadFile(filepath.Join(repoRoot, relPath))
	if err != nil {
		return nil, err
	}
	languageID := languageForExtension(filepath.Ext(relPath))

	chunks := chunker.Chunk(content, languageID, relPath, o.chunkerConfig)
	out := make([]wire.ChunkWithCode, len(chunks))
	for i, c := range chunks {
		out[i] = wire.ChunkWithCode{
			ChunkMetadata: wire.ChunkMetadata{
				Hash:       c.Hash.String(),
				Kind:       string(c.Kind),
				Name:       c.Name,
				LanguageID: c.LanguageID,
				Lines:      [2]int{c.Reference.LineStart, c.Reference.LineEnd},
				CharCount:  c.CharCount,
				FilePath:   relPath,
			},
			Code: string(content[c.Reference.CharStart:c.Reference.CharEnd]),
		}
	}
	return out, nil
}

// listTrackedPaths rescans repoRoot for every file matching the tracked
// extension allow-list, used by the reopen path where the dirty queue is
// not authoritative.
func listTrackedPaths(repoRoot string) ([]string, error) {
	tree, err := scanProjectFiles(repoRoot)
	if err != nil {
		return nil, err
	}
	leaves := tree.Leaves()
	paths := make([]string, len(leaves))
	for i, l := range leaves {
		paths[i] = l.RelativePath
	}
	return paths, nil
}
