// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncclient

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/idxsync/pkg/chunker"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/kraklabs/idxsync/pkg/project"
	"github.com/kraklabs/idxsync/pkg/reconciler"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// newTestServer spins up a reconciler stack in-process behind an HTTP test
// server, mirroring the serve subcommand's wiring at a much smaller scale.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := reconciler.DefaultConfig()
	cfg.EmbeddingWidth = 4

	store, err := reconciler.OpenStore(filepath.Join(t.TempDir(), "reconciler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors := reconciler.NewVectorStore(reconciler.VectorStoreConfig{Dimensions: cfg.EmbeddingWidth})
	cache := reconciler.NewEmbeddingCache(cfg.CacheTTL)
	r := reconciler.New(cfg, cache, vectors, store, stubAI{dims: cfg.EmbeddingWidth}, nil)
	srv := reconciler.NewServer(r, nil, nil)

	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

type stubAI struct{ dims int }

func (s stubAI) Process(_ context.Context, codes []string) ([]reconciler.AIResult, error) {
	out := make([]reconciler.AIResult, len(codes))
	for i, code := range codes {
		vec := make([]float32, s.dims)
		vec[0] = float32(len(code)) + 1
		out[i] = reconciler.AIResult{Summary: "s", Embedding: vec}
	}
	return out, nil
}

func writeRepoFile(t *testing.T, repoRoot, relPath, content string) {
	t.Helper()
	full := filepath.Join(repoRoot, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0600))
}

func newOrchestrator(ts *httptest.Server) *Orchestrator {
	client := NewClient(ts.URL, 0)
	return New(client, chunker.DefaultConfig(), nil)
}

func openProjectStore(t *testing.T, repoRoot string) (*project.Store, bool) {
	t.Helper()
	store, isNew, err := project.LoadOrCreate(filepath.Join(repoRoot, ".idxsync"))
	require.NoError(t, err)
	return store, isNew
}

// TestSyncFullInitOnNewProject grounds the full_init row of the path table:
// a brand new project store submits every tracked file in one call.
func TestSyncFullInitOnNewProject(t *testing.T) {
	ts := newTestServer(t)
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 1 }\n")
	writeRepoFile(t, repoRoot, "b.go", "package a\n\nfunc G() int { return 2 }\n")

	store, isNew := openProjectStore(t, repoRoot)
	require.True(t, isNew)

	o := newOrchestrator(ts)
	var gotSummary wire.SyncSummary
	o.OnSummary(func(s wire.SyncSummary) { gotSummary = s })

	path, err := o.Sync(context.Background(), repoRoot, store, isNew)
	require.NoError(t, err)
	assert.Equal(t, PathFullInit, path)
	assert.GreaterOrEqual(t, gotSummary.ChunksTotal, 2, "both files should contribute at least one chunk each")
}

// TestSyncNoopWhenRootsMatch grounds the noop row: re-running Sync right
// after a successful full init, with no filesystem changes, does nothing.
func TestSyncNoopWhenRootsMatch(t *testing.T) {
	ts := newTestServer(t)
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 1 }\n")

	store, isNew := openProjectStore(t, repoRoot)
	o := newOrchestrator(ts)

	_, err := o.Sync(context.Background(), repoRoot, store, isNew)
	require.NoError(t, err)

	path, err := o.Sync(context.Background(), repoRoot, store, false)
	require.NoError(t, err)
	assert.Equal(t, PathNoop, path)
}

// TestSyncIncrementalUsesDirtyQueueOnly grounds the incremental row: after
// a full init, marking one file dirty and editing it drives a two-phase
// sync over just that file, and the dirty queue is cleared on success.
func TestSyncIncrementalUsesDirtyQueueOnly(t *testing.T) {
	ts := newTestServer(t)
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 1 }\n")
	writeRepoFile(t, repoRoot, "b.go", "package a\n\nfunc G() int { return 2 }\n")

	store, isNew := openProjectStore(t, repoRoot)
	o := newOrchestrator(ts)
	_, err := o.Sync(context.Background(), repoRoot, store, isNew)
	require.NoError(t, err)

	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 99 }\n")
	store.WithState(func(tree *merkle.Tree, q *dirtyqueue.Queue) {
		tree.UpdateLeaf("a.go", []byte("package a\n\nfunc F() int { return 99 }\n"))
		q.Mark("a.go")
	})

	path, err := o.Sync(context.Background(), repoRoot, store, false)
	require.NoError(t, err)
	assert.Equal(t, PathIncremental, path)

	var empty bool
	store.WithState(func(_ *merkle.Tree, q *dirtyqueue.Queue) {
		empty = q.IsEmpty()
	})
	assert.True(t, empty, "dirty queue must be cleared after a successful sync")
}

// TestSyncReopenRescansWhenQueueEmptyButRootsDiffer grounds property 7: if
// the local tree falls out of sync with the server without any dirty
// entries recorded (e.g. state was rebuilt independently of the watcher),
// the orchestrator rescans the whole tree instead of erroring out.
func TestSyncReopenRescansWhenQueueEmptyButRootsDiffer(t *testing.T) {
	ts := newTestServer(t)
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 1 }\n")

	store, isNew := openProjectStore(t, repoRoot)
	o := newOrchestrator(ts)
	_, err := o.Sync(context.Background(), repoRoot, store, isNew)
	require.NoError(t, err)

	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 2 }\n")
	store.WithState(func(tree *merkle.Tree, _ *dirtyqueue.Queue) {
		tree.UpdateLeaf("a.go", []byte("package a\n\nfunc F() int { return 2 }\n"))
	})

	path, err := o.Sync(context.Background(), repoRoot, store, false)
	require.NoError(t, err)
	assert.Equal(t, PathReopen, path)
}

// TestSyncAbortsWithoutClearingQueueOnError grounds the error policy: an
// HTTP failure (here the initial root check against a closed server)
// leaves the dirty queue untouched so the next tick retries the same paths.
func TestSyncAbortsWithoutClearingQueueOnError(t *testing.T) {
	ts := newTestServer(t)
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 1 }\n")

	store, isNew := openProjectStore(t, repoRoot)
	o := newOrchestrator(ts)
	_, err := o.Sync(context.Background(), repoRoot, store, isNew)
	require.NoError(t, err)

	writeRepoFile(t, repoRoot, "a.go", "package a\n\nfunc F() int { return 3 }\n")
	store.WithState(func(_ *merkle.Tree, q *dirtyqueue.Queue) {
		q.Mark("a.go")
	})

	ts.Close() // force every subsequent call to fail

	_, err = o.Sync(context.Background(), repoRoot, store, false)
	require.Error(t, err)

	var empty bool
	store.WithState(func(_ *merkle.Tree, q *dirtyqueue.Queue) {
		empty = q.IsEmpty()
	})
	assert.False(t, empty, "dirty queue must survive an aborted sync for retry")
}
