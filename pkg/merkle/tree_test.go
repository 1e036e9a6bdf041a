// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package merkle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/idxsync/pkg/hasher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeRootIsZero(t *testing.T) {
	tr := New()
	assert.True(t, tr.Root().IsZero())
}

func TestSingleLeafRootIsPromotedUnchanged(t *testing.T) {
	tr := New()
	res := tr.UpdateLeaf("a.ts", []byte("export function f(){return 1}"))
	assert.True(t, res.Changed)

	want := hasher.FileDigest("a.ts", []byte("export function f(){return 1}"))
	assert.Equal(t, want, tr.Root())
}

func TestUpdateLeafUnchangedContentIsNoop(t *testing.T) {
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("same"))
	root1 := tr.Root()

	res := tr.UpdateLeaf("a.ts", []byte("same"))
	assert.False(t, res.Changed)
	assert.Equal(t, root1, tr.Root())
}

func TestRootDeterministicRegardlessOfInsertOrder(t *testing.T) {
	t1 := New()
	t1.UpdateLeaf("b.ts", []byte("B"))
	t1.UpdateLeaf("a.ts", []byte("A"))

	t2 := New()
	t2.UpdateLeaf("a.ts", []byte("A"))
	t2.UpdateLeaf("b.ts", []byte("B"))

	assert.Equal(t, t1.Root(), t2.Root())
}

func TestOddTrailingLeafIsPromotedNotSelfHashed(t *testing.T) {
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("A"))
	tr.UpdateLeaf("b.ts", []byte("B"))
	tr.UpdateLeaf("c.ts", []byte("C"))

	ha := hasher.FileDigest("a.ts", []byte("A"))
	hb := hasher.FileDigest("b.ts", []byte("B"))
	hc := hasher.FileDigest("c.ts", []byte("C"))

	level1 := []hasher.Digest{hasher.Combine(ha, hb), hc}
	want := hasher.Combine(level1[0], level1[1])
	assert.Equal(t, want, tr.Root())
}

func TestRemoveLeafDropsFromRoot(t *testing.T) {
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("A"))
	tr.UpdateLeaf("b.ts", []byte("B"))
	tr.RemoveLeaf("b.ts")

	want := hasher.FileDigest("a.ts", []byte("A"))
	assert.Equal(t, want, tr.Root())
}

func TestRemoveLastLeafGivesEmptyRoot(t *testing.T) {
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("A"))
	tr.RemoveLeaf("a.ts")
	assert.True(t, tr.Root().IsZero())
}

func TestRenameProducesDifferentRoot(t *testing.T) {
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("same content"))
	rootBefore := tr.Root()

	tr.RemoveLeaf("a.ts")
	tr.UpdateLeaf("renamed.ts", []byte("same content"))
	rootAfter := tr.Root()

	assert.NotEqual(t, rootBefore, rootAfter)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("A"))
	tr.UpdateLeaf("b.ts", []byte("B"))

	require.NoError(t, Save(dir, Snapshot(tr)))

	loaded, err := Load(dir)
	require.NoError(t, err)

	restored, err := Restore(loaded)
	require.NoError(t, err)
	assert.Equal(t, tr.Root(), restored.Root())
	assert.Equal(t, tr.Leaves(), restored.Leaves())
}

func TestSaveIsAtomicNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	tr := New()
	tr.UpdateLeaf("a.ts", []byte("A"))
	require.NoError(t, Save(dir, Snapshot(tr)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.Ext(e.Name()) == ".tmp")
	}
}
