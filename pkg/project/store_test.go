// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package project

import (
	"path/filepath"
	"testing"

	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesUUID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".idxsync")
	s, isNew, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, s.ProjectID())
}

func TestLoadOrCreateSecondOpenReusesIdentity(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".idxsync")
	s1, _, err := LoadOrCreate(dir)
	require.NoError(t, err)
	id1 := s1.ProjectID()

	s2, isNew, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id1, s2.ProjectID())
}

func TestWithStateMutatesAndPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".idxsync")
	s, _, err := LoadOrCreate(dir)
	require.NoError(t, err)

	s.WithState(func(tree *merkle.Tree, queue *dirtyqueue.Queue) {
		tree.UpdateLeaf("a.ts", []byte("A"))
		queue.Mark("a.ts")
	})
	require.NoError(t, s.Save())

	s2, isNew, err := LoadOrCreate(dir)
	require.NoError(t, err)
	assert.False(t, isNew)

	var leafCount int
	var dirtyCount int
	s2.WithState(func(tree *merkle.Tree, queue *dirtyqueue.Queue) {
		leafCount = len(tree.Leaves())
		paths, _ := queue.Snapshot()
		dirtyCount = len(paths)
	})
	assert.Equal(t, 1, leafCount)
	assert.Equal(t, 1, dirtyCount)
}
