// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dirtyqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAndSnapshot(t *testing.T) {
	q := New()
	q.Mark("b.ts")
	q.Mark("a.ts")
	paths, _ := q.Snapshot()
	assert.Equal(t, []string{"a.ts", "b.ts"}, paths)
}

func TestClearRemovesSingleEntry(t *testing.T) {
	q := New()
	q.Mark("a.ts")
	q.Mark("b.ts")
	q.Clear("a.ts")
	paths, _ := q.Snapshot()
	assert.Equal(t, []string{"b.ts"}, paths)
}

func TestClearAllEmptiesAndAdvancesLastSync(t *testing.T) {
	q := New()
	q.Mark("a.ts")
	before := q.LastSync()
	q.ClearAll()
	assert.True(t, q.IsEmpty())
	assert.True(t, !q.LastSync().Before(before))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	q := New()
	q.Mark("a.ts")
	q.Mark("b.ts")

	require.NoError(t, Save(dir, q))
	loaded, err := Load(dir)
	require.NoError(t, err)

	paths, _ := loaded.Snapshot()
	assert.Equal(t, []string{"a.ts", "b.ts"}, paths)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}
