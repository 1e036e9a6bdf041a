// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathAllowedHonorsExtensionAllowList(t *testing.T) {
	b := &Bridge{cfg: Config{Extensions: []string{".go"}}}
	assert.True(t, b.pathAllowed("/repo/main.go"))
	assert.False(t, b.pathAllowed("/repo/README.md"))
}

func TestPathAllowedHonorsIgnoreGlobs(t *testing.T) {
	b := &Bridge{cfg: Config{IgnoreGlobs: []string{"/*/testdata/*"}}}
	assert.False(t, b.pathAllowed("/repo/testdata/fixture.go"))
	assert.True(t, b.pathAllowed("/repo/pkg/fixture.go"))
}

func TestStartSeedsExistingFilesAndReportsNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0600))

	tree := merkle.New()
	queue := dirtyqueue.New()
	b := New(root, tree, queue, Config{Extensions: []string{".go"}}, nil)

	var gotEvents []string
	b.OnFileChanged(func(relPath string, _ string) {
		gotEvents = append(gotEvents, relPath)
	})

	require.NoError(t, b.Start())
	defer b.Close()

	_, seeded := b.seeded["a.go"]
	assert.True(t, seeded)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b"), 0600))

	deadline := time.Now().Add(2 * time.Second)
	for len(gotEvents) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	assert.Contains(t, gotEvents, "b.go")
	assert.True(t, queue.IsEmpty() == false)
}
