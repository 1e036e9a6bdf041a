// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package merkle maintains the ordered set of (relativePath, fileHash)
// leaves for a project and their pairwise-hashed root, persisted atomically
// so a crash mid-write never yields a torn file.
package merkle

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/idxsync/pkg/hasher"
)

// defaultIgnoredDirs mirrors the teacher's watch-skip table: directories a
// rescan never descends into regardless of extension allow-list.
var defaultIgnoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"bin":          true,
}

// Leaf is a single tracked file: its project-relative path and content
// fingerprint.
type Leaf struct {
	RelativePath string        `json:"relativePath"`
	FileHash     hasher.Digest `json:"hash"`
}

// Tree is an in-memory, ordered Merkle tree over file leaves. It is not
// safe for concurrent use; callers serialize access (see pkg/project).
type Tree struct {
	leaves []Leaf // kept sorted by RelativePath
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// FromLeaves builds a tree from an already-sorted-or-not leaf slice,
// normalizing order as it goes. Used when restoring persisted state.
func FromLeaves(leaves []Leaf) *Tree {
	t := &Tree{leaves: append([]Leaf(nil), leaves...)}
	t.sort()
	return t
}

func (t *Tree) sort() {
	sort.Slice(t.leaves, func(i, j int) bool {
		return t.leaves[i].RelativePath < t.leaves[j].RelativePath
	})
}

// Leaves returns the current leaf set in lexicographic order. The returned
// slice is a copy; mutating it does not affect the tree.
func (t *Tree) Leaves() []Leaf {
	out := make([]Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

func (t *Tree) indexOf(relPath string) (int, bool) {
	i := sort.Search(len(t.leaves), func(i int) bool {
		return t.leaves[i].RelativePath >= relPath
	})
	if i < len(t.leaves) && t.leaves[i].RelativePath == relPath {
		return i, true
	}
	return i, false
}

// Root computes the pairwise-combined digest of the current leaf set. At
// each level, adjacent pairs are hashed left∥right; a trailing unpaired
// node is promoted unchanged to the next level rather than hashed with
// itself. The empty tree's root is the zero digest.
func (t *Tree) Root() hasher.Digest {
	if len(t.leaves) == 0 {
		return hasher.Empty
	}
	level := make([]hasher.Digest, len(t.leaves))
	for i, l := range t.leaves {
		level[i] = l.FileHash
	}
	for len(level) > 1 {
		next := make([]hasher.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hasher.Combine(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// WireRoot formats root the way it must cross a process boundary (the
// sync wire protocol or the on-disk state file): the zero digest, which
// an empty tree produces, is the empty string, never 64 literal '0'
// characters.
func WireRoot(root hasher.Digest) string {
	if root.IsZero() {
		return ""
	}
	return root.String()
}

// UpdateResult reports what UpdateLeaf did.
type UpdateResult struct {
	Changed bool
	Root    hasher.Digest
}

// UpdateLeaf recomputes the digest for relPath given its current content
// and inserts/updates the leaf. If the new digest equals the stored one,
// no mutation occurs and Changed is false.
func (t *Tree) UpdateLeaf(relPath string, content []byte) UpdateResult {
	newHash := hasher.FileDigest(relPath, content)
	idx, found := t.indexOf(relPath)
	if found && t.leaves[idx].FileHash == newHash {
		return UpdateResult{Changed: false, Root: t.Root()}
	}
	if found {
		t.leaves[idx].FileHash = newHash
	} else {
		leaf := Leaf{RelativePath: relPath, FileHash: newHash}
		t.leaves = append(t.leaves, leaf)
		t.sort()
	}
	return UpdateResult{Changed: true, Root: t.Root()}
}

// RemoveLeaf removes relPath from the tree if present and returns the new
// root. Removing an absent path is a no-op.
func (t *Tree) RemoveLeaf(relPath string) hasher.Digest {
	idx, found := t.indexOf(relPath)
	if found {
		t.leaves = append(t.leaves[:idx], t.leaves[idx+1:]...)
	}
	return t.Root()
}

// ScanOptions controls RebuildFromScan's file selection.
type ScanOptions struct {
	// Extensions is the allow-list of file extensions to include, each
	// with a leading dot (".go", ".ts", ...). A nil/empty slice means
	// "no filter" (every regular file is included).
	Extensions []string
	// IgnoredDirs adds directory basenames to skip in addition to the
	// package defaults (.git, node_modules, vendor, dist, build, bin).
	IgnoredDirs []string
}

func (o ScanOptions) extensionAllowed(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range o.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (o ScanOptions) ignoredDirSet() map[string]bool {
	set := make(map[string]bool, len(defaultIgnoredDirs)+len(o.IgnoredDirs))
	for k := range defaultIgnoredDirs {
		set[k] = true
	}
	for _, d := range o.IgnoredDirs {
		set[d] = true
	}
	return set
}

// FileReader abstracts reading a file's content during a scan, allowing
// tests to stub the filesystem.
type FileReader interface {
	ReadFile(relPath string) ([]byte, error)
}

// Walker enumerates candidate files under a root, yielding project-relative,
// forward-slash-normalized paths.
type Walker interface {
	Walk(root string, ignoredDirs map[string]bool, visit func(relPath string) error) error
}

// RebuildFromScan discards the current leaf set and rebuilds it from a full
// directory walk, honoring the ignored-directory table and extension
// allow-list. It is O(files) but touches the whole tree; incremental
// updates should prefer UpdateLeaf/RemoveLeaf.
func RebuildFromScan(root string, walker Walker, reader FileReader, opts ScanOptions) (*Tree, error) {
	t := New()
	ignored := opts.ignoredDirSet()

	err := walker.Walk(root, ignored, func(relPath string) error {
		relPath = filepath.ToSlash(relPath)
		if !opts.extensionAllowed(relPath) {
			return nil
		}
		if pathIgnored(relPath, ignored) {
			return nil
		}
		content, err := reader.ReadFile(relPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", relPath, err)
		}
		t.UpdateLeaf(relPath, content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func pathIgnored(relPath string, ignored map[string]bool) bool {
	for _, part := range strings.Split(relPath, "/") {
		if ignored[part] {
			return true
		}
	}
	return false
}
