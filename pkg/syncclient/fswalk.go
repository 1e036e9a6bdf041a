// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncclient

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/idxsync/pkg/merkle"
)

// fsWalker implements merkle.Walker over the real filesystem, skipping
// hidden directories in addition to whatever ignored-directory set the
// caller passes in — the same rule the watcher bridge applies during its
// seeding walk.
type fsWalker struct{}

func (fsWalker) Walk(root string, ignoredDirs map[string]bool, visit func(relPath string) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if ignoredDirs[base] || (strings.HasPrefix(base, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		return visit(rel)
	})
}

// fsReader implements merkle.FileReader over the real filesystem, rooted
// at a fixed directory.
type fsReader struct {
	root string
}

func (r fsReader) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.root, relPath))
}

// scanProjectFiles rebuilds a full Merkle tree for root using the tracked
// extension allow-list, used by the full-init and reopen paths.
func scanProjectFiles(root string) (*merkle.Tree, error) {
	return merkle.RebuildFromScan(root, fsWalker{}, fsReader{root: root}, merkle.ScanOptions{
		Extensions: trackedExtensions(),
	})
}
