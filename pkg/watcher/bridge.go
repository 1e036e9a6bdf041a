// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package watcher bridges native filesystem events into Merkle tree and
// dirty-queue mutations. It is a cooperative, single-threaded consumer:
// native events are handled one at a time on a single dispatch goroutine,
// and OnFileChanged fires from that goroutine right after the event's tree
// and queue update.
//
// No debouncing happens at this layer — batching is the native watcher's
// job. Callers that want to coalesce bursts of OnFileChanged calls into a
// single downstream action (e.g. "trigger one reindex") do so themselves.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/hasher"
	"github.com/kraklabs/idxsync/pkg/merkle"
)

// defaultIgnoredDirs mirrors the teacher's watchSkipDirs table.
var defaultIgnoredDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "bin": true,
}

// Callback is invoked after an accepted event changes the Merkle root.
type Callback func(relPath string, newRoot string)

// Config controls which paths the bridge accepts.
type Config struct {
	// Extensions is the allow-list of file extensions, each with a
	// leading dot. Empty means "accept everything not otherwise ignored."
	Extensions []string
	// IgnoreDirs adds directory basenames to skip beyond the defaults.
	IgnoreDirs []string
	// IgnoreGlobs rejects absolute paths matching any of these
	// filepath.Match-style glob patterns (applied to the full path).
	IgnoreGlobs []string
}

// Bridge owns an fsnotify watcher and drives a shared Tree/Queue pair.
type Bridge struct {
	root   string
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // serializes dispatch; state's own mutex is held by the caller via WithState
	tree    *merkle.Tree
	queue   *dirtyqueue.Queue
	onEvent Callback

	watcher *fsnotify.Watcher
	seeded  map[string]struct{}
}

// New creates a bridge over an already-loaded tree and queue. The caller
// typically obtains tree/queue from pkg/project.Store.WithState and keeps
// ownership of persistence; the bridge only mutates them in memory.
func New(root string, tree *merkle.Tree, queue *dirtyqueue.Queue, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		root:   root,
		cfg:    cfg,
		logger: logger,
		tree:   tree,
		queue:  queue,
		seeded: make(map[string]struct{}),
	}
}

// OnFileChanged registers the callback fired when an accepted event
// changes the Merkle root.
func (b *Bridge) OnFileChanged(cb Callback) {
	b.onEvent = cb
}

// Start opens the native watcher, performs the initial synchronous
// directory walk that seeds the tracked-file set (so a later remove or
// rename of a pre-existing file is marked dirty), and begins dispatching
// events in the background. The seeded set does not filter create or write
// events: those fire whenever the file's content differs from the tree's
// leaf for it, or the tree has no leaf for it. Call Close to stop.
func (b *Bridge) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	b.watcher = w

	if err := b.seedAndWatchDirs(b.root); err != nil {
		_ = w.Close()
		return err
	}

	go b.dispatchLoop()
	return nil
}

// Close stops the underlying fsnotify watcher.
func (b *Bridge) Close() error {
	if b.watcher == nil {
		return nil
	}
	return b.watcher.Close()
}

func (b *Bridge) ignoredDirSet() map[string]bool {
	set := make(map[string]bool, len(defaultIgnoredDirs)+len(b.cfg.IgnoreDirs))
	for k := range defaultIgnoredDirs {
		set[k] = true
	}
	for _, d := range b.cfg.IgnoreDirs {
		set[d] = true
	}
	return set
}

func (b *Bridge) seedAndWatchDirs(root string) error {
	ignored := b.ignoredDirSet()
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			base := filepath.Base(path)
			if ignored[base] || (strings.HasPrefix(base, ".") && base != filepath.Base(root)) {
				return filepath.SkipDir
			}
			if err := b.watcher.Add(path); err != nil {
				b.logger.Warn("watcher.add_dir_failed", "path", path, "error", err)
				if os.IsPermission(err) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		b.seeded[rel] = struct{}{}
		return nil
	})
}

func (b *Bridge) dispatchLoop() {
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("watcher.fsnotify_error", "error", err)
		}
	}
}

func (b *Bridge) handleEvent(event fsnotify.Event) {
	if !b.pathAllowed(event.Name) {
		return
	}
	rel, err := filepath.Rel(b.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case event.Op&fsnotify.Remove != 0 || event.Op&fsnotify.Rename != 0:
		_, wasTracked := b.seeded[rel]
		newRoot := b.tree.RemoveLeaf(rel)
		delete(b.seeded, rel)
		if wasTracked {
			b.queue.Mark(rel)
			b.fire(rel, newRoot)
		}
	case event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0:
		content, err := os.ReadFile(event.Name)
		if err != nil {
			b.logger.Warn("watcher.read_failed", "path", event.Name, "error", err)
			return
		}
		result := b.tree.UpdateLeaf(rel, content)
		b.seeded[rel] = struct{}{}
		if result.Changed {
			b.queue.Mark(rel)
			b.fire(rel, result.Root)
		}
	}
}

func (b *Bridge) fire(relPath string, root hasher.Digest) {
	if b.onEvent != nil {
		b.onEvent(relPath, root.String())
	}
}

func (b *Bridge) pathAllowed(absPath string) bool {
	if len(b.cfg.Extensions) > 0 {
		ext := filepath.Ext(absPath)
		found := false
		for _, allowed := range b.cfg.Extensions {
			if ext == allowed {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, pattern := range b.cfg.IgnoreGlobs {
		if ok, _ := filepath.Match(pattern, absPath); ok {
			return false
		}
	}
	return true
}
