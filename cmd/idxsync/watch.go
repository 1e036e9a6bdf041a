// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/idxsync/internal/errors"
	"github.com/kraklabs/idxsync/internal/ui"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/kraklabs/idxsync/pkg/project"
	"github.com/kraklabs/idxsync/pkg/syncclient"
	"github.com/kraklabs/idxsync/pkg/watcher"
)

// runWatch executes the 'watch' CLI command: it drives a watcher.Bridge to
// keep the project's Merkle tree and dirty queue live in memory as files
// change, and debounces bursts of changes into a single sync call. The
// bridge itself performs no debouncing — that is this layer's job, per the
// bridge's own package doc.
func runWatch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	debounce := fs.Duration("debounce", 0, "Debounce interval before syncing after a change (default: from config)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: idxsync watch [options]

Description:
  Watch the repository for file changes and sync with the reconciler
  server after a debounce interval of quiet. Runs until interrupted.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	repoRoot, err := repoRootFromConfigPath(configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	store, isNew, err := project.LoadOrCreate(dataDir)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open local project state",
			fmt.Sprintf("Failed to load or create state in %s", dataDir),
			"Check directory permissions, or run 'idxsync reset --yes' to start over",
			err,
		), globals.JSON)
	}

	debounceInterval := cfg.Indexing.WatchDebounce
	if *debounce > 0 {
		debounceInterval = *debounce
	}
	if debounceInterval <= 0 {
		debounceInterval = 2 * time.Second
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Run the initial sync synchronously so the watcher starts from an
	// up-to-date Merkle tree rather than racing the first debounce fire.
	path, summary, err := runOneSync(cfg, repoRoot, store, isNew)
	if err != nil {
		ui.Warningf("initial sync failed: %v", err)
	} else {
		ui.Successf("initial sync: %s (%d chunks)", path, summary.ChunksTotal)
	}

	var bridge *watcher.Bridge
	store.WithState(func(tree *merkle.Tree, queue *dirtyqueue.Queue) {
		bridge = watcher.New(repoRoot, tree, queue, watcher.Config{}, logger)
	})

	changed := make(chan struct{}, 1)
	bridge.OnFileChanged(func(relPath, newRoot string) {
		if globals.Verbose >= 1 {
			fmt.Fprintf(os.Stderr, "[watch] %s changed, new root %s\n", relPath, newRoot)
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	if err := bridge.Start(); err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot start file watcher",
			"Failed to start the native filesystem watcher",
			"Check system limits on open file descriptors (inotify watches)",
			err,
		), globals.JSON)
	}
	defer func() { _ = bridge.Close() }()

	ui.Successf("watching %s (debounce %s)", repoRoot, debounceInterval)

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-changed:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceInterval)
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			path, summary, err := runOneSync(cfg, repoRoot, store, false)
			if err != nil {
				ui.Warningf("sync failed: %v", err)
				continue
			}
			ui.Successf("synced: %s (%d chunks)", path, summary.ChunksTotal)
		}
	}
}
