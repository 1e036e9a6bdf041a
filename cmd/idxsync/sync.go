// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/idxsync/internal/errors"
	"github.com/kraklabs/idxsync/internal/ui"
	"github.com/kraklabs/idxsync/pkg/chunker"
	"github.com/kraklabs/idxsync/pkg/project"
	"github.com/kraklabs/idxsync/pkg/syncclient"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// runSync executes the 'sync' CLI command: one sync cycle against the
// configured reconciler server, taking whichever path the orchestrator's
// decision table selects (full init, no-op, incremental, or reopen).
func runSync(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: idxsync sync [options]

Description:
  Run one sync cycle against the reconciler server. The path taken
  (full init, no-op, incremental, or reopen) depends on whether the
  project has synced before, whether the server's root matches the
  local one, and whether any files changed since the last sync.

Examples:
  idxsync sync
  idxsync sync --json

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

	showProgress := !globals.JSON && !globals.Quiet
	path, summary, err := runOneSyncWithProgress(cfg, repoRoot, store, isNew, showProgress)
	if err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Sync failed",
			err.Error(),
			"Check that the reconciler server is reachable and retry",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		printSyncJSON(path, summary)
	} else {
		printSyncHuman(path, summary)
	}
}

// runOneSync builds an Orchestrator and runs Sync once, returning the path
// taken and the resulting summary. Shared by runSync and runWatch.
func runOneSync(cfg *Config, repoRoot string, store *project.Store, isNew bool) (syncclient.Path, wire.SyncSummary, error) {
	return runOneSyncWithProgress(cfg, repoRoot, store, isNew, false)
}

// runOneSyncWithProgress is runOneSync with an optional terminal progress
// bar driven off the orchestrator's chunking progress callback.
func runOneSyncWithProgress(cfg *Config, repoRoot string, store *project.Store, isNew bool, showProgress bool) (syncclient.Path, wire.SyncSummary, error) {
	client := syncclient.NewClient(cfg.Server.BaseURL, cfg.Server.RequestTimeout)
	chunkerCfg := chunkerConfigFromIndexing(cfg.Indexing)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	orch := syncclient.New(client, chunkerCfg, logger)
	var summary wire.SyncSummary
	orch.OnSummary(func(s wire.SyncSummary) { summary = s })

	if showProgress {
		var bar *progressbar.ProgressBar
		orch.OnProgress(func(current, total int64, phase string) {
			if bar == nil && total > 0 {
				bar = progressbar.NewOptions64(total,
					progressbar.OptionSetDescription(phase),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
			}
			if bar != nil {
				_ = bar.Set64(current)
				if current >= total {
					_ = bar.Finish()
				}
			}
		})
	}

	path, err := orch.Sync(context.Background(), repoRoot, store, isNew)
	return path, summary, err
}

func chunkerConfigFromIndexing(ic IndexingConfig) chunker.Config {
	cfg := chunker.DefaultConfig()
	if ic.MaxChunkSize > 0 {
		cfg.MaxChunkSize = ic.MaxChunkSize
	}
	if ic.MinChunkSize > 0 {
		cfg.MinChunkSize = ic.MinChunkSize
	}
	if ic.FallbackLineSize > 0 {
		cfg.FallbackLineSize = ic.FallbackLineSize
	}
	if ic.FallbackOverlap > 0 {
		cfg.FallbackOverlap = ic.FallbackOverlap
	}
	return cfg
}

// repoRootFromConfigPath returns the repository root a config file governs:
// the directory containing the .idxsync directory that holds it.
func repoRootFromConfigPath(configPath string) (string, error) {
	resolved, err := resolvedConfigPath(configPath)
	if err != nil {
		return "", err
	}
	// resolved is <root>/.idxsync/project.yaml
	return filepath.Dir(filepath.Dir(resolved)), nil
}

func printSyncJSON(path syncclient.Path, summary wire.SyncSummary) {
	type result struct {
		Path string `json:"path"`
		wire.SyncSummary
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result{Path: string(path), SyncSummary: summary})
}

func printSyncHuman(path syncclient.Path, summary wire.SyncSummary) {
	ui.Header("Sync complete")
	fmt.Printf("%s %s\n", ui.Label("Path:"), path)
	fmt.Printf("%s    %s\n", ui.Label("Chunks:"), ui.CountText(summary.ChunksTotal))
	if summary.ChunksNeeded > 0 {
		fmt.Printf("%s    %s\n", ui.Label("Needed:"), ui.CountText(summary.ChunksNeeded))
	}
	if summary.ChunksCached > 0 {
		fmt.Printf("%s    %s\n", ui.Label("Cached:"), ui.CountText(summary.ChunksCached))
	}
	if summary.Message != "" {
		ui.Warning(summary.Message)
	}
}
