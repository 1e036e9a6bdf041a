// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/idxsync/internal/errors"
	"github.com/kraklabs/idxsync/internal/ui"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
	"github.com/kraklabs/idxsync/pkg/project"
	"github.com/kraklabs/idxsync/pkg/syncclient"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// StatusResult is the project status reported in both text and JSON form.
type StatusResult struct {
	ProjectID     string    `json:"project_id"`
	DataDir       string    `json:"data_dir"`
	LocalRoot     string    `json:"local_root"`
	ServerRoot    string    `json:"server_root,omitempty"`
	InSync        bool      `json:"in_sync"`
	DirtyCount    int       `json:"dirty_count"`
	LastSync      time.Time `json:"last_sync,omitempty"`
	LeafCount     int       `json:"leaf_count"`
	ServerUnknown bool      `json:"server_unreachable,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command: it always reports local
// Merkle/dirty-queue state, and additionally queries the reconciler
// server's root when it is reachable, mirroring the local/remote split
// the teacher's own status command makes over an edge-cache URL.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: idxsync status [options]

Description:
  Show the project's local Merkle root, dirty-file count, and whether
  the last-known server root matches it.

Examples:
  idxsync status
  idxsync status --json

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

	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	result := &StatusResult{ProjectID: cfg.ProjectID, DataDir: dataDir, Timestamp: time.Now()}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		result.ServerUnknown = true
		if globals.JSON {
			outputStatusJSON(result)
		} else {
			ui.Warningf("Project '%s' has not synced yet.", cfg.ProjectID)
			ui.Info("Run 'idxsync sync' to sync the repository.")
		}
		return
	}

	store, _, err := project.LoadOrCreate(dataDir)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open local project state",
			fmt.Sprintf("Failed to load state in %s", dataDir),
			"Run 'idxsync reset --yes' to rebuild the index",
			err,
		), globals.JSON)
	}

	store.WithState(func(tree *merkle.Tree, queue *dirtyqueue.Queue) {
		result.LocalRoot = merkle.WireRoot(tree.Root())
		result.LeafCount = len(tree.Leaves())
		paths, lastSync := queue.Snapshot()
		result.DirtyCount = len(paths)
		result.LastSync = lastSync
	})

	client := syncclient.NewClient(cfg.Server.BaseURL, 5*time.Second)
	checkResp, checkErr := client.Check(context.Background(), wire.CheckRequest{
		ProjectID:  store.ProjectID(),
		MerkleRoot: result.LocalRoot,
	})
	if checkErr != nil {
		result.ServerUnknown = true
	} else {
		result.ServerRoot = checkResp.ServerRoot
		result.InSync = !checkResp.Changed
	}

	if globals.JSON {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result, cfg.Server.BaseURL)
	}
}

func outputStatusJSON(result *StatusResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func printLocalStatus(result *StatusResult, serverURL string) {
	ui.Header("idxsync Project Status")
	fmt.Printf("%s    %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s      %s\n", ui.Label("Data Dir:"), ui.DimText(result.DataDir))
	fmt.Printf("%s      %s\n", ui.Label("Server:"), ui.DimText(serverURL))
	fmt.Println()

	ui.SubHeader("Merkle State:")
	fmt.Printf("  Local root:    %s\n", ui.DimText(result.LocalRoot))
	fmt.Printf("  Tracked files: %s\n", ui.CountText(result.LeafCount))
	fmt.Printf("  Dirty files:   %s\n", ui.CountText(result.DirtyCount))

	fmt.Println()
	if result.ServerUnknown {
		ui.Warning("Could not reach the reconciler server to check remote state.")
		return
	}
	if result.InSync {
		ui.Success("In sync with server.")
	} else {
		ui.Warning("Out of sync with server. Run 'idxsync sync' to reconcile.")
	}
}
