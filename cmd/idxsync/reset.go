// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/idxsync/internal/errors"
	"github.com/kraklabs/idxsync/internal/ui"
)

// runReset executes the 'reset' CLI command, deleting all local project
// state: the Merkle tree, dirty queue, and project ID marker.
func runReset(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: idxsync reset [options]

Description:
  WARNING: This is a destructive operation that deletes all locally
  tracked project state: the Merkle tree, the dirty-file queue, and the
  project ID marker (default: ~/.idxsync/data/<project_id>/).

  Use this if local state is corrupted or you want to force a full
  reinitialization on the next sync.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  idxsync reset --yes

Notes:
  This only affects local state. Configuration (.idxsync/project.yaml)
  and server-side data are not touched.

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm {
		errors.FatalError(errors.NewInputError(
			"Confirmation required",
			"The --yes flag is required to confirm this destructive operation",
			"Run 'idxsync reset --yes' to confirm that you want to delete local project state",
		), globals.JSON)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		dataDir, rootErr := dataRootFromConfig(nil, configPath)
		if rootErr != nil {
			errors.FatalError(rootErr, globals.JSON)
		}
		if err := os.RemoveAll(dataDir); err != nil {
			ui.Warningf("Failed to remove data directory: %v", err)
		}
		ui.Success("idxsync local state reset complete")
		return
	}

	dataDir, err := projectDataDir(cfg, configPath)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "No local state found for project %s\n", cfg.ProjectID)
		return
	}

	fmt.Printf("Resetting project %s (deleting %s)...\n", cfg.ProjectID, dataDir)

	if err := os.RemoveAll(dataDir); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot delete data directory",
			fmt.Sprintf("Failed to remove %s - permission denied or file locked", dataDir),
			"Check directory permissions, ensure no other idxsync processes are running, and try again",
			err,
		), globals.JSON)
	}

	ui.Success("Reset complete. All local project state has been deleted.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  idxsync sync    Reinitialize and sync the project")
}
