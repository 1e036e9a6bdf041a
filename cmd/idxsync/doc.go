// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the idxsync CLI: the client-side half of an
// incremental, content-addressed code indexer.
//
// idxsync keeps a local Merkle tree and dirty-file queue over a
// repository, and reconciles them against a server over a two-phase
// sync protocol: a metadata-only check that finds which chunks the
// server is missing, then a code-carrying phase that uploads only those
// chunks.
//
// # Quick Start
//
// Initialize a new project in your repository:
//
//	cd /path/to/your/project
//	idxsync init
//
// Run one sync cycle:
//
//	idxsync sync
//
// Watch the repository and sync continuously on change:
//
//	idxsync watch
//
// Check sync status against the server:
//
//	idxsync status
//
// Run a local reconciler server (useful for development, without a
// remote deployment):
//
//	idxsync serve
//
// # Commands
//
//	init        Create .idxsync/project.yaml configuration
//	sync        Run one sync cycle against the server
//	watch       Watch the repository and sync on change, with debounce
//	status      Show project sync status
//	serve       Run a reconciler server
//	reset       Delete local project state (destructive!)
//	completion  Generate shell completion script (bash|zsh|fish)
//
// # Configuration
//
// Configuration lives in .idxsync/project.yaml, created by 'idxsync
// init'. Environment variables can override individual fields without
// editing the file: IDXSYNC_BASE_URL, IDXSYNC_PROJECT_ID,
// IDXSYNC_CONFIG_PATH, IDXSYNC_DATA_DIR, OLLAMA_HOST, and
// OLLAMA_EMBED_MODEL.
//
// # Local State
//
// Local project state (the Merkle tree and dirty queue) lives under
// ~/.idxsync/data/<project_id>/ by default, overridable via
// IDXSYNC_DATA_DIR or indexing.local_data_dir in the config file.
package main
