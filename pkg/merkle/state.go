// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package merkle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/idxsync/pkg/hasher"
)

// StateFileName is the file persisted inside the project config directory.
const StateFileName = "merkle-state.json"

// persistedLeaf is the on-disk shape of a Leaf: the digest is hex-encoded
// so the file is human-readable and diff-friendly.
type persistedLeaf struct {
	RelativePath string `json:"relativePath"`
	Hash         string `json:"hash"`
}

// State is the serialized form of a Tree plus its root and the time it was
// last written.
type State struct {
	Root      string          `json:"root"`
	Leaves    []persistedLeaf `json:"leaves"`
	Timestamp time.Time       `json:"timestamp"`
}

// Snapshot captures the tree's current leaves and root for persistence.
func Snapshot(t *Tree) State {
	leaves := t.Leaves()
	out := make([]persistedLeaf, len(leaves))
	for i, l := range leaves {
		out[i] = persistedLeaf{RelativePath: l.RelativePath, Hash: l.FileHash.String()}
	}
	return State{Root: WireRoot(t.Root()), Leaves: out, Timestamp: time.Now()}
}

// Restore rebuilds a Tree from a loaded State.
func Restore(s State) (*Tree, error) {
	leaves := make([]Leaf, len(s.Leaves))
	for i, pl := range s.Leaves {
		d, err := hasher.ParseDigest(pl.Hash)
		if err != nil {
			return nil, fmt.Errorf("merkle: decode leaf %s: %w", pl.RelativePath, err)
		}
		leaves[i] = Leaf{RelativePath: pl.RelativePath, FileHash: d}
	}
	return FromLeaves(leaves), nil
}

// Load reads and decodes the merkle state file from dir. A missing file is
// reported as os.ErrNotExist so callers can distinguish "no state yet" from
// a corrupt file.
func Load(dir string) (State, error) {
	var s State
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("merkle: parse %s: %w", StateFileName, err)
	}
	return s, nil
}

// Save atomically persists state to dir: write to a temp file in the same
// directory, then rename over the target so a crash mid-write never leaves
// a torn file.
func Save(dir string, s State) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("merkle: create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("merkle: encode state: %w", err)
	}
	target := filepath.Join(dir, StateFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("merkle: write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("merkle: rename into place: %w", err)
	}
	return nil
}
