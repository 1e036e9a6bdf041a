// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package project persists project identity (projectId, createdAt) plus
// the Merkle and dirty-queue state in one project state directory, the way
// the teacher's ManifestManager persists a project manifest. The directory
// is the one the caller opens the store on; the package does not place it
// at the project root itself (the idxsync CLI uses a per-project directory
// under its data root, ~/.idxsync/data/<project_id> by default).
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kraklabs/idxsync/pkg/dirtyqueue"
	"github.com/kraklabs/idxsync/pkg/merkle"
)

// ConfigFileName is the identity file persisted alongside merkle-state.json
// and dirty-queue.json.
const ConfigFileName = "project.json"

// Config is the minimal persisted project identity.
type Config struct {
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store owns the on-disk project directory and the live Merkle tree and
// dirty queue built from it. A single mutex covers all three so that
// filesystem-event handling and sync never race on the persisted state,
// per the concurrency model: network I/O must never be performed while
// this lock is held.
type Store struct {
	dir string

	mu     sync.Mutex
	config Config
	tree   *merkle.Tree
	queue  *dirtyqueue.Queue
}

// Dir returns the hidden project directory this store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// IsNew reports whether the store's directory had no persisted project.json
// when it was opened (i.e. LoadOrCreate generated a fresh identity).
func IsNew(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return os.IsNotExist(err)
}

// LoadOrCreate opens the project store rooted at dir, creating dir and a
// fresh UUIDv4 project identity if no project.json exists yet. The Merkle
// tree and dirty queue are loaded from their sibling files if present, or
// start empty.
func LoadOrCreate(dir string) (*Store, bool, error) {
	isNew := IsNew(dir)

	s := &Store{dir: dir}

	if isNew {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, false, fmt.Errorf("project: create %s: %w", dir, err)
		}
		s.config = Config{ProjectID: uuid.NewString(), CreatedAt: time.Now()}
		s.tree = merkle.New()
		s.queue = dirtyqueue.New()
		if err := s.saveLocked(); err != nil {
			return nil, false, err
		}
		return s, true, nil
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, false, fmt.Errorf("project: load %s: %w", ConfigFileName, err)
	}
	s.config = cfg

	if state, err := merkle.Load(dir); err == nil {
		tree, err := merkle.Restore(state)
		if err != nil {
			return nil, false, err
		}
		s.tree = tree
	} else {
		s.tree = merkle.New()
	}

	if q, err := dirtyqueue.Load(dir); err == nil {
		s.queue = q
	} else {
		s.queue = dirtyqueue.New()
	}

	return s, false, nil
}

func loadConfig(dir string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}

// ProjectID returns the persisted project identity.
func (s *Store) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.ProjectID
}

// WithState runs fn holding the store's mutex, giving it access to the
// live tree and queue. fn must not perform blocking network I/O: the lock
// it holds also guards filesystem-event handling.
func (s *Store) WithState(fn func(tree *merkle.Tree, queue *dirtyqueue.Queue)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tree, s.queue)
}

// Save persists config, tree, and queue atomically (one file each).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("project: create %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return fmt.Errorf("project: encode config: %w", err)
	}
	target := filepath.Join(s.dir, ConfigFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("project: write temp config: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("project: rename config into place: %w", err)
	}
	if err := merkle.Save(s.dir, merkle.Snapshot(s.tree)); err != nil {
		return err
	}
	return dirtyqueue.Save(s.dir, s.queue)
}
