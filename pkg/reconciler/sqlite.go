// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kraklabs/idxsync/pkg/wire"
)

// Store persists the server-side, tenant-scoped reconciliation state: the
// last-accepted merkle root per (userId, projectId), and which chunk hashes
// are already vectorized for that tenant. It replaces a Datalog-engine
// backing store with a plain relational schema, since the reconciler's
// queries are simple point lookups and upserts, not graph traversals.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the sqlite database at path,
// with a 5s busy timeout, WAL journaling, and a single open connection.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open reconciler store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping reconciler store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS project_roots (
	user_id    TEXT NOT NULL,
	project_id TEXT NOT NULL,
	merkle_root TEXT NOT NULL,
	updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, project_id)
);

CREATE TABLE IF NOT EXISTS tenant_chunks (
	user_id     TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	chunk_hash  TEXT NOT NULL,
	vector_id   TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	language_id TEXT NOT NULL DEFAULT '',
	line_start  INTEGER NOT NULL DEFAULT 0,
	line_end    INTEGER NOT NULL DEFAULT 0,
	char_count  INTEGER NOT NULL DEFAULT 0,
	file_path   TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, project_id, chunk_hash)
);

CREATE INDEX IF NOT EXISTS tenant_chunks_vector_id ON tenant_chunks (vector_id);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate reconciler store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// MerkleRoot returns the last-accepted root for (userID, projectID), or
// ("", false) if this tenant has never synced.
func (s *Store) MerkleRoot(userID, projectID string) (string, bool, error) {
	var root string
	err := s.db.QueryRow(
		`SELECT merkle_root FROM project_roots WHERE user_id = ? AND project_id = ?`,
		userID, projectID,
	).Scan(&root)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query merkle root: %w", err)
	}
	return root, true, nil
}

// SetMerkleRoot records root as the last-accepted root for this tenant.
// Concurrent writers from the same tenant do not serialize; last write
// wins, which is acceptable per the reconciler's ordering guarantees.
func (s *Store) SetMerkleRoot(userID, projectID, root string) error {
	_, err := s.db.Exec(
		`INSERT INTO project_roots (user_id, project_id, merkle_root, updated_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(user_id, project_id) DO UPDATE SET
		   merkle_root = excluded.merkle_root,
		   updated_at = excluded.updated_at`,
		userID, projectID, root,
	)
	if err != nil {
		return fmt.Errorf("set merkle root: %w", err)
	}
	return nil
}

// HasChunk reports whether (userID, projectID, chunkHash) already has a
// vector recorded.
func (s *Store) HasChunk(userID, projectID, chunkHash string) (bool, error) {
	var exists int
	err := s.db.QueryRow(
		`SELECT 1 FROM tenant_chunks WHERE user_id = ? AND project_id = ? AND chunk_hash = ?`,
		userID, projectID, chunkHash,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query tenant chunk: %w", err)
	}
	return true, nil
}

// RecordChunk marks chunkHash as vectorized for this tenant under vectorID,
// persisting meta and summary alongside so Search can serve them back
// without ever trusting the vector ID's tenant prefix.
func (s *Store) RecordChunk(userID, projectID, chunkHash, vectorID string, meta wire.ChunkMetadata, summary string) error {
	_, err := s.db.Exec(
		`INSERT INTO tenant_chunks (user_id, project_id, chunk_hash, vector_id, kind, name, language_id, line_start, line_end, char_count, file_path, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, project_id, chunk_hash) DO UPDATE SET
		   vector_id = excluded.vector_id,
		   kind = excluded.kind,
		   name = excluded.name,
		   language_id = excluded.language_id,
		   line_start = excluded.line_start,
		   line_end = excluded.line_end,
		   char_count = excluded.char_count,
		   file_path = excluded.file_path,
		   summary = excluded.summary`,
		userID, projectID, chunkHash, vectorID,
		meta.Kind, meta.Name, meta.LanguageID, meta.Lines[0], meta.Lines[1], meta.CharCount, meta.FilePath, summary,
	)
	if err != nil {
		return fmt.Errorf("record tenant chunk: %w", err)
	}
	return nil
}

// TenantChunkRecord is the tenant identity and chunk metadata recorded
// alongside a vector. ChunkByVectorID is the authoritative source Search
// consults to verify a candidate actually belongs to the requesting
// tenant: the vector ID's short prefix is only a distribution hint (see
// VectorStore.Search) and is never trusted on its own.
type TenantChunkRecord struct {
	UserID    string
	ProjectID string
	Summary   string
	Metadata  wire.ChunkMetadata
}

// ChunkByVectorID looks up the tenant identity and metadata recorded for
// vectorID, returning (zero, false, nil) if nothing was ever recorded
// under that ID.
func (s *Store) ChunkByVectorID(vectorID string) (TenantChunkRecord, bool, error) {
	var rec TenantChunkRecord
	var lineStart, lineEnd int
	err := s.db.QueryRow(
		`SELECT user_id, project_id, chunk_hash, kind, name, language_id, line_start, line_end, char_count, file_path, summary
		 FROM tenant_chunks WHERE vector_id = ? LIMIT 1`,
		vectorID,
	).Scan(&rec.UserID, &rec.ProjectID, &rec.Metadata.Hash, &rec.Metadata.Kind, &rec.Metadata.Name,
		&rec.Metadata.LanguageID, &lineStart, &lineEnd, &rec.Metadata.CharCount, &rec.Metadata.FilePath, &rec.Summary)
	if err == sql.ErrNoRows {
		return TenantChunkRecord{}, false, nil
	}
	if err != nil {
		return TenantChunkRecord{}, false, fmt.Errorf("query chunk by vector id: %w", err)
	}
	rec.Metadata.Lines = [2]int{lineStart, lineEnd}
	return rec, true, nil
}

// TenantChunkCount returns how many distinct chunk hashes are recorded for
// this tenant.
func (s *Store) TenantChunkCount(userID, projectID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM tenant_chunks WHERE user_id = ? AND project_id = ?`,
		userID, projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tenant chunks: %w", err)
	}
	return count, nil
}
