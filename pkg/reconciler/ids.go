// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import "github.com/kraklabs/idxsync/pkg/hasher"

// Composite vector ID layout: shortUserId(8) + "_" + shortProjectId(8) +
// "_" + shortChunkHash(24), giving tenant-scoped uniqueness inside a
// 64-byte identifier budget (8+1+8+1+24 = 42 bytes used).
const (
	shortUserIDLen    = 8
	shortProjectIDLen = 8
	shortChunkHashLen = 24
)

// VectorID builds the composite, tenant-scoped vector store ID for a chunk
// belonging to (userID, projectID) with content hash chunkHash.
func VectorID(userID, projectID string, chunkHash hasher.Digest) string {
	return vectorIDFromHex(userID, projectID, chunkHash.String())
}

// TenantPrefix builds the ID prefix identifying all vectors belonging to
// (userID, projectID), for use as a post-hoc Search filter.
func TenantPrefix(userID, projectID string) string {
	return shorten(userID, shortUserIDLen) + "_" + shorten(projectID, shortProjectIDLen) + "_"
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
