// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import "github.com/kraklabs/idxsync/pkg/hasher"

// fillGaps walks the already-sorted, non-overlapping chunk list and emits
// a kind=block, metadata.gapFill=true chunk for any trimmed byte range
// between consecutive chunks (and after the last one) that meets
// MinChunkSize. Gap fragments below the threshold are silently dropped.
func fillGaps(source []byte, languageID, relativePath string, cfg Config, chunks []Chunk) []Chunk {
	out := make([]Chunk, 0, len(chunks)*2)
	cursor := 0

	emitGap := func(from, to int) {
		start, end := trimRange(source, from, to)
		if end-start < cfg.MinChunkSize {
			return
		}
		lineStart, lineEnd := lineRange(source, start, end)
		out = append(out, Chunk{
			Hash:       hasher.ContentDigest(source[start:end]),
			Kind:       KindBlock,
			LanguageID: languageID,
			Reference: Reference{
				RelativePath: relativePath,
				LineStart:    lineStart,
				LineEnd:      lineEnd,
				CharStart:    start,
				CharEnd:      end,
			},
			CharCount: end - start,
			Metadata:  Metadata{GapFill: true},
		})
	}

	for _, c := range chunks {
		if c.Reference.CharStart > cursor {
			emitGap(cursor, c.Reference.CharStart)
		}
		out = append(out, c)
		if c.Reference.CharEnd > cursor {
			cursor = c.Reference.CharEnd
		}
	}
	if cursor < len(source) {
		emitGap(cursor, len(source))
	}

	return out
}
