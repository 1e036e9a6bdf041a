// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"bytes"

	"github.com/kraklabs/idxsync/pkg/hasher"
)

// fallbackChunk segments source into overlapping line windows, used when
// no grammar is loaded for languageID or parsing failed. Each window steps
// by (FallbackLineSize - FallbackOverlap) lines and is tagged
// kind=block, metadata.fallback=true.
func fallbackChunk(source []byte, languageID, relativePath string, cfg Config) []Chunk {
	lines := splitLinesKeepOffsets(source)
	if len(lines) == 0 {
		return nil
	}

	windowSize := cfg.FallbackLineSize
	if windowSize <= 0 {
		windowSize = 50
	}
	step := windowSize - cfg.FallbackOverlap
	if step <= 0 {
		step = windowSize
	}

	var chunks []Chunk
	for i := 0; i < len(lines); i += step {
		end := i + windowSize
		if end > len(lines) {
			end = len(lines)
		}

		charStart := lines[i].start
		charEnd := lines[end-1].end
		start, stop := trimRange(source, charStart, charEnd)
		if stop-start < cfg.MinChunkSize {
			if end == len(lines) {
				break
			}
			continue
		}

		chunks = append(chunks, Chunk{
			Hash:       hasher.ContentDigest(source[start:stop]),
			Kind:       KindBlock,
			LanguageID: languageID,
			Reference: Reference{
				RelativePath: relativePath,
				LineStart:    i + 1,
				LineEnd:      end,
				CharStart:    start,
				CharEnd:      stop,
			},
			CharCount: stop - start,
			Metadata:  Metadata{Fallback: true},
		})

		if end == len(lines) {
			break
		}
	}
	return chunks
}

type lineSpan struct {
	start, end int // byte offsets, end exclusive of the newline
}

func splitLinesKeepOffsets(source []byte) []lineSpan {
	var spans []lineSpan
	start := 0
	for {
		idx := bytes.IndexByte(source[start:], '\n')
		if idx == -1 {
			if start < len(source) {
				spans = append(spans, lineSpan{start: start, end: len(source)})
			}
			break
		}
		spans = append(spans, lineSpan{start: start, end: start + idx})
		start += idx + 1
	}
	return spans
}
