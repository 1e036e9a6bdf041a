// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackLineWindowsMatchSeedScenario(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 220; i++ {
		b.WriteString("line content that is definitely long enough to not be trimmed away\n")
	}
	src := []byte(b.String())

	cfg := Config{MinChunkSize: 5, FallbackLineSize: 50, FallbackOverlap: 10}
	chunks := Chunk(src, "xyz", "f.xyz", cfg)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, c.Metadata.Fallback)
		assert.Equal(t, KindBlock, c.Kind)
	}
	assert.Equal(t, 1, chunks[0].Reference.LineStart)

	wantRanges := [][2]int{{1, 50}, {41, 90}, {81, 130}, {121, 170}, {161, 210}, {201, 220}}
	require.Len(t, chunks, len(wantRanges))
	for i, want := range wantRanges {
		assert.Equal(t, want[0], chunks[i].Reference.LineStart)
		assert.Equal(t, want[1], chunks[i].Reference.LineEnd)
	}
}

func TestChunksDoNotOverlap(t *testing.T) {
	src := []byte("package main\n\nfunc A() {\n\treturn\n}\n\nfunc B() {\n\treturn\n}\n")
	cfg := Config{MaxChunkSize: 8000, MinChunkSize: 1, FallbackLineSize: 50, FallbackOverlap: 10}
	chunks := Chunk(src, "go", "x.go", cfg)
	require.NotEmpty(t, chunks)

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].Reference.CharEnd, chunks[i].Reference.CharStart,
			"chunks must not overlap")
	}
}

func TestGoFunctionChunkHasNameAndExportedFlag(t *testing.T) {
	src := []byte("package main\n\nfunc Exported(a int, b string) error {\n\treturn nil\n}\n")
	cfg := DefaultConfig()
	chunks := Chunk(src, "go", "x.go", cfg)

	var found bool
	for _, c := range chunks {
		if c.Kind == KindFunction && c.Name == "Exported" {
			found = true
			assert.True(t, c.Metadata.Exported)
		}
	}
	assert.True(t, found, "expected to find an Exported function chunk")
}

func TestUnknownLanguageFallsBackImmediately(t *testing.T) {
	src := []byte(strings.Repeat("some line of unrecognized language\n", 10))
	cfg := DefaultConfig()
	chunks := Chunk(src, "cobol", "x.cbl", cfg)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[0].Metadata.Fallback)
}
