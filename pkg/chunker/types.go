// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chunker turns a source file into an ordered, gap-free list of
// semantic chunks: AST-guided when a grammar is available, falling back to
// size-bounded line windows otherwise.
package chunker

import "github.com/kraklabs/idxsync/pkg/hasher"

// Kind classifies what a chunk's underlying AST node represents.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindEnum      Kind = "enum"
	KindStruct    Kind = "struct"
	KindImpl      Kind = "impl"
	KindTrait     Kind = "trait"
	KindBlock     Kind = "block"
)

// Reference locates a chunk within its source file. Lines are 1-indexed
// and the range is end-inclusive; character offsets are 0-indexed byte
// offsets into the file and the range is end-exclusive.
type Reference struct {
	RelativePath string `json:"relativePath"`
	LineStart    int    `json:"lineStart"`
	LineEnd      int    `json:"lineEnd"`
	CharStart    int    `json:"charStart"`
	CharEnd      int    `json:"charEnd"`
}

// Metadata carries the optional, kind-dependent details extracted for a
// chunk. Zero values mean "not applicable/not extracted," not "false."
type Metadata struct {
	Parent     string   `json:"parent,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
	ReturnType string   `json:"returnType,omitempty"`
	Async      bool     `json:"async,omitempty"`
	Exported   bool     `json:"exported,omitempty"`
	GapFill    bool     `json:"gapFill,omitempty"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// Chunk is an immutable, content-addressed segment of a source file. The
// chunk text itself is not retained after Hash is computed, per the
// "chunk text is not retained after hashing" invariant.
type Chunk struct {
	Hash       hasher.Digest `json:"hash"`
	Kind       Kind          `json:"kind"`
	Name       string        `json:"name,omitempty"`
	LanguageID string        `json:"languageId"`
	Reference  Reference     `json:"reference"`
	CharCount  int           `json:"charCount"`
	Metadata   Metadata      `json:"metadata,omitempty"`
}

// Config tunes the chunking algorithm.
type Config struct {
	// MaxChunkSize is the upper bound on a chunk's character count; larger
	// AST nodes are subdivided into their semantic-unit children, and an
	// oversized node with no qualifying child is emitted whole.
	MaxChunkSize int
	// MinChunkSize is the lower bound: chunks shorter than this (after
	// trimming) are dropped, and gap fragments shorter than this are
	// silently skipped.
	MinChunkSize int
	// FallbackLineSize is the number of lines per chunk when AST parsing
	// is unavailable.
	FallbackLineSize int
	// FallbackOverlap is the number of overlapping lines between
	// successive fallback chunks.
	FallbackOverlap int
}

// DefaultConfig returns reasonable production defaults.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:     8000,
		MinChunkSize:     20,
		FallbackLineSize: 50,
		FallbackOverlap:  10,
	}
}
