// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package hasher

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDigestMatchesConcatenation(t *testing.T) {
	content := []byte("export function f(){return 1}")
	got := FileDigest("a.ts", content)

	want := sha256.Sum256(append([]byte("a.ts"), content...))
	assert.Equal(t, Digest(want), got)
}

func TestFileDigestStableAcrossRuns(t *testing.T) {
	content := []byte("package main\n")
	a := FileDigest("main.go", content)
	b := FileDigest("main.go", content)
	assert.Equal(t, a, b)
}

func TestFileDigestDistinctForSameContentDifferentPath(t *testing.T) {
	content := []byte("identical body")
	a := FileDigest("a.ts", content)
	b := FileDigest("b.ts", content)
	assert.NotEqual(t, a, b)
}

func TestContentDigestIgnoresPath(t *testing.T) {
	content := []byte("identical body")
	a := ContentDigest(content)
	b := Digest(sha256.Sum256(content))
	assert.Equal(t, a, b)
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := ContentDigest([]byte("hello"))
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseDigestRejectsWrongLength(t *testing.T) {
	_, err := ParseDigest("deadbeef")
	assert.Error(t, err)
}

func TestCombineOrderMatters(t *testing.T) {
	l := ContentDigest([]byte("left"))
	r := ContentDigest([]byte("right"))
	assert.NotEqual(t, Combine(l, r), Combine(r, l))
}

func TestEmptyDigestIsZero(t *testing.T) {
	assert.True(t, Empty.IsZero())
	assert.False(t, ContentDigest([]byte("x")).IsZero())
}
