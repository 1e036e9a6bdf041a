// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAIClient_Deterministic(t *testing.T) {
	m := NewMockAIClient(8)

	first, err := m.Process(context.Background(), []string{"func a() {}"})
	require.NoError(t, err)
	second, err := m.Process(context.Background(), []string{"func a() {}"})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Embedding, second[0].Embedding)
	assert.Equal(t, first[0].Summary, second[0].Summary)
}

func TestMockAIClient_DistinctInputsDiffer(t *testing.T) {
	m := NewMockAIClient(8)

	out, err := m.Process(context.Background(), []string{"func a() {}", "func b() {}"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].Embedding, out[1].Embedding)
}

func TestMockAIClient_EmbeddingWidth(t *testing.T) {
	m := NewMockAIClient(16)

	out, err := m.Process(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Embedding, 16)
	assert.False(t, ZeroVector(out[0].Embedding))
}

func TestMockAIClient_SummaryIsFirstLine(t *testing.T) {
	m := NewMockAIClient(4)

	out, err := m.Process(context.Background(), []string{"\n\n  func greet() {\n  return\n}"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "func greet() {", out[0].Summary)
}
