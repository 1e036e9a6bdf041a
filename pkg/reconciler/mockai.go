// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"context"

	"github.com/kraklabs/idxsync/pkg/hasher"
)

// MockAIClient is the "mock" embedding provider named alongside "ollama",
// "nomic" and "openai" in the teacher's embedding-provider configuration.
// It derives a deterministic, content-addressed pseudo-embedding from each
// chunk's hash instead of calling an external model, so a deployment can
// exercise the full sync and search path with no network dependency.
type MockAIClient struct {
	Dimensions int
}

// NewMockAIClient builds a MockAIClient producing vectors of the given width.
func NewMockAIClient(dimensions int) *MockAIClient {
	return &MockAIClient{Dimensions: dimensions}
}

// Process satisfies AIClient.
func (m *MockAIClient) Process(_ context.Context, codes []string) ([]AIResult, error) {
	results := make([]AIResult, len(codes))
	for i, code := range codes {
		results[i] = AIResult{
			Summary:   summarize(code),
			Embedding: deterministicVector(code, m.Dimensions),
		}
	}
	return results, nil
}

// deterministicVector expands a chunk's content digest into a unit-ish
// vector by repeating its bytes, remapped from [0,255] to [-1,1].
func deterministicVector(code string, dims int) []float32 {
	digest := hasher.ContentDigest([]byte(code))
	v := make([]float32, dims)
	for i := range v {
		b := digest[i%len(digest)]
		v[i] = float32(b)/127.5 - 1
	}
	return v
}
