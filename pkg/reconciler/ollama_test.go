// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	cases := []struct {
		name string
		code string
		want string
	}{
		{"first non-blank line", "\n\n  func greet() {\n  return\n}", "func greet() {"},
		{"all blank", "\n\n  \n", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, summarize(tc.code))
		})
	}

	long := ""
	for i := 0; i < 200; i++ {
		long += "a"
	}
	assert.Len(t, summarize(long), 120)
}

func TestOllamaClient_Process(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.BaseURL = server.URL
	client := NewOllamaClient(cfg)

	out, err := client.Process(context.Background(), []string{"func greet() {}"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "func greet() {}", out[0].Summary)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, toFloat64(out[0].Embedding), 1e-6)
}

func TestOllamaClient_Process_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.BaseURL = server.URL
	client := NewOllamaClient(cfg)

	_, err := client.Process(context.Background(), []string{"code"})
	require.Error(t, err)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
