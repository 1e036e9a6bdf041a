// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig points an OllamaClient at a running Ollama instance, mirroring
// the OLLAMA_HOST/OLLAMA_EMBED_MODEL environment variables the teacher's
// server command reads at startup.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOllamaConfig returns the same base URL and embedding model the
// teacher's serve command defaults to absent an override.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "nomic-embed-text",
		Timeout: 20 * time.Second,
	}
}

// OllamaClient is an AIClient backed by Ollama's embeddings endpoint. Ollama
// embeds one prompt per call, so Process issues one request per chunk; the
// summary returned alongside each embedding is a cheap local truncation
// rather than a second model call, since the spec's AIResult only requires
// a short label, not a generated narrative.
type OllamaClient struct {
	cfg  OllamaConfig
	http *http.Client
}

// NewOllamaClient builds an OllamaClient. A zero-value Timeout falls back to
// DefaultOllamaConfig's.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaConfig().Timeout
	}
	return &OllamaClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Process satisfies AIClient. It stops and returns an error at the first
// request failure or context cancellation, per ctx's deadline; a partial
// result slice is never returned, matching the reconciler's length-mismatch
// check in its caller.
func (c *OllamaClient) Process(ctx context.Context, codes []string) ([]AIResult, error) {
	results := make([]AIResult, len(codes))
	for i, code := range codes {
		embedding, err := c.embed(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("ollama: embed chunk %d: %w", i, err)
		}
		results[i] = AIResult{Summary: summarize(code), Embedding: embedding}
	}
	return results, nil
}

func (c *OllamaClient) embed(ctx context.Context, code string) ([]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: c.cfg.Model, Prompt: code})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	embedding := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// summarize builds a short label for a chunk from its first non-blank line,
// since phase-2 needs a cheap Summary alongside the embedding and not every
// deployment configures a narrative-generating LLM.
func summarize(code string) string {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return ""
}
