// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package syncclient drives the client-side half of sync: path selection
// over project state, two-phase HTTP sync, and per-sync progress
// reporting.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kraklabs/idxsync/pkg/wire"
)

// Client talks to a reconciler server's sync endpoints over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:8080"),
// with requestTimeout (30s when zero or negative) set as the HTTP client's
// overall per-request timeout.
func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: requestTimeout,
		},
	}
}

// HTTPError carries a non-2xx response's status and body, distinguishing
// server-side rejections from transport failures for the error policy.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}

func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Check calls POST /v1/index/check.
func (c *Client) Check(ctx context.Context, req wire.CheckRequest) (wire.CheckResponse, error) {
	var resp wire.CheckResponse
	err := c.post(ctx, "/v1/index/check", req, &resp)
	return resp, err
}

// Init calls POST /v1/index/init.
func (c *Client) Init(ctx context.Context, req wire.InitRequest) (wire.InitResponse, error) {
	var resp wire.InitResponse
	err := c.post(ctx, "/v1/index/init", req, &resp)
	return resp, err
}

// SyncPhase1 calls POST /v1/index/sync with phase=1.
func (c *Client) SyncPhase1(ctx context.Context, req wire.SyncPhase1Request) (wire.SyncPhase1Response, error) {
	req.Phase = 1
	var resp wire.SyncPhase1Response
	err := c.post(ctx, "/v1/index/sync", req, &resp)
	return resp, err
}

// SyncPhase2 calls POST /v1/index/sync with phase=2.
func (c *Client) SyncPhase2(ctx context.Context, req wire.SyncPhase2Request) (wire.SyncPhase2Response, error) {
	req.Phase = 2
	var resp wire.SyncPhase2Response
	err := c.post(ctx, "/v1/index/sync", req, &resp)
	return resp, err
}

// Search calls POST /v1/search.
func (c *Client) Search(ctx context.Context, req wire.SearchRequest) (wire.SearchResponse, error) {
	var resp wire.SearchResponse
	err := c.post(ctx, "/v1/search", req, &resp)
	return resp, err
}
