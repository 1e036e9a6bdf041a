// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/idxsync/pkg/metrics"
	"github.com/kraklabs/idxsync/pkg/reconciler"
)

// serveFlags holds configuration for the serve command.
type serveFlags struct {
	port string
}

// runServe starts the reconciler server: the stateless-per-request core
// behind the sync wire protocol, backed by a relational merkle-root store,
// a tenant-scoped vector store, a content-addressed embedding cache, and
// whichever AI client the configured embedding provider names.
func runServe(args []string, configPath string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.String("port", "", "Port to listen on (default: $IDXSYNC_SERVE_PORT or 8090)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: idxsync serve [options]

Description:
  Run a reconciler server exposing the sync wire protocol over HTTP.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	f := serveFlags{port: *port}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if f.port == "" {
		f.port = getEnv("IDXSYNC_SERVE_PORT", "8090")
	}

	dataDir, err := dataRootFromConfig(cfg, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create data directory %s: %v\n", dataDir, err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	store, err := reconciler.OpenStore(filepath.Join(dataDir, "reconciler.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open reconciler store: %v\n", err)
		return 1
	}

	ai := aiClientFromConfig(cfg.Embedding)

	vectors := reconciler.NewVectorStore(reconciler.VectorStoreConfig{
		Dimensions: cfg.Embedding.Dimensions,
		M:          16,
		EfSearch:   64,
	})

	cache := reconciler.NewEmbeddingCache(10 * 24 * time.Hour)

	rcfg := reconciler.DefaultConfig()
	rcfg.EmbeddingWidth = cfg.Embedding.Dimensions

	rec := reconciler.New(rcfg, cache, vectors, store, ai, logger)

	reg := metrics.New(prometheus.DefaultRegisterer)
	srv := reconciler.NewServer(rec, logger, nil).WithMetrics(reg)

	server := &http.Server{
		Addr:              ":" + f.port,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down idxsync server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	log.Printf("idxsync server starting on http://0.0.0.0:%s", f.port)
	log.Printf("Data dir: %s", dataDir)
	log.Printf("Embedding provider: %s", cfg.Embedding.Provider)
	log.Println("")
	log.Println("API Endpoints:")
	log.Println("  GET  /v1/health         - Health check")
	log.Println("  POST /v1/index/init     - Initialize a project")
	log.Println("  POST /v1/index/check    - Check merkle root against server state")
	log.Println("  POST /v1/index/sync     - Two-phase sync (phase=1 or phase=2)")
	log.Println("  POST /v1/search         - Vector similarity search")
	log.Println("  GET  /metrics           - Prometheus metrics")
	log.Println("")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// aiClientFromConfig selects the concrete AIClient implementation named by
// the embedding provider. Unrecognized providers fall back to the mock
// client so serve always starts, even with a misconfigured provider name.
func aiClientFromConfig(ec EmbeddingConfig) reconciler.AIClient {
	dims := ec.Dimensions
	if dims <= 0 {
		dims = 768
	}
	switch ec.Provider {
	case "mock":
		return reconciler.NewMockAIClient(dims)
	case "ollama", "":
		occfg := reconciler.DefaultOllamaConfig()
		if ec.BaseURL != "" {
			occfg.BaseURL = ec.BaseURL
		}
		if ec.Model != "" {
			occfg.Model = ec.Model
		}
		return reconciler.NewOllamaClient(occfg)
	default:
		return reconciler.NewMockAIClient(dims)
	}
}
