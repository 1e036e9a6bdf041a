// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconciler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/idxsync/pkg/metrics"
	"github.com/kraklabs/idxsync/pkg/wire"
)

// ServerVersion is reported on the health endpoint.
const ServerVersion = "0.1.0"

// Server exposes a Reconciler over the sync wire protocol. Handlers are
// stateless per-request over the Reconciler's shared stores; the server
// itself holds no per-tenant state.
type Server struct {
	reconciler *Reconciler
	logger     *slog.Logger
	userIDOf   func(*http.Request) string
	metrics    *metrics.Registry
}

// NewServer builds a Server. userIDOf extracts the caller's tenant user ID
// from the request (e.g. a header or auth token); passing nil defaults to
// a fixed "local" user, appropriate for single-tenant local deployments.
func NewServer(r *Reconciler, logger *slog.Logger, userIDOf func(*http.Request) string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if userIDOf == nil {
		userIDOf = func(*http.Request) string { return "local" }
	}
	return &Server{reconciler: r, logger: logger, userIDOf: userIDOf}
}

// WithMetrics attaches a Prometheus registry: every route is wrapped with
// request-count and duration instrumentation, and /metrics is mounted on
// the returned Server's Mux. It also hands the same registry to the
// underlying Reconciler so cache/AI outcome counters are recorded.
func (s *Server) WithMetrics(m *metrics.Registry) *Server {
	s.metrics = m
	s.reconciler.SetMetrics(m)
	return s
}

// Mux builds the HTTP routing table for the sync protocol.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/v1/health":      s.handleHealth,
		"/v1/index/init":  s.handleInit,
		"/v1/index/check": s.handleCheck,
		"/v1/index/sync":  s.handleSync,
		"/v1/search":      s.handleSearch,
	}
	for path, handler := range routes {
		if s.metrics != nil {
			handler = s.metrics.InstrumentRoute(path, handler)
		}
		mux.HandleFunc(path, handler)
	}
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   ServerVersion,
	})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var req wire.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := s.reconciler.Init(r.Context(), s.userIDOf(r), req)
	if err != nil {
		s.logger.Error("init failed", "projectId", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var req wire.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := s.reconciler.Check(s.userIDOf(r), req)
	if err != nil {
		s.logger.Error("check failed", "projectId", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var probe struct {
		Phase int `json:"phase"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	userID := s.userIDOf(r)
	switch probe.Phase {
	case 1:
		var req wire.SyncPhase1Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		resp, err := s.reconciler.Phase1(userID, req)
		if err != nil {
			s.logger.Error("phase1 failed", "projectId", req.ProjectID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case 2:
		var req wire.SyncPhase2Request
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		resp, err := s.reconciler.Phase2(r.Context(), userID, req)
		if err != nil {
			s.logger.Error("phase2 failed", "projectId", req.ProjectID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "phase must be 1 or 2")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported")
		return
	}
	var req wire.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	start := time.Now()
	resp, err := s.reconciler.Search(r.Context(), s.userIDOf(r), req)
	if err != nil {
		s.logger.Error("search failed", "projectId", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	resp.TookMs = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, wire.ErrorEnvelope{Error: code, Message: message})
}
