// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics holds the reconciler's Prometheus collectors and the
// HTTP middleware that drives them, exposed on a dedicated /metrics
// endpoint the way the teacher's indexing command starts one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the reconciler emits. A single
// instance is built at server startup and shared across all requests;
// handlers never register their own collectors.
type Registry struct {
	SyncRequestsTotal  *prometheus.CounterVec
	PhaseDuration      *prometheus.HistogramVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	AITimeoutsTotal    prometheus.Counter
	AIMismatchesTotal  prometheus.Counter
	VectorsStoredTotal prometheus.Counter
}

// New registers and returns a Registry against reg. Passing
// prometheus.DefaultRegisterer matches the teacher's promhttp.Handler()
// wiring; tests should pass a fresh prometheus.NewRegistry() instead so
// repeated registrations across test runs don't panic.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SyncRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idxsync_sync_requests_total",
			Help: "Count of sync endpoint requests by route and status class.",
		}, []string{"route", "status"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idxsync_phase_duration_seconds",
			Help:    "Wall time of each instrumented route's handler; the phase label holds the route path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idxsync_cache_hit_total",
			Help: "Chunk hashes resolved from the embedding cache without an AI call.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idxsync_cache_miss_total",
			Help: "Chunk hashes that required an AI call because the cache had no entry.",
		}),
		AITimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idxsync_ai_timeout_total",
			Help: "Phase-2 AI calls that exceeded the per-call timeout.",
		}),
		AIMismatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idxsync_ai_mismatch_total",
			Help: "Phase-2 AI calls whose response count did not match the request.",
		}),
		VectorsStoredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "idxsync_vectors_stored_total",
			Help: "Vectors upserted into the vector store across all tenants.",
		}),
	}
}

// InstrumentRoute wraps next so every call records SyncRequestsTotal and
// PhaseDuration under the given route label, regardless of which handler
// is installed there.
func (r *Registry) InstrumentRoute(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, req)
		r.PhaseDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		r.SyncRequestsTotal.WithLabelValues(route, statusClass(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
