// Copyright 2025 SireJeff
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for k0ntext's
// long-running operations (scan, index, sync, drift) plus the store
// health endpoint. The HTTP surface is opt-in: hosts that want scraping
// pass an address, everyone else pays nothing.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScanDuration observes one full tree scan-and-hash.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "k0ntext",
		Name:      "scan_duration_seconds",
		Help:      "Duration of template/source tree scans.",
		Buckets:   prometheus.DefBuckets,
	})

	// FilesHashed counts files processed by the scanner's worker pool.
	FilesHashed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "k0ntext",
		Name:      "files_hashed_total",
		Help:      "Files hashed across all scans.",
	})

	// SyncOutcomes counts per-action merge results of template syncs.
	SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "k0ntext",
		Name:      "sync_outcomes_total",
		Help:      "Template sync outcomes by action.",
	}, []string{"action"}) // created, updated, skipped, archived, deleted, conflict

	// SyncDuration observes one full sync() invocation.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "k0ntext",
		Name:      "sync_duration_seconds",
		Help:      "Duration of template sync runs.",
		Buckets:   prometheus.DefBuckets,
	})

	// DriftHealthScore observes per-document health scores as they are
	// computed, so drift distribution over time is visible.
	DriftHealthScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "k0ntext",
		Name:      "drift_health_score",
		Help:      "Per-document drift health scores (0-100).",
		Buckets:   []float64{0, 25, 50, 75, 90, 100},
	})

	// ItemsIndexed counts ContextItems written during indexing, by type.
	ItemsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "k0ntext",
		Name:      "items_indexed_total",
		Help:      "Context items upserted during indexing, by type.",
	}, []string{"type"})

	// StoreBusy counts write-lock contention failures surfaced as Busy.
	StoreBusy = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "k0ntext",
		Name:      "store_busy_total",
		Help:      "Store operations that failed with write-lock contention.",
	})
)

// ObserveDuration records elapsed time since start on h.
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthStatus is the health_check result shape served on /healthz. It is
// declared here rather than borrowed from the store so the store can depend
// on this package for its own counters.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthFunc produces the current health status; hosts typically adapt the
// ICS health_check.
type HealthFunc func(ctx context.Context) HealthStatus

// HealthHandler serves check's result as JSON: 200 when healthy, 503
// otherwise.
func HealthHandler(check HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Serve runs /metrics and /healthz on addr until ctx is cancelled. Errors
// after startup are returned; http.ErrServerClosed from a clean shutdown
// is remapped to nil.
func Serve(ctx context.Context, addr string, check HealthFunc) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/healthz", HealthHandler(check))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
