// Package ops serves the operational HTTP surface: health plus metrics on
// /healthz and a JSON runtime snapshot on /stats. The bot has no public
// HTTP API; this listener is for operators only.
package ops

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/meetstake/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server wires the operational routes.
type Server struct {
	stats StatsProvider
}

// NewServer creates an ops server over the given stats provider.
func NewServer(stats StatsProvider) *Server {
	return &Server{stats: stats}
}

// Register attaches the operational routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.handleStats, "stats"))
}

// handleHealth serves the Prometheus registry; scraping it doubles as the
// liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleStats serves a JSON snapshot of runtime state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(s.stats.GetStats())
}
