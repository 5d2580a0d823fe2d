package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// Routes mounts the MCP endpoint on /mcp and /, plus /health and /metrics.
func Routes(s *Server, health HealthFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s)
	mux.Handle("/", s)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if health != nil {
			if err := health(ctx); err != nil {
				slog.Warn("health check failed", "err", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}
