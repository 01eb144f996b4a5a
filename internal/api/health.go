package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleHealth probes the database; storage drivers have no cheap
// probe, so their health is inferred from request errors.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbOK := s.store.WithSession(ctx, tenant.System(), func(*store.Session) error {
		return nil
	}) == nil

	status := http.StatusOK
	health := "healthy"
	if !dbOK {
		status = http.StatusServiceUnavailable
		health = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    health,
		"database":  dbOK,
		"clients":   s.hub.ClientCount(),
		"timestamp": time.Now().UTC(),
	})
}
