package api

import (
	"net/http"

	"github.com/vibotaj/tracehub/internal/metrics"
)

func (s *Server) handleBuildAuditPack(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.auditPacks.Build(r.Context(), tc, r.PathValue("shipmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics.AuditPacksBuilt.Inc()
	writeJSON(w, http.StatusCreated, res)
}
