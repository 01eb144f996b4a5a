package api

import (
	"net/http"

	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

func (s *Server) handleRunCompliance(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	eval, err := s.compliance.Run(r.Context(), tc, r.PathValue("shipmentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shipmentID := r.PathValue("shipmentID")
	var issues []*models.DocumentIssue
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermShipmentsRead); err != nil {
			return err
		}
		issues, err = sess.ListIssues(r.Context(), shipmentID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shipmentID := r.PathValue("shipmentID")
	var results []*models.ComplianceResult
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermShipmentsRead); err != nil {
			return err
		}
		results, err = sess.ListComplianceResults(r.Context(), shipmentID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type overrideIssueRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleOverrideIssue(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req overrideIssueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.compliance.OverrideIssue(r.Context(), tc, r.PathValue("shipmentID"), r.PathValue("issueID"), req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"overridden": true})
}
