package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shipmentID := r.PathValue("shipmentID")
	var events []*models.ContainerEvent
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermTrackingRead); err != nil {
			return err
		}
		events, err = sess.ListContainerEvents(r.Context(), shipmentID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleResumeTracking clears the suspension set after repeated carrier
// failures so the poller picks the shipment up again next sweep.
func (s *Server) handleResumeTracking(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shipmentID := r.PathValue("shipmentID")
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		sh, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermTrackingManage)
		if err != nil {
			return err
		}
		if err := sess.SetTrackingSuspended(r.Context(), sh.ID, false); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "tracking.resumed",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resumed": true})
}
