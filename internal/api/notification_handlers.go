package api

import (
	"net/http"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/notifications"
	"github.com/vibotaj/tracehub/internal/store"
)

var notificationTypes = []models.NotificationType{
	models.NotifyShipmentCreated,
	models.NotifyShipmentDeparted,
	models.NotifyShipmentArrived,
	models.NotifyShipmentDelivered,
	models.NotifyShipmentCustoms,
	models.NotifyDocsComplete,
	models.NotifyDocumentUploaded,
	models.NotifyDocumentValidated,
	models.NotifyDocumentRejected,
	models.NotifyDocumentExpired,
	models.NotifyComplianceDecision,
	models.NotifyTrackingError,
	models.NotifyInvitation,
}

// handleListNotifications returns the caller's feed: rows targeted at
// them plus org-wide broadcasts, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := queryInt(r.URL.Query().Get("limit"), 50)
	var items []*models.Notification
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		items, err = sess.ListNotifications(r.Context(), tc.OrganizationID, tc.UserID, unreadOnly, limit)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		return sess.MarkNotificationRead(r.Context(), r.PathValue("id"), time.Now().UTC())
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

type preferenceView struct {
	Type  models.NotificationType `json:"type"`
	InApp bool                    `json:"inApp"`
	Email bool                    `json:"email"`
}

// handleGetPreferences resolves the caller's effective settings per
// type, applying the organization defaults where no row exists.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]preferenceView, 0, len(notificationTypes))
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		for _, t := range notificationTypes {
			pref, err := sess.GetNotificationPreference(r.Context(), tc.UserID, t)
			if err != nil {
				return err
			}
			v := preferenceView{Type: t, InApp: notifications.WantsInApp(pref), Email: notifications.DefaultEmail(t)}
			if pref != nil {
				v.Email = pref.Email
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": out})
}

type putPreferenceRequest struct {
	Type  models.NotificationType `json:"type"`
	InApp bool                    `json:"inApp"`
	Email bool                    `json:"email"`
}

func (s *Server) handlePutPreference(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req putPreferenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	known := false
	for _, t := range notificationTypes {
		if t == req.Type {
			known = true
			break
		}
	}
	if !known {
		writeError(w, r, apperr.New(apperr.KindValidation, "notifications.preferences", "unknown notification type").WithField("type"))
		return
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		return sess.UpsertNotificationPreference(r.Context(), &models.NotificationPreference{
			UserID: tc.UserID,
			Type:   req.Type,
			InApp:  req.InApp,
			Email:  req.Email,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// handleFeed upgrades to a websocket scoped to the caller's tenant.
// Auth middleware has already verified the token (header or ?token=).
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.hub.ServeWS(w, r, tc.UserID, tc.OrganizationID)
}
