package api

import (
	"net/http"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// handleQueryAuditLogs exposes the append-only audit trail. Row-level
// policies already scope rows to the caller's organization.
func (s *Server) handleQueryAuditLogs(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := tenant.Authorize(tc, tenant.PermAuditLogsRead, tc.OrganizationID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := store.AuditFilter{
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		Action:       q.Get("action"),
		UserID:       q.Get("userId"),
		Since:        parseQueryTime(q.Get("since")),
		Until:        parseQueryTime(q.Get("until")),
		Limit:        queryInt(q.Get("limit"), 100),
		Offset:       queryInt(q.Get("offset"), 0),
	}
	var entries []*models.AuditEntry
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		entries, err = sess.QueryAudit(r.Context(), filter)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseQueryTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
