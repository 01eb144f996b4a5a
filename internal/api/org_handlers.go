package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

type createOrganizationRequest struct {
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Type         models.OrgType `json:"type"`
	ContactEmail string         `json:"contactEmail,omitempty"`
	Country      string         `json:"country,omitempty"`
}

// handleCreateOrganization provisions a tenant. Platform admins only.
func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := tenant.Authorize(tc, tenant.PermOrgManage, "", ""); err != nil {
		writeError(w, r, err)
		return
	}
	var req createOrganizationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if req.Name == "" || req.Slug == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "organizations.create", "name and slug are required"))
		return
	}
	if req.Type == "" {
		req.Type = models.OrgTypeSupplier
	}
	org := &models.Organization{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Slug:         req.Slug,
		Type:         req.Type,
		Status:       models.OrgStatusActive,
		ContactEmail: req.ContactEmail,
		Address:      models.Address{Country: req.Country},
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.CreateOrganization(r.Context(), org); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: org.ID,
			UserID:         tc.UserID,
			Action:         "organization.created",
			ResourceType:   "organization",
			ResourceID:     org.ID,
			Details:        map[string]any{"slug": org.Slug, "type": string(org.Type)},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var orgs []*models.Organization
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		orgs, err = sess.ListOrganizations(r.Context())
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var org *models.Organization
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		org, err = sess.GetOrganization(r.Context(), r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

type updateOrganizationRequest struct {
	Name         string          `json:"name,omitempty"`
	ContactEmail string          `json:"contactEmail,omitempty"`
	ContactPhone string          `json:"contactPhone,omitempty"`
	Address      *models.Address `json:"address,omitempty"`
}

func (s *Server) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgID := r.PathValue("id")
	if err := tenant.Authorize(tc, tenant.PermOrgManage, orgID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	var req updateOrganizationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var org *models.Organization
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		org, err = sess.GetOrganization(r.Context(), orgID)
		if err != nil {
			return err
		}
		if req.Name != "" {
			org.Name = req.Name
		}
		if req.ContactEmail != "" {
			org.ContactEmail = req.ContactEmail
		}
		if req.ContactPhone != "" {
			org.ContactPhone = req.ContactPhone
		}
		if req.Address != nil {
			org.Address = *req.Address
		}
		if err := sess.UpdateOrganization(r.Context(), org); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: orgID,
			UserID:         tc.UserID,
			Action:         "organization.updated",
			ResourceType:   "organization",
			ResourceID:     orgID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgID := r.PathValue("id")
	if err := tenant.Authorize(tc, tenant.PermUsersManage, orgID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	var users []*models.User
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		users, err = sess.ListUsersByOrganization(r.Context(), orgID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": users})
}

type updateMemberRequest struct {
	OrgRole models.OrgRole `json:"orgRole"`
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgID, userID := r.PathValue("id"), r.PathValue("userID")
	if err := tenant.Authorize(tc, tenant.PermUsersManage, orgID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	var req updateMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.UpdateMembershipRole(r.Context(), userID, orgID, req.OrgRole); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: orgID,
			UserID:         tc.UserID,
			Action:         "membership.role_changed",
			ResourceType:   "user",
			ResourceID:     userID,
			Details:        map[string]any{"org_role": string(req.OrgRole)},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orgID, userID := r.PathValue("id"), r.PathValue("userID")
	if err := tenant.Authorize(tc, tenant.PermUsersManage, orgID, ""); err != nil {
		writeError(w, r, err)
		return
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if err := sess.DeactivateMembership(r.Context(), userID, orgID); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: orgID,
			UserID:         tc.UserID,
			Action:         "membership.removed",
			ResourceType:   "user",
			ResourceID:     userID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
