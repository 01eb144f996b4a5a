package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgSlug  string `json:"orgSlug,omitempty"` // optional secondary-org login
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      *models.User  `json:"user"`
	OrgID     string        `json:"organizationId"`
	OrgRole   models.OrgRole `json:"orgRole"`
}

// handleLogin verifies credentials and issues a token bound to the
// user's primary organization, or the named one when they belong to it.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	invalid := apperr.New(apperr.KindAuthentication, "auth.login", "invalid email or password")

	var resp *loginResponse
	err := s.store.WithSession(r.Context(), tenant.System(), func(sess *store.Session) error {
		user, err := sess.GetUserByEmail(r.Context(), req.Email)
		if err != nil {
			return invalid
		}
		if !user.IsActive || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
			return invalid
		}
		memberships, err := sess.ListMemberships(r.Context(), user.ID)
		if err != nil {
			return err
		}
		m := pickMembership(memberships, req.OrgSlug, func(orgID string) (string, error) {
			org, err := sess.GetOrganization(r.Context(), orgID)
			if err != nil {
				return "", err
			}
			return org.Slug, nil
		})
		if m == nil {
			return invalid
		}
		token, exp, err := s.tokens.Issue(user.ID, m.OrganizationID, user.Role, m.OrgRole)
		if err != nil {
			return err
		}
		user.PasswordHash = ""
		resp = &loginResponse{
			Token:     token,
			ExpiresAt: exp,
			User:      user,
			OrgID:     m.OrganizationID,
			OrgRole:   m.OrgRole,
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: m.OrganizationID,
			UserID:         user.ID,
			Action:         "auth.login",
			ResourceType:   "user",
			ResourceID:     user.ID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// pickMembership selects the active membership to log into: the one
// matching slug when given, the primary otherwise.
func pickMembership(memberships []*models.Membership, slug string, slugOf func(string) (string, error)) *models.Membership {
	var primary *models.Membership
	for _, m := range memberships {
		if m.Status != models.MembershipActive {
			continue
		}
		if slug != "" {
			if got, err := slugOf(m.OrganizationID); err == nil && got == slug {
				return m
			}
			continue
		}
		if m.IsPrimary {
			return m
		}
		if primary == nil {
			primary = m
		}
	}
	if slug != "" {
		return nil
	}
	return primary
}

// handleMe returns the caller's identity as the token sees it.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var user *models.User
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		u, err := sess.GetUser(r.Context(), tc.UserID)
		if err != nil {
			return err
		}
		u.PasswordHash = ""
		user = u
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	perms := make([]string, 0, len(tc.Permissions))
	for p, ok := range tc.Permissions {
		if ok {
			perms = append(perms, string(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":           user,
		"organizationId": tc.OrganizationID,
		"orgRole":        tc.OrgRole,
		"permissions":    perms,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		user, err := sess.GetUser(r.Context(), tc.UserID)
		if err != nil {
			return err
		}
		if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
			return apperr.New(apperr.KindAuthentication, "auth.change_password", "current password is incorrect")
		}
		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			return apperr.New(apperr.KindValidation, "auth.change_password", err.Error()).WithField("newPassword")
		}
		if err := sess.SetPasswordHash(r.Context(), user.ID, hash); err != nil {
			return err
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: tc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "auth.password_changed",
			ResourceType:   "user",
			ResourceID:     user.ID,
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": true})
}
