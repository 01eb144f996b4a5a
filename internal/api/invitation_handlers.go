package api

import (
	"net/http"

	"github.com/vibotaj/tracehub/internal/invitations"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
)

type createInvitationRequest struct {
	Email   string         `json:"email"`
	OrgRole models.OrgRole `json:"orgRole"`
}

// handleCreateInvitation issues a single-use invite. The plaintext
// token appears in this response and nowhere else.
func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createInvitationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	inv, token, err := s.invitations.Create(r.Context(), tc, req.Email, req.OrgRole)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"invitation": inv,
		"token":      token,
	})
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var invs []*models.Invitation
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		invs, err = sess.ListInvitations(r.Context(), tc.OrganizationID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// handleAcceptInvitation is reachable without a token: the invitee has
// no account yet.
func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.invitations.Accept(r.Context(), invitations.AcceptParams{
		Token:    req.Token,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	user.PasswordHash = ""
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleResendInvitation(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.invitations.Resend(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.invitations.Revoke(r.Context(), tc, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
