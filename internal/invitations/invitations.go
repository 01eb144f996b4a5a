// Package invitations issues and redeems single-use onboarding tokens.
// The plaintext token crosses the wire exactly once, at creation; only
// its SHA-256 is stored, so a database leak exposes nothing redeemable.
package invitations

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// TTL is the invitation lifetime.
const TTL = 7 * 24 * time.Hour

// tokenBytes is the entropy of one token (256 bits).
const tokenBytes = 32

// Publisher receives the invitation notification for email dispatch.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification)
}

// Service manages the invitation lifecycle.
type Service struct {
	store     *store.Store
	publisher Publisher
}

// NewService wires the invitation service.
func NewService(st *store.Store, pub Publisher) *Service {
	return &Service{store: st, publisher: pub}
}

// NewToken generates a 256-bit token and its storable hash.
func NewToken() (token, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate invitation token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken derives the stored form of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues an invitation for email to join the caller's
// organization. The returned token is shown once and never again.
func (s *Service) Create(ctx context.Context, tc *tenant.Context, email string, role models.OrgRole) (*models.Invitation, string, error) {
	if err := tenant.Authorize(tc, tenant.PermInvitationsManage, tc.OrganizationID, ""); err != nil {
		return nil, "", err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apperr.New(apperr.KindValidation, "invitations.create", "invalid email").WithField("email")
	}
	token, hash, err := NewToken()
	if err != nil {
		return nil, "", err
	}
	inv := &models.Invitation{
		ID:             uuid.NewString(),
		OrganizationID: tc.OrganizationID,
		Email:          email,
		OrgRole:        role,
		TokenHash:      hash,
		Status:         models.InvitationPending,
		ExpiresAt:      time.Now().UTC().Add(TTL),
		CreatedBy:      tc.UserID,
	}
	err = s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		if err := sess.CreateInvitation(ctx, inv); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: tc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "invitation.created",
			ResourceType:   "invitation",
			ResourceID:     inv.ID,
			Details:        map[string]any{"email": email, "org_role": string(role)},
		})
	})
	if err != nil {
		return nil, "", err
	}
	s.notify(ctx, inv)
	return inv, token, nil
}

// AcceptParams carries the new member's profile for redemption.
type AcceptParams struct {
	Token    string
	FullName string
	Password string
}

// Accept redeems a token: validates it, creates the user when the email
// is new, links the membership, and burns the invitation. The whole
// redemption is one transaction; a second concurrent accept of the same
// token fails with already-used.
func (s *Service) Accept(ctx context.Context, p AcceptParams) (*models.User, error) {
	if len(p.Password) < 8 {
		return nil, apperr.New(apperr.KindValidation, "invitations.accept",
			"password must be at least 8 characters").WithField("password")
	}
	hash := HashToken(strings.TrimSpace(p.Token))
	now := time.Now().UTC()

	var user *models.User
	err := s.store.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		inv, err := sess.GetInvitationByTokenHash(ctx, hash)
		if err != nil {
			return err
		}
		switch {
		case inv.Status == models.InvitationAccepted:
			return apperr.New(apperr.KindAlreadyUsed, "invitations.accept", "invitation already used")
		case inv.Status == models.InvitationRevoked:
			return apperr.New(apperr.KindAlreadyUsed, "invitations.accept", "invitation revoked")
		case inv.Status == models.InvitationExpired || now.After(inv.ExpiresAt):
			return apperr.New(apperr.KindExpired, "invitations.accept", "invitation expired")
		}

		user, err = sess.GetUserByEmail(ctx, inv.Email)
		if apperr.KindOf(err) == apperr.KindNotFound {
			pwHash, hashErr := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
			if hashErr != nil {
				return fmt.Errorf("hash password: %w", hashErr)
			}
			user = &models.User{
				ID:             uuid.NewString(),
				Email:          inv.Email,
				PasswordHash:   string(pwHash),
				FullName:       strings.TrimSpace(p.FullName),
				Role:           systemRoleFor(inv.OrgRole),
				OrganizationID: inv.OrganizationID,
				IsActive:       true,
			}
			if err := sess.CreateUser(ctx, user); err != nil {
				return err
			}
			if err := sess.CreateMembership(ctx, &models.Membership{
				ID:             uuid.NewString(),
				UserID:         user.ID,
				OrganizationID: inv.OrganizationID,
				OrgRole:        inv.OrgRole,
				IsPrimary:      true,
				Status:         models.MembershipActive,
			}); err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			// Existing account joins as a secondary membership.
			if err := sess.CreateMembership(ctx, &models.Membership{
				ID:             uuid.NewString(),
				UserID:         user.ID,
				OrganizationID: inv.OrganizationID,
				OrgRole:        inv.OrgRole,
				Status:         models.MembershipActive,
			}); err != nil {
				return err
			}
		}

		if err := sess.MarkInvitationAccepted(ctx, inv.ID, now); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      now,
			OrganizationID: inv.OrganizationID,
			UserID:         user.ID,
			Action:         "invitation.accepted",
			ResourceType:   "invitation",
			ResourceID:     inv.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Msg("Invitation accepted")
	return user, nil
}

// Resend rotates the token of a pending invitation and restarts its
// expiry clock. The previous token stops working immediately.
func (s *Service) Resend(ctx context.Context, tc *tenant.Context, invitationID string) (string, error) {
	if err := tenant.Authorize(tc, tenant.PermInvitationsManage, tc.OrganizationID, ""); err != nil {
		return "", err
	}
	token, hash, err := NewToken()
	if err != nil {
		return "", err
	}
	var inv *models.Invitation
	err = s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		inv, err = sess.GetInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		if err := sess.RotateInvitationToken(ctx, invitationID, hash, time.Now().UTC().Add(TTL)); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: tc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "invitation.resent",
			ResourceType:   "invitation",
			ResourceID:     invitationID,
		})
	})
	if err != nil {
		return "", err
	}
	s.notify(ctx, inv)
	return token, nil
}

// Revoke invalidates a pending invitation.
func (s *Service) Revoke(ctx context.Context, tc *tenant.Context, invitationID string) error {
	if err := tenant.Authorize(tc, tenant.PermInvitationsManage, tc.OrganizationID, ""); err != nil {
		return err
	}
	return s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		if err := sess.RevokeInvitation(ctx, invitationID); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: tc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "invitation.revoked",
			ResourceType:   "invitation",
			ResourceID:     invitationID,
		})
	})
}

// ExpireStale sweeps pending invitations past their deadline. Called by
// the background sweeper.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		var err error
		n, err = sess.ExpireStaleInvitations(ctx, time.Now().UTC())
		return err
	})
	if n > 0 {
		log.Info().Int64("count", n).Msg("Expired stale invitations")
	}
	return n, err
}

func (s *Service) notify(ctx context.Context, inv *models.Invitation) {
	if s.publisher == nil || inv == nil {
		return
	}
	s.publisher.Publish(ctx, &models.Notification{
		ID:             uuid.NewString(),
		OrganizationID: inv.OrganizationID,
		Type:           models.NotifyInvitation,
		Title:          "Invitation to join",
		Body:           "An invitation was sent to " + inv.Email,
		ResourceType:   "invitation",
		ResourceID:     inv.ID,
	})
}

// systemRoleFor picks the platform role granted to a fresh account
// created through an invitation.
func systemRoleFor(orgRole models.OrgRole) models.SystemRole {
	switch orgRole {
	case models.OrgRoleAdmin, models.OrgRoleManager:
		return models.RoleCompliance
	case models.OrgRoleViewer:
		return models.RoleViewer
	default:
		return models.RoleSupplier
	}
}
