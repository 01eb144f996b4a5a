package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

const invitationColumns = `id, organization_id, email, org_role, token_hash,
	status, expires_at, created_by, created_at, accepted_at`

// CreateInvitation stores a pending invitation. Only the token's SHA-256
// lands in the row.
func (sess *Session) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO invitations
			(id, organization_id, email, org_role, token_hash, status, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.OrganizationID, strings.ToLower(inv.Email), string(inv.OrgRole),
		inv.TokenHash, string(inv.Status), inv.ExpiresAt, inv.CreatedBy)
	return mapPQError("store.create_invitation", err)
}

func scanInvitation(row interface{ Scan(...any) error }) (*models.Invitation, error) {
	var (
		inv        models.Invitation
		acceptedAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, (*string)(&inv.OrgRole),
		&inv.TokenHash, (*string)(&inv.Status), &inv.ExpiresAt, &inv.CreatedBy,
		&inv.CreatedAt, &acceptedAt)
	if err != nil {
		return nil, err
	}
	inv.AcceptedAt = timeOf(acceptedAt)
	return &inv, nil
}

// GetInvitationByTokenHash fetches an invitation by hashed token with a
// row lock, so concurrent acceptance attempts serialize.
func (sess *Session) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (*models.Invitation, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1 FOR UPDATE`,
		tokenHash)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, mapPQError("store.get_invitation_by_token", err)
	}
	return inv, nil
}

// GetInvitation fetches one invitation by id.
func (sess *Session) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, mapPQError("store.get_invitation", err)
	}
	return inv, nil
}

// ListInvitations returns a tenant's invitations, newest first.
func (sess *Session) ListInvitations(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, mapPQError("store.list_invitations", err)
	}
	defer rows.Close()
	var out []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, mapPQError("store.list_invitations", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkInvitationAccepted flips a pending invitation to accepted. The
// status guard in the WHERE clause makes the token single-use even under
// concurrent acceptance.
func (sess *Session) MarkInvitationAccepted(ctx context.Context, id string, at time.Time) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'accepted', accepted_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return mapPQError("store.accept_invitation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapPQError("store.accept_invitation", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindAlreadyUsed, "store.accept_invitation",
			"invitation already used or revoked")
	}
	return nil
}

// RevokeInvitation invalidates a pending invitation.
func (sess *Session) RevokeInvitation(ctx context.Context, id string) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'revoked'
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return mapPQError("store.revoke_invitation", err)
	}
	return requireRow(res, "store.revoke_invitation")
}

// RotateInvitationToken replaces the token hash and restarts the expiry
// clock. Used by resend; the old token stops working immediately.
func (sess *Session) RotateInvitationToken(ctx context.Context, id, newHash string, expiresAt time.Time) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE invitations SET token_hash = $2, expires_at = $3
		WHERE id = $1 AND status = 'pending'`, id, newHash, expiresAt)
	if err != nil {
		return mapPQError("store.rotate_invitation", err)
	}
	return requireRow(res, "store.rotate_invitation")
}

// ExpireStaleInvitations flips pending invitations past their expiry.
// The sweeper calls this on a system session.
func (sess *Session) ExpireStaleInvitations(ctx context.Context, now time.Time) (int64, error) {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE invitations SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1`, now)
	if err != nil {
		return 0, mapPQError("store.expire_invitations", err)
	}
	return res.RowsAffected()
}
