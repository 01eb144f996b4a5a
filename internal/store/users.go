package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

const userColumns = `id, email, password_hash, full_name, system_role,
	organization_id, is_active, created_at, updated_at, deleted_at, deleted_by`

// CreateUser inserts a user under their primary organization.
func (sess *Session) CreateUser(ctx context.Context, u *models.User) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, system_role, organization_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.FullName,
		string(u.Role), u.OrganizationID, u.IsActive)
	return mapPQError("store.create_user", err)
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u         models.User
		deletedAt sql.NullTime
		deletedBy sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, (*string)(&u.Role),
		&u.OrganizationID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &deletedAt, &deletedBy)
	if err != nil {
		return nil, err
	}
	u.DeletedAt = timeOf(deletedAt)
	u.DeletedBy = strOf(deletedBy)
	return &u, nil
}

// GetUser fetches one user by id.
func (sess *Session) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapPQError("store.get_user", err)
	}
	return u, nil
}

// GetUserByEmail fetches one user by email. The login path calls this
// through a system session before any tenant is known.
func (sess *Session) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`,
		strings.ToLower(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, mapPQError("store.get_user_by_email", err)
	}
	return u, nil
}

// ListUsersByOrganization returns the members of one tenant.
func (sess *Session) ListUsersByOrganization(ctx context.Context, orgID string) ([]*models.User, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`, orgID)
	if err != nil {
		return nil, mapPQError("store.list_users", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapPQError("store.list_users", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser persists profile and role changes.
func (sess *Session) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE users
		SET full_name = $2, system_role = $3, is_active = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		u.ID, u.FullName, string(u.Role), u.IsActive)
	if err != nil {
		return mapPQError("store.update_user", err)
	}
	return requireRow(res, "store.update_user")
}

// SetPasswordHash rotates a user's credential.
func (sess *Session) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, userID, hash)
	if err != nil {
		return mapPQError("store.set_password_hash", err)
	}
	return requireRow(res, "store.set_password_hash")
}

// SoftDeleteUser marks a user deleted without destroying audit linkage.
func (sess *Session) SoftDeleteUser(ctx context.Context, userID, deletedBy string, at time.Time) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE users
		SET deleted_at = $2, deleted_by = $3, is_active = false, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, userID, at, nullStr(deletedBy))
	if err != nil {
		return mapPQError("store.soft_delete_user", err)
	}
	return requireRow(res, "store.soft_delete_user")
}

// CreateMembership links a user to an organization.
func (sess *Session) CreateMembership(ctx context.Context, m *models.Membership) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO memberships (id, user_id, organization_id, org_role, is_primary, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.OrganizationID, string(m.OrgRole), m.IsPrimary, string(m.Status))
	return mapPQError("store.create_membership", err)
}

// GetMembership fetches the link between one user and one organization.
func (sess *Session) GetMembership(ctx context.Context, userID, orgID string) (*models.Membership, error) {
	var m models.Membership
	err := sess.tx.QueryRowContext(ctx, `
		SELECT id, user_id, organization_id, org_role, is_primary, status, created_at
		FROM memberships WHERE user_id = $1 AND organization_id = $2`,
		userID, orgID).Scan(&m.ID, &m.UserID, &m.OrganizationID,
		(*string)(&m.OrgRole), &m.IsPrimary, (*string)(&m.Status), &m.CreatedAt)
	if err != nil {
		return nil, mapPQError("store.get_membership", err)
	}
	return &m, nil
}

// ListMemberships returns all organizations a user belongs to.
func (sess *Session) ListMemberships(ctx context.Context, userID string) ([]*models.Membership, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, user_id, organization_id, org_role, is_primary, status, created_at
		FROM memberships WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapPQError("store.list_memberships", err)
	}
	defer rows.Close()
	var out []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID,
			(*string)(&m.OrgRole), &m.IsPrimary, (*string)(&m.Status), &m.CreatedAt); err != nil {
			return nil, mapPQError("store.list_memberships", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// UpdateMembershipRole changes a member's role, refusing to demote the
// organization's last active admin.
func (sess *Session) UpdateMembershipRole(ctx context.Context, userID, orgID string, role models.OrgRole) error {
	if role != models.OrgRoleAdmin {
		remaining, err := sess.countOtherAdmins(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return apperr.New(apperr.KindConflict, "store.update_membership_role",
				"organization must retain at least one active admin")
		}
	}
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE memberships SET org_role = $3
		WHERE user_id = $1 AND organization_id = $2`, userID, orgID, string(role))
	if err != nil {
		return mapPQError("store.update_membership_role", err)
	}
	return requireRow(res, "store.update_membership_role")
}

// DeactivateMembership removes a member's access, with the same
// last-admin guard as role changes.
func (sess *Session) DeactivateMembership(ctx context.Context, userID, orgID string) error {
	remaining, err := sess.countOtherAdmins(ctx, userID, orgID)
	if err != nil {
		return err
	}
	var isAdmin bool
	if err := sess.tx.QueryRowContext(ctx, `
		SELECT org_role = 'admin' FROM memberships
		WHERE user_id = $1 AND organization_id = $2 AND status = 'active'`,
		userID, orgID).Scan(&isAdmin); err != nil {
		return mapPQError("store.deactivate_membership", err)
	}
	if isAdmin && remaining == 0 {
		return apperr.New(apperr.KindConflict, "store.deactivate_membership",
			"organization must retain at least one active admin")
	}
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE memberships SET status = 'inactive'
		WHERE user_id = $1 AND organization_id = $2`, userID, orgID)
	if err != nil {
		return mapPQError("store.deactivate_membership", err)
	}
	return requireRow(res, "store.deactivate_membership")
}

func (sess *Session) countOtherAdmins(ctx context.Context, userID, orgID string) (int, error) {
	var n int
	err := sess.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships
		WHERE organization_id = $1 AND org_role = 'admin'
		  AND status = 'active' AND user_id <> $2`, orgID, userID).Scan(&n)
	if err != nil {
		return 0, mapPQError("store.count_admins", err)
	}
	return n, nil
}
