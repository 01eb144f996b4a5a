package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

const orgColumns = `id, name, slug, org_type, status, contact_email, contact_phone,
	address, settings, created_at, updated_at, deleted_at`

// CreateOrganization inserts a new tenant. Only system admins reach this
// path; the slug must be globally unique.
func (sess *Session) CreateOrganization(ctx context.Context, org *models.Organization) error {
	addr, err := jsonOf(org.Address)
	if err != nil {
		return err
	}
	settings, err := jsonOf(org.Settings)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, `
		INSERT INTO organizations
			(id, name, slug, org_type, status, contact_email, contact_phone, address, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		org.ID, org.Name, org.Slug, string(org.Type), string(org.Status),
		nullStr(org.ContactEmail), nullStr(org.ContactPhone), addr, settings)
	return mapPQError("store.create_organization", err)
}

func scanOrganization(row interface{ Scan(...any) error }) (*models.Organization, error) {
	var (
		org           models.Organization
		email, phone  sql.NullString
		addr, setting []byte
		deletedAt     sql.NullTime
	)
	err := row.Scan(&org.ID, &org.Name, &org.Slug, (*string)(&org.Type), (*string)(&org.Status),
		&email, &phone, &addr, &setting, &org.CreatedAt, &org.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	org.ContactEmail = strOf(email)
	org.ContactPhone = strOf(phone)
	org.DeletedAt = timeOf(deletedAt)
	if err := scanJSON(addr, &org.Address); err != nil {
		return nil, err
	}
	if err := scanJSON(setting, &org.Settings); err != nil {
		return nil, err
	}
	org.Status = models.NormalizeOrgStatus(string(org.Status))
	return &org, nil
}

// GetOrganization fetches one organization by id.
func (sess *Session) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL`, id)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, mapPQError("store.get_organization", err)
	}
	return org, nil
}

// GetOrganizationBySlug fetches one organization by its globally unique slug.
func (sess *Session) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1 AND deleted_at IS NULL`, slug)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, mapPQError("store.get_organization_by_slug", err)
	}
	return org, nil
}

// ListOrganizations returns all live tenants, newest first.
func (sess *Session) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, mapPQError("store.list_organizations", err)
	}
	defer rows.Close()
	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, mapPQError("store.list_organizations", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

// UpdateOrganization persists mutable fields of a tenant.
func (sess *Session) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	addr, err := jsonOf(org.Address)
	if err != nil {
		return err
	}
	settings, err := jsonOf(org.Settings)
	if err != nil {
		return err
	}
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE organizations
		SET name = $2, status = $3, contact_email = $4, contact_phone = $5,
		    address = $6, settings = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		org.ID, org.Name, string(org.Status),
		nullStr(org.ContactEmail), nullStr(org.ContactPhone), addr, settings)
	if err != nil {
		return mapPQError("store.update_organization", err)
	}
	return requireRow(res, "store.update_organization")
}

// SuspendOrganization soft-deletes a tenant. Its data stays in place and
// its users lose access at the auth layer.
func (sess *Session) SuspendOrganization(ctx context.Context, id string, at time.Time) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE organizations
		SET status = 'suspended', deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return mapPQError("store.suspend_organization", err)
	}
	return requireRow(res, "store.suspend_organization")
}

// requireRow converts a zero-row UPDATE/DELETE into not-found.
func requireRow(res interface{ RowsAffected() (int64, error) }, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapPQError(op, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, op, "not found")
	}
	return nil
}
