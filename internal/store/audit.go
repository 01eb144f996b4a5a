package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// AppendAudit writes one audit row inside the caller's transaction, so
// the record commits or rolls back with the mutation it describes.
func (sess *Session) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	details, err := jsonOf(e.Details)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, `
		INSERT INTO audit_log
			(id, ts, organization_id, user_id, action, resource_type, resource_id, details, request_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Timestamp, nullStr(e.OrganizationID), nullStr(e.UserID),
		e.Action, e.ResourceType, e.ResourceID, details, nullStr(e.RequestID))
	return mapPQError("store.append_audit", err)
}

// AuditFilter narrows QueryAudit. Zero values mean no filter.
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	Action       string
	UserID       string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// QueryAudit returns audit rows visible to the tenant, newest first.
func (sess *Session) QueryAudit(ctx context.Context, f AuditFilter) ([]*models.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if !f.Since.IsZero() {
		add("ts >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("ts <= $%d", f.Until)
	}
	q := `SELECT id, ts, organization_id, user_id, action, resource_type,
		resource_id, details, request_id FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC"
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapPQError("store.query_audit", err)
	}
	defer rows.Close()
	var out []*models.AuditEntry
	for rows.Next() {
		var (
			e                     models.AuditEntry
			orgID, userID, reqID  sql.NullString
			details               []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &orgID, &userID, &e.Action,
			&e.ResourceType, &e.ResourceID, &details, &reqID); err != nil {
			return nil, mapPQError("store.query_audit", err)
		}
		e.OrganizationID = strOf(orgID)
		e.UserID = strOf(userID)
		e.RequestID = strOf(reqID)
		if err := scanJSON(details, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
