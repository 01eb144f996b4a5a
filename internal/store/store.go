// Package store is the Postgres persistence layer. Every tenant-scoped
// query runs inside a Session: a transaction whose connection carries the
// caller's organization id as a Postgres setting, so the row-level
// security policies installed by Migrate enforce isolation below the
// application. Code outside this package never sees *sql.DB.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/tenant"
)

const (
	settingOrgID       = "tracehub.current_org_id"
	settingSystemAdmin = "tracehub.is_system_admin"
)

// Store owns the connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("Connected to database")
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session is one tenant-bound transaction. All repository methods hang
// off it; the org id baked into the connection at open time is what the
// row-level policies evaluate.
type Session struct {
	tx *sql.Tx
	tc *tenant.Context
}

// Session opens a transaction and binds the caller's tenant to it.
func (s *Store) Session(ctx context.Context, tc *tenant.Context) (*Session, error) {
	if tc == nil {
		return nil, apperr.New(apperr.KindAuthentication, "store.session", "no tenant context")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	admin := "off"
	if tc.IsSystemAdmin {
		admin = "on"
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT set_config($1, $2, true), set_config($3, $4, true)`,
		settingOrgID, tc.OrganizationID, settingSystemAdmin, admin); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("bind tenant: %w", err)
	}
	return &Session{tx: tx, tc: tc}, nil
}

// SystemSession opens a session with the system-admin bypass enabled.
// Background workers and pre-auth paths (login, invitation acceptance)
// use it.
func (s *Store) SystemSession(ctx context.Context) (*Session, error) {
	return s.Session(ctx, tenant.System())
}

// WithSession runs fn inside a tenant-bound transaction, committing on
// nil and rolling back on error.
func (s *Store) WithSession(ctx context.Context, tc *tenant.Context, fn func(*Session) error) error {
	sess, err := s.Session(ctx, tc)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		sess.Rollback()
		return err
	}
	return sess.Commit()
}

// Commit commits the transaction.
func (sess *Session) Commit() error {
	if err := sess.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards the transaction. Safe to call after Commit.
func (sess *Session) Rollback() {
	if err := sess.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn().Err(err).Msg("Rollback failed")
	}
}

// Tenant returns the context the session was opened with.
func (sess *Session) Tenant() *tenant.Context {
	return sess.tc
}

// LockShipment takes a transaction-scoped advisory lock keyed on the
// shipment id, serializing event ingestion and state advancement for one
// shipment across the fleet.
func (sess *Session) LockShipment(ctx context.Context, shipmentID string) error {
	if _, err := sess.tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, shipmentID); err != nil {
		return fmt.Errorf("lock shipment %s: %w", shipmentID, err)
	}
	return nil
}

// mapPQError translates driver errors into application error kinds.
func mapPQError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return apperr.Wrap(apperr.KindConflict, op, err).
				WithDetails(map[string]any{"constraint": pqErr.Constraint})
		case "23503": // foreign_key_violation
			return apperr.Wrap(apperr.KindValidation, op, err)
		case "23514": // check_violation
			return apperr.Wrap(apperr.KindValidation, op, err).
				WithDetails(map[string]any{"constraint": pqErr.Constraint})
		case "42501": // insufficient_privilege (RLS)
			return apperr.Wrap(apperr.KindCrossTenant, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullStr maps "" to SQL NULL on the way in.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime maps nil to SQL NULL on the way in.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func strOf(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func timeOf(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// jsonOf marshals v for a jsonb column; nil-safe.
func jsonOf(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return b, nil
}

// scanJSON decodes a jsonb column into out, tolerating NULL.
func scanJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindDataIntegrity, "store.scan_json", err)
	}
	return nil
}
