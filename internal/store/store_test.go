package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/tenant"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

// expectSession registers the transaction open and tenant binding.
func expectSession(mock sqlmock.Sqlmock, orgID, admin string) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs(settingOrgID, orgID, settingSystemAdmin, admin).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func userContext(orgID string) *tenant.Context {
	return tenant.ForUser("user-1", orgID, models.RoleCompliance, models.OrgRoleManager)
}

func TestSessionBindsTenant(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectCommit()

	sess, err := s.Session(context.Background(), userContext("org-a"))
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemSessionEnablesBypass(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "", "on")
	mock.ExpectRollback()

	sess, err := s.SystemSession(context.Background())
	require.NoError(t, err)
	sess.Rollback()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRequiresTenant(t *testing.T) {
	s, _ := newMock(t)
	_, err := s.Session(context.Background(), nil)
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

func TestWithSessionRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := s.WithSession(context.Background(), userContext("org-a"), func(*Session) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockShipment(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("ship-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		return sess.LockShipment(context.Background(), "ship-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateShipment(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectExec(`INSERT INTO shipments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sh := &models.Shipment{
		ID:             "ship-1",
		OrganizationID: "org-a",
		Reference:      "VIBO-2026-001",
		ProductType:    models.ProductHornHoof,
		Status:         models.ShipmentDraft,
	}
	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		return sess.CreateShipment(context.Background(), sh)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertContainerEventDeduplicatesWithinTolerance(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	// An identical event within the 60s window already exists.
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	ev := &models.ContainerEvent{
		ID:         "ev-1",
		ShipmentID: "ship-1",
		Status:     models.EventDeparted,
		EventTime:  time.Now(),
		Source:     "maersk",
	}
	var inserted bool
	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		var err error
		inserted, err = sess.InsertContainerEvent(context.Background(), ev)
		return err
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertContainerEventStoresFreshEvent(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO container_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ev := &models.ContainerEvent{
		ID:         "ev-2",
		ShipmentID: "ship-1",
		Status:     models.EventArrived,
		EventTime:  time.Now(),
		Source:     "maersk",
	}
	var inserted bool
	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		var err error
		inserted, err = sess.InsertContainerEvent(context.Background(), ev)
		return err
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInvitationAcceptedIsSingleUse(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "", "on")
	// Zero rows updated means the status guard failed: already used.
	mock.ExpectExec(`UPDATE invitations SET status = 'accepted'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithSession(context.Background(), tenant.System(), func(sess *Session) error {
		return sess.MarkInvitationAccepted(context.Background(), "inv-1", time.Now())
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyUsed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueNotificationIdempotent(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	// ON CONFLICT DO NOTHING: a duplicate id affects zero rows, no error.
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n := &models.Notification{
		ID:             "notif-1",
		OrganizationID: "org-a",
		Type:           models.NotifyShipmentArrived,
		Title:          "Shipment arrived",
	}
	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		return sess.EnqueueNotification(context.Background(), n)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMembershipRoleKeepsLastAdmin(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		return sess.UpdateMembershipRole(context.Background(), "user-1", "org-a", models.OrgRoleMember)
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetShipmentNotFound(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectQuery(`SELECT (.+) FROM shipments WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		_, err := sess.GetShipment(context.Background(), "missing")
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRegisterReferenceDetectsDuplicate(t *testing.T) {
	s, mock := newMock(t)
	expectSession(mock, "org-a", "off")
	mock.ExpectExec(`INSERT INTO reference_registry`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var dup bool
	err := s.WithSession(context.Background(), userContext("org-a"), func(sess *Session) error {
		var err error
		dup, err = sess.RegisterReference(context.Background(), &models.ReferenceEntry{
			ShipmentID:      "ship-1",
			ReferenceNumber: "APU058043",
			DocumentType:    models.DocBillOfLading,
			FirstSeenAt:     time.Now(),
		})
		return err
	})
	require.NoError(t, err)
	assert.True(t, dup)
}
