package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
)

func newMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewWithDB(db), mock
}

func expectSystemSession(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs("tracehub.current_org_id", "", "tracehub.is_system_admin", "on").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

type captureFeed struct {
	mu     sync.Mutex
	pushed []*models.Notification
}

func (f *captureFeed) Push(n *models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, n)
}

type captureMailer struct {
	to      [][]string
	subject []string
	err     error
	onSend  func()
}

func (m *captureMailer) Send(to []string, subject, _, _ string) error {
	if m.onSend != nil {
		m.onSend()
	}
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.subject = append(m.subject, subject)
	return nil
}

func TestBusPublishEnqueuesAndPushes(t *testing.T) {
	st, mock := newMock(t)
	expectSystemSession(mock)
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	feed := &captureFeed{}
	bus := NewBus(st, feed)
	n := &models.Notification{
		OrganizationID: "org-a",
		Type:           models.NotifyShipmentArrived,
		Title:          "Shipment VIBO-2026-001 arrived",
	}
	bus.Publish(context.Background(), n)

	assert.NotEmpty(t, n.ID, "publish assigns an id when the producer did not")
	assert.False(t, n.CreatedAt.IsZero())
	require.Len(t, feed.pushed, 1)
	assert.Equal(t, n.ID, feed.pushed[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusPublishSkipsFeedWhenStoreFails(t *testing.T) {
	st, mock := newMock(t)
	expectSystemSession(mock)
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	feed := &captureFeed{}
	bus := NewBus(st, feed)
	bus.Publish(context.Background(), &models.Notification{
		ID:             "n-1",
		OrganizationID: "org-a",
		Type:           models.NotifyTrackingError,
		Title:          "Tracking failed",
	})
	assert.Empty(t, feed.pushed, "feed must not see rows the outbox rejected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenderEmail(t *testing.T) {
	subject, html, text := RenderEmail(&models.Notification{
		Title:        "Shipment <VIBO> arrived",
		Body:         "Container MSCU1234567 reached Hamburg.",
		ResourceType: "shipment",
		ResourceID:   "ship-1",
	})
	assert.Equal(t, "[TraceHub] Shipment <VIBO> arrived", subject)
	assert.Contains(t, html, "Shipment &lt;VIBO&gt; arrived")
	assert.Contains(t, html, "MSCU1234567")
	assert.Contains(t, text, "Shipment <VIBO> arrived")
	assert.Contains(t, text, "Container MSCU1234567")
}

func TestBuildMessageMultipart(t *testing.T) {
	msg := string(buildMessage("noreply@tracehub.local",
		[]string{"a@example.com", "b@example.com"}, "Hello", "<b>hi</b>", "hi"))
	assert.Contains(t, msg, "To: a@example.com, b@example.com")
	assert.Contains(t, msg, "Content-Type: multipart/alternative")
	assert.Contains(t, msg, "text/plain")
	assert.Contains(t, msg, "text/html")
	assert.True(t, strings.HasSuffix(msg, "--\r\n"), "message closes its boundary")
}

func userRow(id, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "system_role",
		"organization_id", "is_active", "created_at", "updated_at", "deleted_at", "deleted_by",
	}).AddRow(id, email, "x", "Test User", "compliance", "org-a", true, now, now, nil, nil)
}

func notificationRow(id, userID string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "user_id", "notify_type", "title", "body",
		"resource_type", "resource_id", "created_at", "read_at", "emailed_at", "attempts",
	})
	var uid any
	if userID != "" {
		uid = userID
	}
	rows.AddRow(id, "org-a", uid, "shipment_arrived", "Arrived", nil, nil, nil, time.Now(), nil, nil, 0)
	return rows
}

// expectClaim mocks the claim transaction for one dequeued row with a
// single recipient and the given stored preferences.
func expectClaim(mock sqlmock.Sqlmock, prefs *sqlmock.Rows) {
	expectSystemSession(mock)
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(notificationRow("n-1", "user-1"))
	mock.ExpectExec(`UPDATE notifications SET attempts = attempts \+ 1`).
		WithArgs("n-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM users WHERE id =`).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "ops@vibotaj.com"))
	mock.ExpectQuery(`FROM notification_preferences`).
		WillReturnRows(prefs)
	mock.ExpectCommit()
}

func expectStamp(mock sqlmock.Sqlmock) {
	expectSystemSession(mock)
	mock.ExpectExec(`UPDATE notifications SET emailed_at`).
		WithArgs("n-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func emptyPrefs() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "notify_type", "in_app", "email"})
}

func TestDrainDeliversAndStamps(t *testing.T) {
	st, mock := newMock(t)
	expectClaim(mock, emptyPrefs())
	expectStamp(mock)

	mailer := &captureMailer{}
	d := NewDispatcher(st, mailer)
	d.Drain(context.Background())

	require.Len(t, mailer.to, 1)
	assert.Equal(t, []string{"ops@vibotaj.com"}, mailer.to[0])
	assert.Equal(t, "[TraceHub] Arrived", mailer.subject[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The claim transaction must be fully committed before the mailer runs;
// the stamp lands in a transaction of its own afterwards.
func TestDrainSendsOnlyAfterClaimCommit(t *testing.T) {
	st, mock := newMock(t)
	expectClaim(mock, emptyPrefs())

	mailer := &captureMailer{}
	mailer.onSend = func() {
		assert.NoError(t, mock.ExpectationsWereMet(),
			"mailer ran while the claim transaction was still open")
		expectStamp(mock)
	}
	d := NewDispatcher(st, mailer)
	d.Drain(context.Background())

	require.Len(t, mailer.to, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainLeavesAttemptOnMailerFailure(t *testing.T) {
	st, mock := newMock(t)
	expectClaim(mock, emptyPrefs())

	d := NewDispatcher(st, &captureMailer{err: errors.New("smtp 421")})
	d.Drain(context.Background())
	// No stamp transaction: the row keeps emailed_at NULL with the
	// attempt recorded at claim time, so the next pass retries it.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainSkipsOptedOutRecipient(t *testing.T) {
	st, mock := newMock(t)
	expectClaim(mock, emptyPrefs().
		AddRow("user-1", "shipment_arrived", true, false))
	expectStamp(mock)

	mailer := &captureMailer{}
	d := NewDispatcher(st, mailer)
	d.Drain(context.Background())

	assert.Empty(t, mailer.to, "opted-out recipient gets no email")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultEmailGating(t *testing.T) {
	assert.True(t, defaultEmail[models.NotifyShipmentArrived])
	assert.True(t, defaultEmail[models.NotifyInvitation])
	assert.False(t, defaultEmail[models.NotifyShipmentCreated],
		"routine events stay in-app only by default")
	assert.False(t, defaultEmail[models.NotifyDocumentUploaded])
}

func TestWantsInApp(t *testing.T) {
	assert.True(t, WantsInApp(nil))
	assert.False(t, WantsInApp(&models.NotificationPreference{InApp: false}))
}
