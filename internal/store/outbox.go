package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// EnqueueNotification inserts one outbox row. Producers supply the id,
// so retried enqueues of the same logical event collapse to one row.
func (sess *Session) EnqueueNotification(ctx context.Context, n *models.Notification) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO notifications
			(id, organization_id, user_id, notify_type, title, body, resource_type, resource_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.OrganizationID, nullStr(n.UserID), string(n.Type), n.Title,
		nullStr(n.Body), nullStr(n.ResourceType), nullStr(n.ResourceID))
	return mapPQError("store.enqueue_notification", err)
}

func scanNotification(row interface{ Scan(...any) error }) (*models.Notification, error) {
	var (
		n                      models.Notification
		userID, body, rType    sql.NullString
		rID                    sql.NullString
		readAt, emailedAt      sql.NullTime
	)
	err := row.Scan(&n.ID, &n.OrganizationID, &userID, (*string)(&n.Type), &n.Title,
		&body, &rType, &rID, &n.CreatedAt, &readAt, &emailedAt, &n.Attempts)
	if err != nil {
		return nil, err
	}
	n.UserID = strOf(userID)
	n.Body = strOf(body)
	n.ResourceType, n.ResourceID = strOf(rType), strOf(rID)
	n.ReadAt, n.EmailedAt = timeOf(readAt), timeOf(emailedAt)
	return &n, nil
}

const notificationColumns = `id, organization_id, user_id, notify_type, title, body,
	resource_type, resource_id, created_at, read_at, emailed_at, attempts`

// ListNotifications returns a user's in-app feed, newest first. Rows with
// no user id are organization-wide broadcasts.
func (sess *Session) ListNotifications(ctx context.Context, orgID, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE organization_id = $1 AND (user_id = $2 OR user_id IS NULL)`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q += ` ORDER BY created_at DESC LIMIT $3`
	rows, err := sess.tx.QueryContext(ctx, q, orgID, userID, limit)
	if err != nil {
		return nil, mapPQError("store.list_notifications", err)
	}
	defer rows.Close()
	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, mapPQError("store.list_notifications", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead stamps one row as read.
func (sess *Session) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE notifications SET read_at = $2 WHERE id = $1 AND read_at IS NULL`, id, at)
	if err != nil {
		return mapPQError("store.mark_notification_read", err)
	}
	return requireRow(res, "store.mark_notification_read")
}

// DequeueUnmailed claims a batch of outbox rows for email dispatch.
// SKIP LOCKED lets multiple dispatchers drain the queue without
// double-sending; claimed rows stay unclaimed for other workers until
// this transaction ends.
func (sess *Session) DequeueUnmailed(ctx context.Context, batch int, maxAttempts int) ([]*models.Notification, error) {
	if batch <= 0 {
		batch = 20
	}
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE emailed_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, batch, maxAttempts)
	if err != nil {
		return nil, mapPQError("store.dequeue_unmailed", err)
	}
	defer rows.Close()
	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, mapPQError("store.dequeue_unmailed", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkEmailed stamps a delivered outbox row.
func (sess *Session) MarkEmailed(ctx context.Context, id string, at time.Time) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE notifications SET emailed_at = $2 WHERE id = $1`, id, at)
	return mapPQError("store.mark_emailed", err)
}

// BumpNotificationAttempts records a failed delivery attempt.
func (sess *Session) BumpNotificationAttempts(ctx context.Context, id string) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE notifications SET attempts = attempts + 1 WHERE id = $1`, id)
	return mapPQError("store.bump_notification_attempts", err)
}

// GetNotificationPreference returns a user's preference for one event
// type, or nil when the user has not set one.
func (sess *Session) GetNotificationPreference(ctx context.Context, userID string, t models.NotificationType) (*models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := sess.tx.QueryRowContext(ctx, `
		SELECT user_id, notify_type, in_app, email FROM notification_preferences
		WHERE user_id = $1 AND notify_type = $2`, userID, string(t)).
		Scan(&p.UserID, (*string)(&p.Type), &p.InApp, &p.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapPQError("store.get_notification_preference", err)
	}
	return &p, nil
}

// UpsertNotificationPreference saves one preference row.
func (sess *Session) UpsertNotificationPreference(ctx context.Context, p *models.NotificationPreference) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, notify_type, in_app, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, notify_type) DO UPDATE SET in_app = $3, email = $4`,
		p.UserID, string(p.Type), p.InApp, p.Email)
	return mapPQError("store.upsert_notification_preference", err)
}
