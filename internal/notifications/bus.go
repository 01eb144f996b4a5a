// Package notifications routes lifecycle events to users. Every event
// lands in the durable outbox first; the in-app feed is pushed
// best-effort afterwards and email delivery drains the outbox in the
// background. Producers supply deterministic IDs so retried publishes
// collapse onto one row.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// Feed receives notifications for live in-app delivery. The websocket
// hub implements it; a nil feed disables pushes without affecting the
// outbox.
type Feed interface {
	Push(n *models.Notification)
}

// Bus is the single entry point producers publish through.
type Bus struct {
	store *store.Store
	feed  Feed
}

// NewBus wires the bus. feed may be nil.
func NewBus(st *store.Store, feed Feed) *Bus {
	return &Bus{store: st, feed: feed}
}

// Publish persists the notification and pushes it to the live feed.
// Failures are logged, never propagated: producers publish after their
// own transaction committed and must not fail the operation over a
// notification.
func (b *Bus) Publish(ctx context.Context, n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := b.store.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		return sess.EnqueueNotification(ctx, n)
	})
	if err != nil {
		log.Error().Err(err).
			Str("notification_id", n.ID).
			Str("type", string(n.Type)).
			Msg("Failed to enqueue notification")
		return
	}
	metrics.NotificationsPublished.WithLabelValues(string(n.Type)).Inc()
	if b.feed != nil {
		b.feed.Push(n)
	}
}

// PublishIn persists the notification inside the caller's open session
// so it commits or rolls back with the producing operation. The live
// push still happens immediately; duplicate pushes after a rollback
// are tolerable, lost outbox rows are not.
func (b *Bus) PublishIn(ctx context.Context, sess *store.Session, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := sess.EnqueueNotification(ctx, n); err != nil {
		return err
	}
	metrics.NotificationsPublished.WithLabelValues(string(n.Type)).Inc()
	if b.feed != nil {
		b.feed.Push(n)
	}
	return nil
}
