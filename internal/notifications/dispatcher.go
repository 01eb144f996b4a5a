package notifications

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
)

const (
	dispatchInterval = 30 * time.Second
	dispatchBatch    = 20
	maxMailAttempts  = 5
)

// defaultEmail is the org-level default: which event types email users
// who never set a preference. In-app delivery defaults to on for all
// types.
var defaultEmail = map[models.NotificationType]bool{
	models.NotifyShipmentArrived:    true,
	models.NotifyShipmentDelivered:  true,
	models.NotifyShipmentCustoms:    true,
	models.NotifyDocumentRejected:   true,
	models.NotifyDocumentExpired:    true,
	models.NotifyComplianceDecision: true,
	models.NotifyTrackingError:      true,
	models.NotifyInvitation:         true,
}

// Dispatcher drains the outbox and emails each row's recipients.
// Delivery is at-least-once; a row is stamped emailed only after the
// mailer accepted it, and rows that keep failing stop being retried
// after maxMailAttempts.
type Dispatcher struct {
	store    *store.Store
	mailer   Mailer
	interval time.Duration
	batch    int
}

func NewDispatcher(st *store.Store, mailer Mailer) *Dispatcher {
	return &Dispatcher{
		store:    st,
		mailer:   mailer,
		interval: dispatchInterval,
		batch:    dispatchBatch,
	}
}

// Run drains the outbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().Dur("interval", d.interval).Msg("Notification dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Notification dispatcher stopped")
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// pendingEmail is one claimed outbox row with its resolved audience.
type pendingEmail struct {
	n          *models.Notification
	recipients []string
}

// Drain processes batches until the queue is empty. Rows are claimed,
// their attempt recorded, and their audience resolved in one short
// transaction; the SMTP round trip runs only after that transaction
// committed, so no row lock is held across external I/O. Delivery stays
// at-least-once: a crash between claim and stamp re-sends on a later
// pass, bounded by maxMailAttempts.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		batch, claimed, err := d.claim(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim notification batch")
			return
		}
		for _, p := range batch {
			if len(p.recipients) > 0 {
				subject, htmlBody, textBody := RenderEmail(p.n)
				if err := d.mailer.Send(p.recipients, subject, htmlBody, textBody); err != nil {
					metrics.EmailDeliveriesTotal.WithLabelValues("failed").Inc()
					log.Warn().Err(err).
						Str("notification_id", p.n.ID).
						Int("attempts", p.n.Attempts+1).
						Msg("Email delivery failed")
					continue
				}
				metrics.EmailDeliveriesTotal.WithLabelValues("sent").Inc()
			}
			d.stamp(ctx, p.n.ID)
		}
		if claimed < d.batch {
			return
		}
	}
}

// claim dequeues one batch and, inside the same transaction, records
// the attempt and resolves each row's audience. Rows whose audience
// cannot be resolved keep the recorded attempt and are skipped. A row
// with no opted-in recipients is delivered vacuously.
func (d *Dispatcher) claim(ctx context.Context) ([]pendingEmail, int, error) {
	sess, err := d.store.SystemSession(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := sess.DequeueUnmailed(ctx, d.batch, maxMailAttempts)
	if err != nil {
		sess.Rollback()
		return nil, 0, err
	}
	out := make([]pendingEmail, 0, len(rows))
	for _, n := range rows {
		if err := sess.BumpNotificationAttempts(ctx, n.ID); err != nil {
			sess.Rollback()
			return nil, 0, err
		}
		recipients, err := d.recipients(ctx, sess, n)
		if err != nil {
			metrics.EmailDeliveriesTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to resolve recipients")
			continue
		}
		out = append(out, pendingEmail{n: n, recipients: recipients})
	}
	if err := sess.Commit(); err != nil {
		return nil, 0, err
	}
	return out, len(rows), nil
}

// stamp marks one row emailed in its own transaction. Failures are
// logged only; the attempt is already on record and the next pass
// retries the row.
func (d *Dispatcher) stamp(ctx context.Context, id string) {
	sess, err := d.store.SystemSession(ctx)
	if err != nil {
		log.Error().Err(err).Str("notification_id", id).Msg("Failed to open stamp session")
		return
	}
	if err := sess.MarkEmailed(ctx, id, time.Now().UTC()); err != nil {
		sess.Rollback()
		log.Error().Err(err).Str("notification_id", id).Msg("Failed to stamp delivery")
		return
	}
	if err := sess.Commit(); err != nil {
		log.Error().Err(err).Str("notification_id", id).Msg("Failed to commit delivery stamp")
	}
}

// recipients resolves who gets the email: the targeted user, or every
// active user of the organization for broadcast rows. Each candidate
// is gated by their stored preference, falling back to the org
// defaults for types they never configured.
func (d *Dispatcher) recipients(ctx context.Context, sess *store.Session, n *models.Notification) ([]string, error) {
	var candidates []*models.User
	if n.UserID != "" {
		u, err := sess.GetUser(ctx, n.UserID)
		if err != nil {
			return nil, err
		}
		candidates = []*models.User{u}
	} else {
		users, err := sess.ListUsersByOrganization(ctx, n.OrganizationID)
		if err != nil {
			return nil, err
		}
		candidates = users
	}

	var out []string
	for _, u := range candidates {
		if !u.IsActive || u.DeletedAt != nil {
			continue
		}
		wants, err := d.wantsEmail(ctx, sess, u.ID, n.Type)
		if err != nil {
			return nil, err
		}
		if wants {
			out = append(out, u.Email)
		}
	}
	return out, nil
}

func (d *Dispatcher) wantsEmail(ctx context.Context, sess *store.Session, userID string, t models.NotificationType) (bool, error) {
	pref, err := sess.GetNotificationPreference(ctx, userID, t)
	if err != nil {
		return false, err
	}
	if pref != nil {
		return pref.Email, nil
	}
	return defaultEmail[t], nil
}

// WantsInApp reports whether a user's feed should carry this type.
// Absent preferences default to on for every type.
func WantsInApp(pref *models.NotificationPreference) bool {
	if pref == nil {
		return true
	}
	return pref.InApp
}

// DefaultEmail reports the organization-default email setting for a type.
func DefaultEmail(t models.NotificationType) bool {
	return defaultEmail[t]
}
