package tracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/lifecycle"
	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
)

// DefaultIntervals is the per-state poll cadence. States close to port
// calls poll more often.
func DefaultIntervals() map[models.ShipmentStatus]time.Duration {
	return map[models.ShipmentStatus]time.Duration{
		models.ShipmentDocsComplete: 6 * time.Hour,
		models.ShipmentInTransit:    1 * time.Hour,
		models.ShipmentArrived:      30 * time.Minute,
		models.ShipmentCustoms:      30 * time.Minute,
	}
}

// Publisher receives notifications produced by state transitions.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification)
}

// Ingestor is the scheduled poller. One goroutine scans for due
// shipments; a bounded worker pool polls them concurrently. In-flight
// polls drain before Run returns.
type Ingestor struct {
	store     *store.Store
	carrier   CarrierClient
	publisher Publisher
	intervals map[models.ShipmentStatus]time.Duration
	workers   int
	timeout   time.Duration
	backoff   backoffConfig

	mu       sync.Mutex
	attempts map[string]int       // consecutive transient failures per shipment
	retryAt  map[string]time.Time // earliest next attempt per shipment
}

// NewIngestor wires the poller. overrides replace individual default
// intervals by state name.
func NewIngestor(st *store.Store, carrier CarrierClient, pub Publisher, workers int, timeout time.Duration, overrides map[string]time.Duration) *Ingestor {
	intervals := DefaultIntervals()
	for state, d := range overrides {
		intervals[models.ShipmentStatus(state)] = d
	}
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		store:     st,
		carrier:   carrier,
		publisher: pub,
		intervals: intervals,
		workers:   workers,
		timeout:   timeout,
		backoff:   defaultBackoff,
		attempts:  map[string]int{},
		retryAt:   map[string]time.Time{},
	}
}

// Run polls until ctx is cancelled, then drains in-flight work.
func (ing *Ingestor) Run(ctx context.Context) {
	log.Info().Int("workers", ing.workers).Msg("Tracking ingestor started")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		ing.sweep(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("Tracking ingestor stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep finds due shipments and polls them on the worker pool.
func (ing *Ingestor) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now().UTC()
	due, err := ing.listDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list shipments due for polling")
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(ing.workers)
	for _, sh := range due {
		if ctx.Err() != nil {
			break
		}
		if !ing.eligible(sh.ID, now) {
			continue
		}
		g.Go(func() error {
			ing.pollShipment(gctx, sh)
			return nil
		})
	}
	g.Wait()
	metrics.PollCyclesTotal.Inc()
}

func (ing *Ingestor) listDue(ctx context.Context, now time.Time) ([]*models.Shipment, error) {
	sess, err := ing.store.SystemSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback()
	return sess.ListShipmentsDueForPolling(ctx, now, ing.intervals)
}

// eligible applies the per-shipment backoff gate.
func (ing *Ingestor) eligible(shipmentID string, now time.Time) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	at, ok := ing.retryAt[shipmentID]
	return !ok || !now.Before(at)
}

// pollShipment fetches, deduplicates, and applies events for one
// shipment. Errors are contained here.
func (ing *Ingestor) pollShipment(ctx context.Context, sh *models.Shipment) {
	pollCtx, cancel := context.WithTimeout(ctx, ing.timeout)
	defer cancel()

	since := time.Time{}
	if sh.LastPolledAt != nil {
		// Overlap one dedup window so boundary events are not lost.
		since = sh.LastPolledAt.Add(-2 * time.Minute)
	}
	events, err := ing.carrier.FetchEvents(pollCtx, sh.ContainerNumber, since)
	if err != nil {
		ing.handlePollError(ctx, sh, err)
		return
	}
	ing.clearBackoff(sh.ID)

	transitions, err := ing.applyEvents(ctx, sh, events)
	if err != nil {
		log.Error().Err(err).Str("shipment_id", sh.ID).Msg("Failed to apply tracking events")
		return
	}
	metrics.PollShipmentsTotal.WithLabelValues("ok").Inc()
	for _, tr := range transitions {
		ing.publishTransition(ctx, sh, tr)
	}
}

// applyEvents inserts fresh events and advances the shipment state, all
// inside one transaction under the shipment advisory lock.
func (ing *Ingestor) applyEvents(ctx context.Context, sh *models.Shipment, events []CarrierEvent) ([]models.ShipmentStatus, error) {
	sort.Slice(events, func(i, j int) bool { return events[i].EventTime.Before(events[j].EventTime) })

	var transitions []models.ShipmentStatus
	err := ing.withSystemSession(ctx, func(sess *store.Session) error {
		if err := sess.LockShipment(ctx, sh.ID); err != nil {
			return err
		}
		current, err := sess.GetShipment(ctx, sh.ID)
		if err != nil {
			return err
		}
		released, err := sess.HasCustomsRelease(ctx, sh.ID)
		if err != nil {
			return err
		}
		status := current.Status
		for _, ev := range events {
			inserted, err := sess.InsertContainerEvent(ctx, &models.ContainerEvent{
				ID:           ulid.Make().String(),
				ShipmentID:   sh.ID,
				Status:       ev.Status,
				EventTime:    ev.EventTime,
				LocationCode: ev.LocationCode,
				LocationName: ev.LocationName,
				Vessel:       ev.Vessel,
				Voyage:       ev.Voyage,
				Source:       ing.carrier.Source(),
				RawPayload:   ev.Raw,
			})
			if err != nil {
				return err
			}
			if !inserted {
				metrics.ContainerEventsIngested.WithLabelValues("duplicate").Inc()
				continue
			}
			metrics.ContainerEventsIngested.WithLabelValues("stored").Inc()
			if ev.Status == models.EventCustomsRelease {
				released = true
			}
			next := lifecycle.NextForEvent(status, ev.Status, released)
			if next == "" {
				continue
			}
			if err := sess.UpdateShipmentStatus(ctx, sh.ID, next); err != nil {
				return err
			}
			if err := sess.AppendAudit(ctx, &models.AuditEntry{
				ID:             uuid.NewString(),
				Timestamp:      time.Now().UTC(),
				OrganizationID: sh.OrganizationID,
				UserID:         "system",
				Action:         "shipment.status_changed",
				ResourceType:   "shipment",
				ResourceID:     sh.ID,
				Details: map[string]any{
					"from": string(status), "to": string(next),
					"event": string(ev.Status), "source": ing.carrier.Source(),
				},
			}); err != nil {
				return err
			}
			status = next
			transitions = append(transitions, next)
		}
		return sess.TouchLastPolled(ctx, sh.ID, time.Now().UTC())
	})
	return transitions, err
}

func (ing *Ingestor) withSystemSession(ctx context.Context, fn func(*store.Session) error) error {
	sess, err := ing.store.SystemSession(ctx)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		sess.Rollback()
		return err
	}
	return sess.Commit()
}

// handlePollError applies the failure model: transient errors back off
// exponentially; permanent carrier rejections park the shipment in
// tracking_error until an operator intervenes.
func (ing *Ingestor) handlePollError(ctx context.Context, sh *models.Shipment, err error) {
	if apperr.Retryable(err) {
		metrics.PollShipmentsTotal.WithLabelValues("transient_error").Inc()
		ing.mu.Lock()
		ing.attempts[sh.ID]++
		delay := ing.backoff.nextDelay(ing.attempts[sh.ID])
		ing.retryAt[sh.ID] = time.Now().UTC().Add(delay)
		attempt := ing.attempts[sh.ID]
		ing.mu.Unlock()
		log.Warn().Err(err).
			Str("shipment_id", sh.ID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Transient carrier failure, backing off")
		return
	}

	metrics.PollShipmentsTotal.WithLabelValues("permanent_error").Inc()
	log.Error().Err(err).Str("shipment_id", sh.ID).Msg("Carrier rejected shipment, suspending tracking")
	suspendErr := ing.withSystemSession(ctx, func(sess *store.Session) error {
		if err := sess.LockShipment(ctx, sh.ID); err != nil {
			return err
		}
		current, err := sess.GetShipment(ctx, sh.ID)
		if err != nil {
			return err
		}
		if lifecycle.CanShipmentTransition(current.Status, models.ShipmentTrackingError) {
			if err := sess.UpdateShipmentStatus(ctx, sh.ID, models.ShipmentTrackingError); err != nil {
				return err
			}
		}
		if err := sess.SetTrackingSuspended(ctx, sh.ID, true); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         "system",
			Action:         "shipment.tracking_suspended",
			ResourceType:   "shipment",
			ResourceID:     sh.ID,
			Details:        map[string]any{"reason": err.Error()},
		})
	})
	if suspendErr != nil {
		log.Error().Err(suspendErr).Str("shipment_id", sh.ID).Msg("Failed to suspend tracking")
		return
	}
	ing.publishTransition(ctx, sh, models.ShipmentTrackingError)
	ing.clearBackoff(sh.ID)
}

func (ing *Ingestor) clearBackoff(shipmentID string) {
	ing.mu.Lock()
	delete(ing.attempts, shipmentID)
	delete(ing.retryAt, shipmentID)
	ing.mu.Unlock()
}

// transitionNotifications maps entered states to notification types.
var transitionNotifications = map[models.ShipmentStatus]models.NotificationType{
	models.ShipmentInTransit:     models.NotifyShipmentDeparted,
	models.ShipmentArrived:       models.NotifyShipmentArrived,
	models.ShipmentCustoms:       models.NotifyShipmentCustoms,
	models.ShipmentDelivered:     models.NotifyShipmentDelivered,
	models.ShipmentTrackingError: models.NotifyTrackingError,
}

// notificationID derives a stable id from the shipment and the state it
// entered, so replays collapse in the outbox.
var notificationNamespace = uuid.MustParse("9f2d6c3a-4b1e-4a7d-8c5f-2e9b0a1d3c47")

func notificationID(shipmentID string, status models.ShipmentStatus) string {
	return uuid.NewSHA1(notificationNamespace, []byte(shipmentID+":"+string(status))).String()
}

func (ing *Ingestor) publishTransition(ctx context.Context, sh *models.Shipment, entered models.ShipmentStatus) {
	if ing.publisher == nil {
		return
	}
	nt, ok := transitionNotifications[entered]
	if !ok {
		return
	}
	ing.publisher.Publish(ctx, &models.Notification{
		ID:             notificationID(sh.ID, entered),
		OrganizationID: sh.OrganizationID,
		Type:           nt,
		Title:          "Shipment " + sh.Reference + " is now " + string(entered),
		ResourceType:   "shipment",
		ResourceID:     sh.ID,
	})
}
