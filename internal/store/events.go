package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// eventDedupTolerance treats two otherwise-identical events whose
// timestamps differ by no more than this as the same event. Carriers
// replay history with second-level jitter.
const eventDedupTolerance = 60 * time.Second

// InsertContainerEvent stores one normalized carrier event, returning
// false when it deduplicated against an existing row. Callers hold the
// shipment advisory lock, so the window check and insert are atomic.
func (sess *Session) InsertContainerEvent(ctx context.Context, ev *models.ContainerEvent) (bool, error) {
	var exists bool
	err := sess.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM container_events
			WHERE shipment_id = $1 AND event_status = $2 AND source = $3
			  AND event_time BETWEEN $4::timestamptz - $5::interval
			                     AND $4::timestamptz + $5::interval
		)`,
		ev.ShipmentID, string(ev.Status), ev.Source, ev.EventTime,
		eventDedupTolerance.String()).Scan(&exists)
	if err != nil {
		return false, mapPQError("store.insert_container_event", err)
	}
	if exists {
		return false, nil
	}
	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO container_events
			(id, shipment_id, event_status, event_time, location_code, location_name,
			 vessel, voyage, source, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (shipment_id, event_status, event_time, source) DO NOTHING`,
		ev.ID, ev.ShipmentID, string(ev.Status), ev.EventTime,
		nullStr(ev.LocationCode), nullStr(ev.LocationName),
		nullStr(ev.Vessel), nullStr(ev.Voyage), ev.Source, ev.RawPayload)
	if err != nil {
		return false, mapPQError("store.insert_container_event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapPQError("store.insert_container_event", err)
	}
	return n > 0, nil
}

// ListContainerEvents returns a shipment's tracking history in event order.
func (sess *Session) ListContainerEvents(ctx context.Context, shipmentID string) ([]*models.ContainerEvent, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, shipment_id, event_status, event_time, location_code, location_name,
			vessel, voyage, source, created_at
		FROM container_events WHERE shipment_id = $1
		ORDER BY event_time, created_at`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_container_events", err)
	}
	defer rows.Close()
	var out []*models.ContainerEvent
	for rows.Next() {
		var (
			ev                             models.ContainerEvent
			locCode, locName, vessel, voy  sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.ShipmentID, (*string)(&ev.Status), &ev.EventTime,
			&locCode, &locName, &vessel, &voy, &ev.Source, &ev.CreatedAt); err != nil {
			return nil, mapPQError("store.list_container_events", err)
		}
		ev.LocationCode, ev.LocationName = strOf(locCode), strOf(locName)
		ev.Vessel, ev.Voyage = strOf(vessel), strOf(voy)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// LatestEventStatus returns the most recent event status for a shipment,
// or "" when no events exist.
func (sess *Session) LatestEventStatus(ctx context.Context, shipmentID string) (models.ContainerEventStatus, error) {
	var status string
	err := sess.tx.QueryRowContext(ctx, `
		SELECT event_status FROM container_events
		WHERE shipment_id = $1 ORDER BY event_time DESC, created_at DESC LIMIT 1`,
		shipmentID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", mapPQError("store.latest_event_status", err)
	}
	return models.ContainerEventStatus(status), nil
}

// HasCustomsRelease reports whether the shipment has seen a
// customs_released event. Gate-out from customs delivers only after it.
func (sess *Session) HasCustomsRelease(ctx context.Context, shipmentID string) (bool, error) {
	var exists bool
	err := sess.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM container_events
			WHERE shipment_id = $1 AND event_status = 'customs_released'
		)`, shipmentID).Scan(&exists)
	if err != nil {
		return false, mapPQError("store.has_customs_release", err)
	}
	return exists, nil
}
