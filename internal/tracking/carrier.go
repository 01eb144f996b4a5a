// Package tracking polls carrier APIs for container movements, folds the
// normalized events into shipment history, and advances the shipment
// lifecycle. One shipment's failure never blocks the rest of the fleet.
package tracking

import (
	"context"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// CarrierEvent is one normalized movement as returned by a carrier
// adapter, before it is bound to a shipment row.
type CarrierEvent struct {
	Status       models.ContainerEventStatus `json:"eventStatus"`
	EventTime    time.Time                   `json:"eventTime"`
	LocationCode string                      `json:"locationCode,omitempty"`
	LocationName string                      `json:"locationName,omitempty"`
	Vessel       string                      `json:"vessel,omitempty"`
	Voyage       string                      `json:"voyage,omitempty"`
	Raw          []byte                      `json:"-"`
}

// CarrierClient fetches container events from one tracking provider.
type CarrierClient interface {
	// FetchEvents returns all events for the container since the given
	// time, oldest first. A zero since means full history.
	FetchEvents(ctx context.Context, containerNumber string, since time.Time) ([]CarrierEvent, error)
	// Source names the provider for the event dedup key.
	Source() string
}

// statusAliases maps carrier vocabulary onto the engine's event statuses.
var statusAliases = map[string]models.ContainerEventStatus{
	"booked":            models.EventBooked,
	"gate_in":           models.EventGateIn,
	"gate-in":           models.EventGateIn,
	"loaded":            models.EventLoaded,
	"load":              models.EventLoaded,
	"departed":          models.EventDeparted,
	"vessel_departure":  models.EventDeparted,
	"in_transit":        models.EventInTransit,
	"transshipment":     models.EventTransshipment,
	"transhipment":      models.EventTransshipment,
	"arrived":           models.EventArrived,
	"vessel_arrival":    models.EventArrived,
	"discharged":        models.EventDischarged,
	"discharge":         models.EventDischarged,
	"gate_out":          models.EventGateOut,
	"gate-out":          models.EventGateOut,
	"delivered":         models.EventDelivered,
	"customs_hold":      models.EventCustomsHold,
	"customs_released":  models.EventCustomsRelease,
	"customs_clearance": models.EventCustomsRelease,
}

// NormalizeStatus maps a raw carrier status string onto the engine
// vocabulary, falling back to "other".
func NormalizeStatus(raw string) models.ContainerEventStatus {
	if s, ok := statusAliases[raw]; ok {
		return s
	}
	return models.EventOther
}
