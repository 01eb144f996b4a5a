package lifecycle

import (
	"fmt"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

// shipmentTransitions is the legal shipment transition table. Regressions
// are excluded by construction: no state lists an earlier state as a
// successor, so stale carrier events can never move a shipment backwards.
var shipmentTransitions = map[models.ShipmentStatus][]models.ShipmentStatus{
	models.ShipmentDraft:        {models.ShipmentDocsPending},
	models.ShipmentDocsPending:  {models.ShipmentDocsComplete},
	models.ShipmentDocsComplete: {models.ShipmentInTransit, models.ShipmentTrackingError},
	models.ShipmentInTransit:    {models.ShipmentArrived, models.ShipmentTrackingError},
	models.ShipmentArrived:      {models.ShipmentCustoms, models.ShipmentDelivered, models.ShipmentTrackingError},
	models.ShipmentCustoms:      {models.ShipmentDelivered, models.ShipmentTrackingError},
	models.ShipmentDelivered:    {models.ShipmentArchived},
	models.ShipmentArchived:     {},
	// An operator action clears tracking_error back to where polling resumes.
	models.ShipmentTrackingError: {models.ShipmentDocsComplete, models.ShipmentInTransit, models.ShipmentArrived, models.ShipmentCustoms},
}

// ShipmentTerminal reports whether a shipment state admits no transitions.
func ShipmentTerminal(s models.ShipmentStatus) bool {
	return len(shipmentTransitions[s]) == 0
}

// CanShipmentTransition checks the table without side effects.
func CanShipmentTransition(from, to models.ShipmentStatus) bool {
	for _, next := range shipmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ShipmentTransition validates a shipment state change.
func ShipmentTransition(from, to models.ShipmentStatus) error {
	if CanShipmentTransition(from, to) {
		return nil
	}
	return apperr.New(apperr.KindInvalidTransition, "shipments.transition",
		fmt.Sprintf("cannot move shipment from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// NextForEvent maps a container event onto the shipment state it implies,
// given the current state. customsReleased reports whether a
// customs_released event has already been recorded for the shipment:
// a gate_out only completes delivery after the release, whether the
// shipment sits in customs or went straight to arrived.
// Returns "" when the event implies no change. Stale events against later
// states return "" rather than an error: they are persisted for audit but
// never regress the lifecycle.
func NextForEvent(current models.ShipmentStatus, event models.ContainerEventStatus, customsReleased bool) models.ShipmentStatus {
	var target models.ShipmentStatus
	switch event {
	case models.EventDeparted, models.EventInTransit:
		target = models.ShipmentInTransit
	case models.EventArrived, models.EventDischarged:
		target = models.ShipmentArrived
	case models.EventCustomsHold:
		target = models.ShipmentCustoms
	case models.EventDelivered:
		target = models.ShipmentDelivered
	case models.EventGateOut:
		switch current {
		case models.ShipmentArrived, models.ShipmentCustoms:
			if customsReleased {
				target = models.ShipmentDelivered
			}
		}
	default:
		return ""
	}
	if target == "" || target == current {
		return ""
	}
	if !CanShipmentTransition(current, target) {
		return ""
	}
	return target
}

// ShipmentStates enumerates every known shipment state.
func ShipmentStates() []models.ShipmentStatus {
	return []models.ShipmentStatus{
		models.ShipmentDraft, models.ShipmentDocsPending, models.ShipmentDocsComplete,
		models.ShipmentInTransit, models.ShipmentArrived, models.ShipmentCustoms,
		models.ShipmentDelivered, models.ShipmentArchived, models.ShipmentTrackingError,
	}
}
