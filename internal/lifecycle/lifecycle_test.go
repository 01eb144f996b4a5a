package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

func TestDocTransitionLegalPath(t *testing.T) {
	path := []models.DocumentStatus{
		models.DocDraft, models.DocUploaded, models.DocValidated,
		models.DocComplianceOK, models.DocLinked, models.DocArchived,
	}
	for i := 1; i < len(path); i++ {
		assert.NoError(t, DocTransition(path[i-1], path[i]), "%s -> %s", path[i-1], path[i])
	}
}

func TestDocTransitionIllegal(t *testing.T) {
	cases := [][2]models.DocumentStatus{
		{models.DocDraft, models.DocValidated},
		{models.DocDraft, models.DocLinked},
		{models.DocUploaded, models.DocLinked},
		{models.DocArchived, models.DocUploaded},
		{models.DocRejected, models.DocValidated},
		{models.DocExpired, models.DocUploaded},
		{models.DocLinked, models.DocValidated},
	}
	for _, tc := range cases {
		err := DocTransition(tc[0], tc[1])
		assert.Error(t, err, "%s -> %s", tc[0], tc[1])
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	}
}

func TestDocAnyNonTerminalCanExpire(t *testing.T) {
	for _, s := range DocStates() {
		if DocTerminal(s) {
			continue
		}
		assert.True(t, CanDocTransition(s, models.DocExpired), string(s))
	}
}

func TestDocTerminalStates(t *testing.T) {
	assert.True(t, DocTerminal(models.DocArchived))
	assert.True(t, DocTerminal(models.DocRejected))
	assert.True(t, DocTerminal(models.DocExpired))
	assert.False(t, DocTerminal(models.DocLinked))
}

func TestShipmentTransitionLegalPath(t *testing.T) {
	path := []models.ShipmentStatus{
		models.ShipmentDraft, models.ShipmentDocsPending, models.ShipmentDocsComplete,
		models.ShipmentInTransit, models.ShipmentArrived, models.ShipmentCustoms,
		models.ShipmentDelivered, models.ShipmentArchived,
	}
	for i := 1; i < len(path); i++ {
		assert.NoError(t, ShipmentTransition(path[i-1], path[i]))
	}
}

func TestShipmentCustomsSkippable(t *testing.T) {
	assert.NoError(t, ShipmentTransition(models.ShipmentArrived, models.ShipmentDelivered))
}

func TestShipmentNoRegressions(t *testing.T) {
	order := map[models.ShipmentStatus]int{
		models.ShipmentDraft:        0,
		models.ShipmentDocsPending:  1,
		models.ShipmentDocsComplete: 2,
		models.ShipmentInTransit:    3,
		models.ShipmentArrived:      4,
		models.ShipmentCustoms:      5,
		models.ShipmentDelivered:    6,
		models.ShipmentArchived:     7,
	}
	for from, fi := range order {
		for to, ti := range order {
			if ti < fi {
				assert.False(t, CanShipmentTransition(from, to), "%s -> %s must be illegal", from, to)
			}
		}
	}
}

func TestNextForEvent(t *testing.T) {
	cases := []struct {
		name            string
		current         models.ShipmentStatus
		event           models.ContainerEventStatus
		customsReleased bool
		want            models.ShipmentStatus
	}{
		{"departed from docs_complete", models.ShipmentDocsComplete, models.EventDeparted, false, models.ShipmentInTransit},
		{"in_transit from docs_complete", models.ShipmentDocsComplete, models.EventInTransit, false, models.ShipmentInTransit},
		{"arrived from in_transit", models.ShipmentInTransit, models.EventArrived, false, models.ShipmentArrived},
		{"discharged from in_transit", models.ShipmentInTransit, models.EventDischarged, false, models.ShipmentArrived},
		{"customs hold", models.ShipmentArrived, models.EventCustomsHold, false, models.ShipmentCustoms},
		{"delivered from arrived", models.ShipmentArrived, models.EventDelivered, false, models.ShipmentDelivered},
		{"delivered from customs", models.ShipmentCustoms, models.EventDelivered, false, models.ShipmentDelivered},
		{"gate_out after release", models.ShipmentCustoms, models.EventGateOut, true, models.ShipmentDelivered},
		{"gate_out without release", models.ShipmentCustoms, models.EventGateOut, false, ""},
		{"gate_out from arrived after release", models.ShipmentArrived, models.EventGateOut, true, models.ShipmentDelivered},
		{"gate_out from arrived without release", models.ShipmentArrived, models.EventGateOut, false, ""},
		{"stale departed after delivery", models.ShipmentDelivered, models.EventDeparted, false, ""},
		{"stale arrived after delivery", models.ShipmentDelivered, models.EventArrived, false, ""},
		{"same state no-op", models.ShipmentInTransit, models.EventInTransit, false, ""},
		{"booked is informational", models.ShipmentDocsComplete, models.EventBooked, false, ""},
		{"transshipment is informational", models.ShipmentInTransit, models.EventTransshipment, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextForEvent(tc.current, tc.event, tc.customsReleased))
		})
	}
}

func TestShipmentTrackingErrorRecovery(t *testing.T) {
	assert.NoError(t, ShipmentTransition(models.ShipmentInTransit, models.ShipmentTrackingError))
	assert.NoError(t, ShipmentTransition(models.ShipmentTrackingError, models.ShipmentInTransit))
	assert.Error(t, ShipmentTransition(models.ShipmentTrackingError, models.ShipmentDelivered))
}
