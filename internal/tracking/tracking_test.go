package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := backoffConfig{base: 5 * time.Second, cap: 30 * time.Minute}
	assert.Equal(t, 5*time.Second, b.nextDelay(1))
	assert.Equal(t, 10*time.Second, b.nextDelay(2))
	assert.Equal(t, 40*time.Second, b.nextDelay(4))
	assert.Equal(t, 30*time.Minute, b.nextDelay(20))
	assert.Equal(t, 5*time.Second, b.nextDelay(0))
}

func TestBackoffJitterStaysUnderCap(t *testing.T) {
	b := defaultBackoff
	for i := 0; i < 50; i++ {
		d := b.nextDelay(30)
		assert.LessOrEqual(t, d, b.cap)
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, models.EventDeparted, NormalizeStatus("vessel_departure"))
	assert.Equal(t, models.EventDischarged, NormalizeStatus("discharge"))
	assert.Equal(t, models.EventCustomsRelease, NormalizeStatus("customs_clearance"))
	assert.Equal(t, models.EventOther, NormalizeStatus("weird_new_status"))
}

func TestHTTPCarrierFetchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSCU1234567", r.URL.Query().Get("container"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		w.Write([]byte(`{"events":[
			{"status":"loaded","timestamp":"2026-02-01T08:00:00Z","location_code":"NGAPP","vessel":"MAERSK ESSEX"},
			{"status":"vessel_departure","timestamp":"2026-02-01T16:00:00Z","location_code":"NGAPP"}
		]}`))
	}))
	defer srv.Close()

	c := NewHTTPCarrier(srv.URL, "key", "aggregator", 5*time.Second, 10)
	events, err := c.FetchEvents(context.Background(), "MSCU1234567",
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventLoaded, events[0].Status)
	assert.Equal(t, models.EventDeparted, events[1].Status)
	assert.Equal(t, "aggregator", c.Source())
}

func TestHTTPCarrierErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewHTTPCarrier(srv.URL, "", "test", time.Second, 100)
		_, err := c.FetchEvents(context.Background(), "MSCU1234567", time.Time{})
		srv.Close()
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.retryable, apperr.Retryable(err), "status %d", tc.status)
	}
}

func TestNotificationIDDeterministic(t *testing.T) {
	a := notificationID("ship-1", models.ShipmentArrived)
	b := notificationID("ship-1", models.ShipmentArrived)
	c := notificationID("ship-1", models.ShipmentDelivered)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestTransitionNotificationMapping(t *testing.T) {
	assert.Equal(t, models.NotifyShipmentDeparted, transitionNotifications[models.ShipmentInTransit])
	assert.Equal(t, models.NotifyShipmentDelivered, transitionNotifications[models.ShipmentDelivered])
	assert.Equal(t, models.NotifyTrackingError, transitionNotifications[models.ShipmentTrackingError])
	// docs_pending is never entered via tracking events.
	_, ok := transitionNotifications[models.ShipmentDocsPending]
	assert.False(t, ok)
}

func TestDefaultIntervals(t *testing.T) {
	iv := DefaultIntervals()
	assert.Equal(t, time.Hour, iv[models.ShipmentInTransit])
	assert.Equal(t, 30*time.Minute, iv[models.ShipmentArrived])
	assert.Equal(t, 30*time.Minute, iv[models.ShipmentCustoms])
	assert.Equal(t, 6*time.Hour, iv[models.ShipmentDocsComplete])
}
