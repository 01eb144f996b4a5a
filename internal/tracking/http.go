package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vibotaj/tracehub/internal/apperr"
)

// HTTPCarrier is the driver for the aggregated container tracking API.
// A client-side rate limiter keeps the fleet inside the provider's
// request budget regardless of worker count.
type HTTPCarrier struct {
	baseURL string
	apiKey  string
	source  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPCarrier builds the driver. rps bounds outbound request rate
// across all workers sharing this client.
func NewHTTPCarrier(baseURL, apiKey, source string, timeout time.Duration, rps float64) *HTTPCarrier {
	if rps <= 0 {
		rps = 5
	}
	return &HTTPCarrier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

func (c *HTTPCarrier) Source() string { return c.source }

type carrierEventPayload struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	LocationCode string    `json:"location_code"`
	LocationName string    `json:"location_name"`
	Vessel       string    `json:"vessel"`
	Voyage       string    `json:"voyage"`
}

// FetchEvents queries the provider and normalizes its vocabulary.
func (c *HTTPCarrier) FetchEvents(ctx context.Context, containerNumber string, since time.Time) ([]CarrierEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{"container": {containerNumber}}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v2/tracking/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build tracking request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "tracking.fetch_events", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "tracking.fetch_events", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.New(apperr.KindUpstreamTransient, "tracking.fetch_events",
			fmt.Sprintf("carrier returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		// Unknown container, revoked key: polling again will not help.
		return nil, apperr.New(apperr.KindUpstreamPermanent, "tracking.fetch_events",
			fmt.Sprintf("carrier rejected request: %d", resp.StatusCode))
	}

	var payload struct {
		Events []carrierEventPayload `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamPermanent, "tracking.fetch_events", err)
	}
	out := make([]CarrierEvent, 0, len(payload.Events))
	for _, e := range payload.Events {
		raw, _ := json.Marshal(e)
		out = append(out, CarrierEvent{
			Status:       NormalizeStatus(e.Status),
			EventTime:    e.Timestamp,
			LocationCode: e.LocationCode,
			LocationName: e.LocationName,
			Vessel:       e.Vessel,
			Voyage:       e.Voyage,
			Raw:          raw,
		})
	}
	return out, nil
}
