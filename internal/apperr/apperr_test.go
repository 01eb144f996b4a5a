package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := New(KindNotFound, "shipments.get", "shipment missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestCrossTenantMapsToForbiddenAndNotFoundStatus(t *testing.T) {
	err := New(KindCrossTenant, "documents.get", "document belongs to another organization")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.True(t, errors.Is(err, ErrCrossTenant))
	// 404 preferred over 403 to avoid enumeration.
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusUnprocessableEntity},
		{KindAuthentication, http.StatusUnauthorized},
		{KindPermission, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindInvalidTransition, http.StatusConflict},
		{KindConflict, http.StatusConflict},
		{KindAlreadyUsed, http.StatusBadRequest},
		{KindExpired, http.StatusBadRequest},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUpstreamTransient, http.StatusBadGateway},
		{KindDataIntegrity, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(New(tc.kind, "op", "msg")), string(tc.kind))
	}
}

func TestHTTPStatusUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamTransient, "carrier.fetch", cause)
	require.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(New(KindUpstreamPermanent, "carrier.fetch", "bad container")))
}

func TestWithFieldAndDetails(t *testing.T) {
	err := New(KindValidation, "shipments.create", "reference required").
		WithField("reference").
		WithDetails(map[string]any{"reference": ""})
	assert.Equal(t, "reference", err.Field)
	assert.Contains(t, err.Details, "reference")
}
