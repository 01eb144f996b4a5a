package bol

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

func TestExtractLOCODE(t *testing.T) {
	cases := map[string]string{
		"Apapa (NGAPP)":    "NGAPP",
		"DEHAM Hamburg":    "DEHAM",
		"Rotterdam":        "",
		"hamburg, germany": "",
		"":                 "",
		"NLRTM":            "NLRTM",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractLOCODE(in), in)
	}
}

func TestEnrichBLNumberAlwaysWins(t *testing.T) {
	sh := &models.Shipment{BLNumber: "OLD123"}
	changed := Enrich(sh, &models.CanonicalData{BOLNumber: "APU058043"})
	assert.Equal(t, "APU058043", sh.BLNumber)
	assert.Contains(t, changed, "bl_number")
}

func TestEnrichContainerOnlyFillsEmptyOrPlaceholder(t *testing.T) {
	kept := &models.Shipment{ContainerNumber: "MSCU1234567"}
	Enrich(kept, &models.CanonicalData{Containers: []string{"TCLU7654321"}})
	assert.Equal(t, "MSCU1234567", kept.ContainerNumber)

	placeholder := &models.Shipment{ContainerNumber: "TBD"}
	changed := Enrich(placeholder, &models.CanonicalData{Containers: []string{"tclu7654321"}})
	assert.Equal(t, "TCLU7654321", placeholder.ContainerNumber)
	assert.Contains(t, changed, "container_number")
}

func TestEnrichFillsEmptyFieldsOnly(t *testing.T) {
	atd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sh := &models.Shipment{Vessel: "EXISTING VESSEL"}
	changed := Enrich(sh, &models.CanonicalData{
		Vessel:          "MAERSK ESSEX",
		Voyage:          "128W",
		PortOfLoading:   "Apapa (NGAPP)",
		PortOfDischarge: "Hamburg (DEHAM)",
		ShippedOnBoard:  &atd,
	})
	assert.Equal(t, "EXISTING VESSEL", sh.Vessel)
	assert.Equal(t, "128W", sh.Voyage)
	assert.Equal(t, "NGAPP", sh.POLCode)
	assert.Equal(t, "DEHAM", sh.PODCode)
	require.NotNil(t, sh.ATD)
	assert.True(t, sh.ATD.Equal(atd))
	assert.NotContains(t, changed, "vessel")
}

func TestEnrichNilData(t *testing.T) {
	sh := &models.Shipment{}
	assert.Empty(t, Enrich(sh, nil))
}

func TestHTTPClassifierParsesValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "bol.pdf", r.Header.Get("X-Filename"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"document_type": "bill_of_lading",
			"confidence": 0.93,
			"data": {
				"shipper": "Vibotaj Global Nigeria Ltd",
				"consignee": "Hamburg Trading GmbH",
				"bol_number": "APU058043",
				"containers": ["MSCU1234567"],
				"port_of_loading": "Apapa (NGAPP)",
				"port_of_discharge": "Hamburg (DEHAM)",
				"vessel": "MAERSK ESSEX",
				"voyage": "128W",
				"shipped_on_board": "2026-02-01"
			}
		}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "key-1", 5*time.Second)
	ext, err := c.Classify(context.Background(), "bol.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, models.DocBillOfLading, ext.Type)
	assert.Equal(t, models.DetectionAI, ext.Method)
	assert.InDelta(t, 0.93, ext.Confidence, 1e-9)
	assert.Equal(t, "APU058043", ext.Data.BOLNumber)
	require.NotNil(t, ext.Data.ShippedOnBoard)
}

func TestHTTPClassifierRejectsSchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"confidence": "high"}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", time.Second)
	_, err := c.Classify(context.Background(), "x.pdf", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamPermanent, apperr.KindOf(err))
	assert.False(t, apperr.Retryable(err))
}

func TestHTTPClassifierErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewHTTPClassifier(srv.URL, "", time.Second)
		_, err := c.Classify(context.Background(), "x.pdf", nil)
		srv.Close()
		require.Error(t, err, tc.status)
		assert.Equal(t, tc.retryable, apperr.Retryable(err), "status %d", tc.status)
	}
}

func TestKeywordClassifier(t *testing.T) {
	var k KeywordClassifier
	ext, err := k.Classify(context.Background(), "scan.pdf",
		[]byte("ORIGINAL BILL OF LADING\nSHIPPED ON BOARD the vessel"))
	require.NoError(t, err)
	assert.Equal(t, models.DocBillOfLading, ext.Type)
	assert.Equal(t, models.DetectionKeyword, ext.Method)
	assert.Greater(t, ext.Confidence, 0.5)

	unknown, err := k.Classify(context.Background(), "notes.txt", []byte("meeting notes"))
	require.NoError(t, err)
	assert.Equal(t, models.DocOther, unknown.Type)
	assert.Zero(t, unknown.Confidence)
}
