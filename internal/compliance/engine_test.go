package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/models"
)

func ts(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

// hornHoofInput mirrors the VIBO-2026-001 fixture: horn/hoof shipment with
// a complete, well-formed document set.
func hornHoofInput() *Input {
	bol := models.Document{
		ID: "doc-bol", Type: models.DocBillOfLading, IsPrimary: true,
		Status: models.DocValidated, Confidence: 0.92,
		Canonical: &models.CanonicalData{
			SchemaVersion:   1,
			Shipper:         "VIBOTAJ Global",
			Consignee:       "HAGES GmbH",
			BOLNumber:       "APU058043",
			Containers:      []string{"MSCU1234567"},
			CargoLines:      []models.CargoLine{{Description: "Dried horn and hoof", NetWeightKg: 24000}},
			PortOfLoading:   "NGAPP",
			PortOfDischarge: "DEHAM",
			Vessel:          "MSC AMELIA",
			Voyage:          "AW432",
			NetWeightKg:     24000,
		},
	}
	return &Input{
		Shipment: models.Shipment{
			ID: "ship-1", Reference: "VIBO-2026-001",
			ContainerNumber: "MSCU1234567", ProductType: models.ProductHornHoof,
			BLNumber: "APU058043", POLCode: "NGAPP", PODCode: "DEHAM",
		},
		Products:  []models.Product{{HSCode: "0506.90"}},
		Documents: []models.Document{bol},
	}
}

func TestHornHoofHappyPathApproves(t *testing.T) {
	engine := NewEngine(NewMatrix())
	eval := engine.Evaluate(hornHoofInput(), nil)

	assert.Equal(t, DecisionApprove, eval.Decision)
	assert.Zero(t, eval.ActiveFailures)

	// No EUDR results may ever appear for horn/hoof.
	for _, r := range eval.Results {
		assert.NotContains(t, r.RuleID, "EUDR", r.RuleID)
	}
}

func TestPlaceholderShipperRejects(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Documents[0].Canonical.Shipper = "Unknown Shipper"

	eval := engine.Evaluate(in, nil)
	assert.Equal(t, DecisionReject, eval.Decision)

	var bol001 *RuleResult
	for i := range eval.Results {
		if eval.Results[i].RuleID == "BOL-001" {
			bol001 = &eval.Results[i]
		}
	}
	require.NotNil(t, bol001)
	assert.False(t, bol001.Passed)
	assert.Equal(t, models.SeverityError, bol001.Severity)
}

func TestCocoaWithoutOriginRejectsThenApproves(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Shipment.ProductType = models.ProductCocoa
	in.Products = []models.Product{{HSCode: "1801.00"}}
	in.Origins = nil

	eval := engine.Evaluate(in, nil)
	assert.Equal(t, DecisionReject, eval.Decision)

	var geoFailed bool
	for _, r := range eval.Results {
		if r.RuleID == "EUDR-GEO" && !r.Passed && r.Severity == models.SeverityError {
			geoFailed = true
		}
	}
	assert.True(t, geoFailed, "EUDR-GEO must fail without origin rows")

	// Attach a valid origin and re-evaluate.
	in.Origins = []models.Origin{{
		Latitude: 6.5244, Longitude: 3.3792,
		Country:             "NG",
		ProductionStartDate: ts(2022, 3, 1),
		DeforestationFree:   "attested",
	}}
	eval = engine.Evaluate(in, nil)
	assert.Equal(t, DecisionApprove, eval.Decision)
	for _, r := range eval.Results {
		if r.RuleID == "EUDR-GEO" || r.RuleID == "EUDR-DATE" || r.RuleID == "EUDR-DDS" || r.RuleID == "EUDR-RISK" {
			assert.True(t, r.Passed, r.RuleID)
		}
	}
}

func TestProductionBeforeCutoffRejects(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Products = []models.Product{{HSCode: "0901.21"}}
	in.Origins = []models.Origin{{
		Latitude: 6.5, Longitude: 3.3, Country: "NG",
		ProductionStartDate: ts(2019, 6, 1),
		DeforestationFree:   "attested",
	}}
	eval := engine.Evaluate(in, nil)
	assert.Equal(t, DecisionReject, eval.Decision)
}

func TestEvaluationDeterministic(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Documents[0].Canonical.Shipper = "" // force failures

	a := engine.Evaluate(in, nil)
	b := engine.Evaluate(in, nil)
	require.Equal(t, len(a.Results), len(b.Results))
	for i := range a.Results {
		assert.Equal(t, a.Results[i].RuleID, b.Results[i].RuleID)
		assert.Equal(t, a.Results[i].Passed, b.Results[i].Passed)
	}
	// Lexical ordering by rule id.
	for i := 1; i < len(a.Results); i++ {
		assert.Less(t, a.Results[i-1].RuleID, a.Results[i].RuleID)
	}
}

func TestOverridesSuppressFailures(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Documents[0].Canonical.Shipper = "Unknown Shipper"

	eval := engine.Evaluate(in, []Override{{RuleID: "BOL-001", Field: "shipper", By: "u1", Reason: "verified offline"}})
	// Overridden ERROR no longer rejects; remaining failures decide.
	assert.NotEqual(t, DecisionReject, eval.Decision)

	for _, r := range eval.Results {
		if r.RuleID == "BOL-001" {
			assert.False(t, r.Passed)
			assert.True(t, r.Overridden, "override must be re-applied by (rule_id, field)")
		}
	}
}

func TestAggregate(t *testing.T) {
	mk := func(sev models.Severity, passed, overridden bool) RuleResult {
		return RuleResult{Severity: sev, Passed: passed, Overridden: overridden}
	}

	d, n := Aggregate([]RuleResult{mk(models.SeverityError, false, false)})
	assert.Equal(t, DecisionReject, d)
	assert.Equal(t, 1, n)

	d, n = Aggregate([]RuleResult{mk(models.SeverityError, false, true), mk(models.SeverityWarning, false, false)})
	assert.Equal(t, DecisionHold, d)
	assert.Equal(t, 1, n)

	d, n = Aggregate([]RuleResult{mk(models.SeverityInfo, false, false), mk(models.SeverityError, true, false)})
	assert.Equal(t, DecisionApprove, d)
	assert.Zero(t, n)

	d, _ = Aggregate(nil)
	assert.Equal(t, DecisionApprove, d)
}

func TestCrossDocContainerMismatch(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Documents = append(in.Documents, models.Document{
		ID: "doc-pl", Type: models.DocPackingList, IsPrimary: true,
		Canonical: &models.CanonicalData{Containers: []string{"TCLU7654321"}},
	})

	eval := engine.Evaluate(in, nil)
	var found bool
	for _, r := range eval.Results {
		if r.RuleID == "XD-CONTAINER" {
			found = true
			assert.False(t, r.Passed)
			assert.Equal(t, models.SeverityError, r.Severity, "BoL is authoritative on containers")
		}
	}
	assert.True(t, found)
	assert.Equal(t, DecisionReject, eval.Decision)
}

func TestCrossDocWeightTolerance(t *testing.T) {
	engine := NewEngine(NewMatrix())
	in := hornHoofInput()
	in.Documents = append(in.Documents,
		models.Document{
			ID: "doc-pl", Type: models.DocPackingList, IsPrimary: true,
			Canonical: &models.CanonicalData{Containers: []string{"MSCU1234567"}, NetWeightKg: 24000},
		},
		models.Document{
			ID: "doc-inv", Type: models.DocCommercialInvoice, IsPrimary: true,
			Canonical: &models.CanonicalData{BOLNumber: "APU058043", NetWeightKg: 24100},
		},
	)

	eval := engine.Evaluate(in, nil)
	for _, r := range eval.Results {
		if r.RuleID == "XD-WEIGHT" {
			assert.True(t, r.Passed, "within ±1%% tolerance")
		}
	}

	// Push the invoice weight outside tolerance.
	in.Documents[2].Canonical.NetWeightKg = 25000
	eval = engine.Evaluate(in, nil)
	var weight *RuleResult
	for i := range eval.Results {
		if eval.Results[i].RuleID == "XD-WEIGHT" {
			weight = &eval.Results[i]
		}
	}
	require.NotNil(t, weight)
	assert.False(t, weight.Passed)
	assert.Equal(t, models.SeverityWarning, weight.Severity)
}

func TestValidContainerNumber(t *testing.T) {
	assert.True(t, ValidContainerNumber("MSCU1234567"))
	assert.True(t, ValidContainerNumber(" mscu1234567 "))
	assert.False(t, ValidContainerNumber("MSC1234567"))
	assert.False(t, ValidContainerNumber("MSCU123456"))
	assert.False(t, ValidContainerNumber(""))
}
