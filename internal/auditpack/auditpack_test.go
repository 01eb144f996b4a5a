package auditpack

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/models"
)

func TestOrderDocuments(t *testing.T) {
	docs := []*models.Document{
		{Type: models.DocEUDRDueDiligence, IsPrimary: true},
		{Type: models.DocOther, FileName: "z.pdf", IsPrimary: true},
		{Type: models.DocBillOfLading, IsPrimary: true},
		{Type: models.DocBillOfLading, IsPrimary: false}, // superseded version
		{Type: models.DocCommercialInvoice, IsPrimary: true},
		{Type: models.DocPackingList, IsPrimary: true},
	}
	ordered := OrderDocuments(docs)
	require.Len(t, ordered, 5)
	assert.Equal(t, models.DocBillOfLading, ordered[0].Type)
	assert.Equal(t, models.DocCommercialInvoice, ordered[1].Type)
	assert.Equal(t, models.DocPackingList, ordered[2].Type)
	assert.Equal(t, models.DocEUDRDueDiligence, ordered[3].Type)
	assert.Equal(t, models.DocOther, ordered[4].Type)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "bill-of-lading", Slug(models.DocBillOfLading))
	assert.Equal(t, "eudr-due-diligence", Slug(models.DocEUDRDueDiligence))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "VIBO-2026-001-audit-pack.zip", ArchiveName("VIBO-2026-001"))
}

func TestBuildArchiveDeterministic(t *testing.T) {
	entries := []Entry{
		{Name: "00-SHIPMENT-INDEX.pdf", Body: []byte("index bytes")},
		{Name: "01-bill-of-lading.pdf", Body: []byte("bol bytes")},
		{Name: "metadata.json", Body: []byte(`{"ok":true}`)},
	}
	a, err := BuildArchive(entries)
	require.NoError(t, err)
	b, err := BuildArchive(entries)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same inputs must produce identical archive bytes")

	zr, err := zip.NewReader(bytes.NewReader(a), int64(len(a)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "00-SHIPMENT-INDEX.pdf", zr.File[0].Name)
	for _, f := range zr.File {
		assert.True(t, f.Modified.Equal(zipEpoch), "entry %s carries archive epoch", f.Name)
	}
	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "bol bytes", string(body))
}

func testData() *Data {
	atd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return &Data{
		Shipment: &models.Shipment{
			ID:              "ship-1",
			OrganizationID:  "org-a",
			Reference:       "VIBO-2026-001",
			ContainerNumber: "MSCU1234567",
			ProductType:     models.ProductHornHoof,
			BLNumber:        "APU058043",
			Vessel:          "MAERSK ESSEX",
			Voyage:          "128W",
			POLCode:         "NGAPP",
			POLName:         "Apapa",
			PODCode:         "DEHAM",
			PODName:         "Hamburg",
			ATD:             &atd,
			Status:          models.ShipmentInTransit,
		},
		Owner: &models.Organization{Name: "Vibotaj Global Nigeria Ltd",
			Address: models.Address{Country: "NG"}},
		Buyer: &models.Organization{Name: "Hamburg Trading GmbH",
			Address: models.Address{Country: "DE"}},
		Products: []*models.Product{{ID: "p-1", HSCode: "05069090"}},
		Documents: []*models.Document{
			{ID: "d-1", Type: models.DocBillOfLading, FileName: "bol.pdf",
				FilePath: "documents/org-a/ship-1/bol.pdf", IsPrimary: true, Version: 1},
		},
		Events: []*models.ContainerEvent{
			{Status: models.EventDeparted, EventTime: atd, LocationCode: "NGAPP", Source: "maersk"},
		},
		Decision:    "APPROVE",
		Matrix:      compliance.NewMatrix(),
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildIndexPDF(t *testing.T) {
	pdf, err := BuildIndexPDF(testData())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")), "output is a PDF")
	assert.Greater(t, len(pdf), 1000)
}

func TestEUDRApplicableFlag(t *testing.T) {
	d := testData()
	assert.False(t, d.EUDRApplicable(), "horn/hoof is out of EUDR scope")
	d.Products = append(d.Products, &models.Product{ID: "p-2", HSCode: "18010000"})
	assert.True(t, d.EUDRApplicable())
}

func TestBuildEntriesLayout(t *testing.T) {
	fetch := func(key string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("file:" + key)), nil
	}
	entries, err := BuildEntries(testData(), fetch)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "00-SHIPMENT-INDEX.pdf", entries[0].Name)
	assert.Equal(t, "01-bill-of-lading.pdf", entries[1].Name)
	assert.Equal(t, "container-tracking-log.json", entries[2].Name)
	assert.Equal(t, "metadata.json", entries[3].Name)
	assert.Contains(t, string(entries[1].Body), "documents/org-a/ship-1/bol.pdf")
	assert.Contains(t, string(entries[3].Body), `"eudr_applicable": false`)
	assert.Contains(t, string(entries[2].Body), `"event_status": "departed"`)
}

func TestDecisionFromIssues(t *testing.T) {
	assert.Equal(t, "APPROVE", decisionFromIssues(nil))
	assert.Equal(t, "HOLD", decisionFromIssues([]*models.DocumentIssue{
		{Severity: models.SeverityWarning},
	}))
	assert.Equal(t, "REJECT", decisionFromIssues([]*models.DocumentIssue{
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityError},
	}))
	assert.Equal(t, "APPROVE", decisionFromIssues([]*models.DocumentIssue{
		{Severity: models.SeverityError, IsOverridden: true},
	}))
}
