package auditpack

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/models"
)

var (
	colorPrimary   = [3]int{21, 67, 96}    // Deep teal-navy
	colorTextDark  = [3]int{44, 62, 80}    // Dark text
	colorTextMuted = [3]int{127, 140, 141} // Muted text
	colorPresent   = [3]int{39, 174, 96}   // Green check
	colorMissing   = [3]int{192, 57, 43}   // Red cross
	colorTableAlt  = [3]int{241, 245, 249} // Alternating row
	colorHeaderRow = [3]int{21, 67, 96}    // Table header fill
)

// Data is everything the index PDF and metadata render.
type Data struct {
	Shipment    *models.Shipment
	Owner       *models.Organization
	Buyer       *models.Organization // nil when no buyer org is linked
	Products    []*models.Product
	Origins     []*models.Origin
	Documents   []*models.Document // primaries, already ordered
	Events      []*models.ContainerEvent
	Issues      []*models.DocumentIssue
	Decision    string
	Matrix      *compliance.Matrix
	GeneratedAt time.Time
}

// EUDRApplicable reports whether any product line is in EUDR scope.
func (d *Data) EUDRApplicable() bool {
	for _, p := range d.Products {
		if compliance.EUDRApplicable(p.HSCode) {
			return true
		}
	}
	return false
}

// BuildIndexPDF renders 00-SHIPMENT-INDEX.pdf.
func BuildIndexPDF(data *Data) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	writeHeader(pdf, data)
	writeParties(pdf, data)
	writeVoyage(pdf, data)
	writeDocumentChecklist(pdf, data)
	writeTrackingLog(pdf, data)
	if data.EUDRApplicable() {
		writeEUDRStatement(pdf, data)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render index pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(pdf *fpdf.Fpdf, data *Data) {
	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 10, "Shipment Audit Pack", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 8, data.Shipment.Reference, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, fmt.Sprintf("Status: %s   Product: %s   Decision: %s",
		data.Shipment.Status, data.Shipment.ProductType, data.Decision), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+data.GeneratedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.SetFont("Arial", "", 9)
}

func labelValue(pdf *fpdf.Fpdf, label, value string) {
	if value == "" {
		value = "-"
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 5.5, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5.5, value, "", 1, "L", false, 0, "")
}

func writeParties(pdf *fpdf.Fpdf, data *Data) {
	sectionTitle(pdf, "Parties")
	labelValue(pdf, "Exporter", data.Owner.Name)
	labelValue(pdf, "Exporter country", data.Owner.Address.Country)
	if data.Buyer != nil {
		labelValue(pdf, "Buyer", data.Buyer.Name)
		labelValue(pdf, "Buyer country", data.Buyer.Address.Country)
	}
	pdf.Ln(3)
}

func writeVoyage(pdf *fpdf.Fpdf, data *Data) {
	sh := data.Shipment
	sectionTitle(pdf, "Voyage")
	labelValue(pdf, "B/L number", sh.BLNumber)
	labelValue(pdf, "Container", sh.ContainerNumber)
	labelValue(pdf, "Vessel / Voyage", trimJoin(sh.Vessel, sh.Voyage))
	labelValue(pdf, "Port of loading", trimJoin(sh.POLName, sh.POLCode))
	labelValue(pdf, "Port of discharge", trimJoin(sh.PODName, sh.PODCode))
	if sh.ATD != nil {
		labelValue(pdf, "Actual departure", sh.ATD.UTC().Format("2006-01-02"))
	}
	if sh.ATA != nil {
		labelValue(pdf, "Actual arrival", sh.ATA.UTC().Format("2006-01-02"))
	}
	labelValue(pdf, "Incoterms", sh.Incoterms)
	pdf.Ln(3)
}

func trimJoin(a, b string) string {
	switch {
	case a != "" && b != "":
		return a + " / " + b
	case a != "":
		return a
	default:
		return b
	}
}

// writeDocumentChecklist renders the required-document matrix with
// present and missing marks.
func writeDocumentChecklist(pdf *fpdf.Fpdf, data *Data) {
	sectionTitle(pdf, "Document Checklist")

	present := map[models.DocumentType]bool{}
	for _, d := range data.Documents {
		present[d.Type] = true
	}
	required := data.Matrix.RequiredDocs(data.Shipment.ProductType)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(colorHeaderRow[0], colorHeaderRow[1], colorHeaderRow[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(110, 6, "Document", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 6, "Required", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	row := 0
	mark := func(t models.DocumentType, requiredDoc bool) {
		fill := row%2 == 1
		row++
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		pdf.CellFormat(110, 6, Slug(t), "1", 0, "L", fill, 0, "")
		req := "optional"
		if requiredDoc {
			req = "required"
		}
		pdf.CellFormat(30, 6, req, "1", 0, "C", fill, 0, "")
		if present[t] {
			pdf.SetTextColor(colorPresent[0], colorPresent[1], colorPresent[2])
			pdf.CellFormat(30, 6, "present", "1", 1, "C", fill, 0, "")
		} else {
			pdf.SetTextColor(colorMissing[0], colorMissing[1], colorMissing[2])
			pdf.CellFormat(30, 6, "MISSING", "1", 1, "C", fill, 0, "")
		}
	}
	for _, t := range required {
		mark(t, true)
	}
	var extra []models.DocumentType
	requiredSet := map[models.DocumentType]bool{}
	for _, t := range required {
		requiredSet[t] = true
	}
	for t := range present {
		if !requiredSet[t] {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, t := range extra {
		mark(t, false)
	}
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.Ln(3)
}

func writeTrackingLog(pdf *fpdf.Fpdf, data *Data) {
	sectionTitle(pdf, "Container Tracking Log")
	if len(data.Events) == 0 {
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 6, "No tracking events recorded.", "", 1, "L", false, 0, "")
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.Ln(3)
		return
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(colorHeaderRow[0], colorHeaderRow[1], colorHeaderRow[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(40, 6, "Time (UTC)", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 6, "Event", "1", 0, "L", true, 0, "")
	pdf.CellFormat(60, 6, "Location", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 6, "Source", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 8.5)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for i, ev := range data.Events {
		fill := i%2 == 1
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		pdf.CellFormat(40, 5.5, ev.EventTime.UTC().Format("2006-01-02 15:04"), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(40, 5.5, string(ev.Status), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(60, 5.5, trimJoin(ev.LocationName, ev.LocationCode), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(30, 5.5, ev.Source, "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(3)
}

func writeEUDRStatement(pdf *fpdf.Fpdf, data *Data) {
	sectionTitle(pdf, "EUDR Compliance Statement")
	pdf.SetFont("Arial", "", 9)
	for _, p := range data.Products {
		if !compliance.EUDRApplicable(p.HSCode) {
			continue
		}
		labelValue(pdf, "HS code", p.HSCode)
		for _, o := range data.Origins {
			if o.ProductID != p.ID {
				continue
			}
			labelValue(pdf, "Plot", o.FarmPlotIdentifier)
			labelValue(pdf, "Geolocation", fmt.Sprintf("%.6f, %.6f", o.Latitude, o.Longitude))
			if o.ProductionStartDate != nil {
				labelValue(pdf, "Production start", o.ProductionStartDate.UTC().Format("2006-01-02"))
			}
			labelValue(pdf, "Deforestation-free", o.DeforestationFree)
		}
	}
	pdf.Ln(2)
	pdf.SetFont("Arial", "I", 8.5)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.MultiCell(0, 4.5, "The commodities above are declared deforestation-free with production "+
		"after 31 December 2020, supported by the geolocation evidence and due diligence "+
		"statement enclosed in this pack.", "", "L", false)
}
