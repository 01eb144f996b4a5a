package compliance

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

// Input is everything a rule may inspect: the shipment, its product and
// origin rows, and the current primary document set with parsed fields.
type Input struct {
	Shipment  models.Shipment
	Products  []models.Product
	Origins   []models.Origin
	Documents []models.Document
}

// BoL returns the primary Bill of Lading, or nil.
func (in *Input) BoL() *models.Document {
	return in.primary(models.DocBillOfLading)
}

func (in *Input) primary(t models.DocumentType) *models.Document {
	for i := range in.Documents {
		if in.Documents[i].Type == t && in.Documents[i].IsPrimary {
			return &in.Documents[i]
		}
	}
	return nil
}

func (in *Input) bolData() *models.CanonicalData {
	if b := in.BoL(); b != nil && b.Canonical != nil {
		return b.Canonical
	}
	return &models.CanonicalData{}
}

// RuleResult is the outcome of one rule evaluation.
type RuleResult struct {
	RuleID     string          `json:"ruleId"`
	RuleName   string          `json:"ruleName"`
	Passed     bool            `json:"passed"`
	Severity   models.Severity `json:"severity"`
	Message    string          `json:"message"`
	Field      string          `json:"field,omitempty"`
	Expected   string          `json:"expected,omitempty"`
	Actual     string          `json:"actual,omitempty"`
	Overridden bool            `json:"overridden"`
}

// Rule is a pure function of the evaluation input. Applicable reports
// whether the rule runs at all; non-applicable rules produce no result.
type Rule struct {
	ID         string
	Name       string
	Severity   models.Severity
	Applicable func(in *Input) bool
	Eval       func(in *Input) (passed bool, message, field, expected, actual string)
}

var always = func(*Input) bool { return true }

var containerNumberRe = regexp.MustCompile(`^[A-Z]{4}\d{7}$`)

// ValidContainerNumber checks ISO 6346 shape: four letters, seven digits.
func ValidContainerNumber(v string) bool {
	return containerNumberRe.MatchString(strings.ToUpper(strings.TrimSpace(v)))
}

// EUDRProductionCutoff is the regulatory cutoff date: production must be
// after 2020-12-31.
var EUDRProductionCutoff = time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)

func presentNotPlaceholder(v string) bool {
	return strings.TrimSpace(v) != "" && !IsPlaceholder(v)
}

// bolRules is the canonical Bill-of-Lading rule set. All rules run;
// non-applicable ones pass trivially via their Eval.
func bolRules() []Rule {
	return []Rule{
		{
			ID: "BOL-001", Name: "Shipper present", Severity: models.SeverityError,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				shipper := in.bolData().Shipper
				if presentNotPlaceholder(shipper) && !strings.EqualFold(strings.TrimSpace(shipper), "Unknown Shipper") {
					return true, "shipper name present", "shipper", "", shipper
				}
				return false, "shipper name missing or placeholder", "shipper", "a real shipper name", shipper
			},
		},
		{
			ID: "BOL-002", Name: "Consignee present", Severity: models.SeverityError,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				consignee := in.bolData().Consignee
				if presentNotPlaceholder(consignee) && !strings.EqualFold(strings.TrimSpace(consignee), "Unknown Consignee") {
					return true, "consignee name present", "consignee", "", consignee
				}
				return false, "consignee name missing or placeholder", "consignee", "a real consignee name", consignee
			},
		},
		{
			ID: "BOL-003", Name: "Container number format", Severity: models.SeverityWarning,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				cn := in.Shipment.ContainerNumber
				if cn == "" {
					if cs := in.bolData().Containers; len(cs) > 0 {
						cn = cs[0]
					}
				}
				if ValidContainerNumber(cn) {
					return true, "container number matches ISO 6346", "container_number", "", cn
				}
				return false, "container number does not match ISO 6346", "container_number", "4 letters + 7 digits", cn
			},
		},
		{
			ID: "BOL-004", Name: "B/L number present", Severity: models.SeverityError,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				bl := in.bolData().BOLNumber
				if bl == "" {
					bl = in.Shipment.BLNumber
				}
				if presentNotPlaceholder(bl) && !strings.EqualFold(strings.TrimSpace(bl), "UNKNOWN") {
					return true, "B/L number present", "bl_number", "", bl
				}
				return false, "B/L number missing or UNKNOWN", "bl_number", "a real B/L number", bl
			},
		},
		{
			ID: "BOL-005", Name: "Port of loading specified", Severity: models.SeverityWarning,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				pol := in.bolData().PortOfLoading
				if pol == "" {
					pol = in.Shipment.POLCode
				}
				if presentNotPlaceholder(pol) {
					return true, "port of loading specified", "pol_code", "", pol
				}
				return false, "port of loading missing", "pol_code", "UN/LOCODE preferred", pol
			},
		},
		{
			ID: "BOL-006", Name: "Cargo description present", Severity: models.SeverityWarning,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				n := len(in.bolData().CargoLines)
				if n > 0 {
					return true, "cargo description present", "cargo_items", "", fmt.Sprintf("%d lines", n)
				}
				return false, "no cargo description lines", "cargo_items", "at least one line", "0 lines"
			},
		},
		{
			ID: "BOL-007", Name: "Container attached", Severity: models.SeverityWarning,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				n := len(in.bolData().Containers)
				if n == 0 && presentNotPlaceholder(in.Shipment.ContainerNumber) {
					n = 1
				}
				if n > 0 {
					return true, "container attached", "containers", "", fmt.Sprintf("%d", n)
				}
				return false, "no container attached", "containers", "at least one container", "0"
			},
		},
		{
			ID: "BOL-008", Name: "Port of discharge specified", Severity: models.SeverityWarning,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				pod := in.bolData().PortOfDischarge
				if pod == "" {
					pod = in.Shipment.PODCode
				}
				if presentNotPlaceholder(pod) {
					return true, "port of discharge specified", "pod_code", "", pod
				}
				return false, "port of discharge missing", "pod_code", "UN/LOCODE preferred", pod
			},
		},
		{
			ID: "BOL-009", Name: "Vessel name present", Severity: models.SeverityInfo,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				vessel := in.bolData().Vessel
				if vessel == "" {
					vessel = in.Shipment.Vessel
				}
				if presentNotPlaceholder(vessel) {
					return true, "vessel name present", "vessel", "", vessel
				}
				return false, "vessel name missing", "vessel", "", vessel
			},
		},
		{
			ID: "BOL-010", Name: "Voyage number present", Severity: models.SeverityInfo,
			Applicable: always,
			Eval: func(in *Input) (bool, string, string, string, string) {
				voyage := in.bolData().Voyage
				if voyage == "" {
					voyage = in.Shipment.Voyage
				}
				if presentNotPlaceholder(voyage) {
					return true, "voyage number present", "voyage", "", voyage
				}
				return false, "voyage number missing", "voyage", "", voyage
			},
		},
		{
			ID: "BOL-011", Name: "Parser confidence", Severity: models.SeverityInfo,
			Applicable: func(in *Input) bool { return in.BoL() != nil },
			Eval: func(in *Input) (bool, string, string, string, string) {
				conf := in.BoL().Confidence
				actual := fmt.Sprintf("%.2f", conf)
				if conf >= 0.50 {
					return true, "parser confidence acceptable", "confidence", ">= 0.50", actual
				}
				return false, "parser confidence below threshold", "confidence", ">= 0.50", actual
			},
		},
	}
}

// crossDocRules compare canonical fields across documents. The BoL is
// authoritative for container and B/L number, so disagreements there are
// errors on the other document's side; weight disagreement is a warning.
func crossDocRules() []Rule {
	return []Rule{
		{
			ID: "XD-CONTAINER", Name: "Container number consistent across documents", Severity: models.SeverityError,
			Applicable: func(in *Input) bool {
				pl := in.primary(models.DocPackingList)
				return in.BoL() != nil && pl != nil && pl.Canonical != nil && len(pl.Canonical.Containers) > 0
			},
			Eval: func(in *Input) (bool, string, string, string, string) {
				bolContainers := containerSet(in.bolData().Containers)
				pl := in.primary(models.DocPackingList)
				for _, c := range pl.Canonical.Containers {
					if !bolContainers[normalizeContainer(c)] {
						return false, "packing list names a container absent from the B/L", "container_number",
							strings.Join(in.bolData().Containers, ","), c
					}
				}
				return true, "containers agree across documents", "container_number", "", ""
			},
		},
		{
			ID: "XD-BLNO", Name: "B/L number consistent across documents", Severity: models.SeverityError,
			Applicable: func(in *Input) bool {
				inv := in.primary(models.DocCommercialInvoice)
				return in.BoL() != nil && inv != nil && inv.Canonical != nil && inv.Canonical.BOLNumber != ""
			},
			Eval: func(in *Input) (bool, string, string, string, string) {
				want := strings.TrimSpace(in.bolData().BOLNumber)
				got := strings.TrimSpace(in.primary(models.DocCommercialInvoice).Canonical.BOLNumber)
				if strings.EqualFold(want, got) {
					return true, "B/L number agrees across documents", "bl_number", "", got
				}
				return false, "invoice B/L number disagrees with the B/L", "bl_number", want, got
			},
		},
		{
			ID: "XD-WEIGHT", Name: "Net weight consistent within tolerance", Severity: models.SeverityWarning,
			Applicable: func(in *Input) bool {
				inv := in.primary(models.DocCommercialInvoice)
				pl := in.primary(models.DocPackingList)
				return inv != nil && inv.Canonical != nil && inv.Canonical.NetWeightKg > 0 &&
					pl != nil && pl.Canonical != nil && pl.Canonical.NetWeightKg > 0
			},
			Eval: func(in *Input) (bool, string, string, string, string) {
				invW := in.primary(models.DocCommercialInvoice).Canonical.NetWeightKg
				plW := in.primary(models.DocPackingList).Canonical.NetWeightKg
				// Tolerance is ±1%; policy value pending regulator confirmation.
				tolerance := 0.01 * plW
				if math.Abs(invW-plW) <= tolerance {
					return true, "net weights agree within tolerance", "net_weight_kg", "", fmt.Sprintf("%.1f", invW)
				}
				return false, "invoice net weight outside ±1% of packing list", "net_weight_kg",
					fmt.Sprintf("%.1f ±1%%", plW), fmt.Sprintf("%.1f", invW)
			},
		},
	}
}

func containerSet(containers []string) map[string]bool {
	out := make(map[string]bool, len(containers))
	for _, c := range containers {
		out[normalizeContainer(c)] = true
	}
	return out
}

func normalizeContainer(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// eudrRules run only for EUDR-applicable shipments. A shipment is
// applicable when any of its products carries a covered HS code.
func eudrRules() []Rule {
	applicable := func(in *Input) bool {
		for _, p := range in.Products {
			if EUDRApplicable(p.HSCode) {
				return true
			}
		}
		return false
	}
	return []Rule{
		{
			ID: "EUDR-GEO", Name: "Geolocation present and valid", Severity: models.SeverityError,
			Applicable: applicable,
			Eval: func(in *Input) (bool, string, string, string, string) {
				if len(in.Origins) == 0 {
					return false, "no origin geolocation recorded", "origin", "lat/lng per plot", "none"
				}
				for _, o := range in.Origins {
					if o.Latitude < -90 || o.Latitude > 90 || o.Longitude < -180 || o.Longitude > 180 {
						return false, "geolocation out of range", "origin",
							"lat in [-90,90], lng in [-180,180]",
							fmt.Sprintf("%.4f,%.4f", o.Latitude, o.Longitude)
					}
					if o.Latitude == 0 && o.Longitude == 0 {
						return false, "geolocation missing coordinates", "origin", "non-zero lat/lng", "0,0"
					}
				}
				return true, "geolocation present and in range", "origin", "", ""
			},
		},
		{
			ID: "EUDR-DATE", Name: "Production after regulatory cutoff", Severity: models.SeverityError,
			Applicable: applicable,
			Eval: func(in *Input) (bool, string, string, string, string) {
				if len(in.Origins) == 0 {
					return false, "no production dates recorded", "production_start_date", "after 2020-12-31", "none"
				}
				for _, o := range in.Origins {
					if o.ProductionStartDate == nil {
						return false, "production start date missing", "production_start_date", "after 2020-12-31", ""
					}
					if !o.ProductionStartDate.After(EUDRProductionCutoff) {
						return false, "production predates the regulatory cutoff", "production_start_date",
							"after 2020-12-31", o.ProductionStartDate.Format("2006-01-02")
					}
				}
				return true, "production dates after cutoff", "production_start_date", "", ""
			},
		},
		{
			ID: "EUDR-DDS", Name: "Deforestation-free statement attached", Severity: models.SeverityError,
			Applicable: applicable,
			Eval: func(in *Input) (bool, string, string, string, string) {
				for _, o := range in.Origins {
					if strings.TrimSpace(o.DeforestationFree) != "" {
						return true, "deforestation-free statement attached", "deforestation_free_statement", "", ""
					}
				}
				return false, "deforestation-free statement missing", "deforestation_free_statement", "attested statement", ""
			},
		},
		{
			ID: "EUDR-RISK", Name: "Country risk classification present", Severity: models.SeverityWarning,
			Applicable: applicable,
			Eval: func(in *Input) (bool, string, string, string, string) {
				for _, o := range in.Origins {
					if strings.TrimSpace(o.Country) == "" {
						return false, "origin country missing for risk classification", "country", "ISO country code", ""
					}
				}
				if len(in.Origins) == 0 {
					return false, "no origin rows for risk classification", "country", "ISO country code", "none"
				}
				return true, "origin countries present", "country", "", ""
			},
		},
	}
}
