// Package compliance implements the policy matrix and the rules engine.
//
// The matrix is an immutable, version-stamped snapshot loaded at boot;
// hot reload swaps a whole new snapshot rather than mutating in place.
package compliance

import (
	"strings"

	"github.com/vibotaj/tracehub/internal/models"
)

// eudrPrefixes are the HS code prefixes covered by the EU Deforestation
// Regulation: cocoa, coffee, palm oil, rubber, soy.
var eudrPrefixes = []string{"1801", "0901", "1511", "4001", "1201"}

// hornHoofPrefixes are explicitly excluded from EUDR even if the covered
// list is later extended.
var hornHoofPrefixes = []string{"0506", "0507"}

// EUDRApplicable reports whether a commodity falls under EUDR. Pure
// function of the HS code; horn/hoof prefixes always return false.
func EUDRApplicable(hsCode string) bool {
	code := normalizeHS(hsCode)
	for _, p := range hornHoofPrefixes {
		if strings.HasPrefix(code, p) {
			return false
		}
	}
	for _, p := range eudrPrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// IsHornHoof reports whether the HS code is in the horn/hoof class.
func IsHornHoof(hsCode string) bool {
	code := normalizeHS(hsCode)
	for _, p := range hornHoofPrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func normalizeHS(hsCode string) string {
	code := strings.TrimSpace(hsCode)
	code = strings.ReplaceAll(code, ".", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// Policy is the per-product row of the matrix.
type Policy struct {
	ProductType    models.ProductType
	HSPrefixes     []string
	EUDRApplicable bool
	RequiredDocs   []models.DocumentType
	// Expectations are per-document validation hints, e.g. the authority
	// a veterinary certificate must name.
	Expectations map[models.DocumentType]string
}

// Matrix is the immutable compliance policy table keyed by product type
// and secondarily by HS prefix.
type Matrix struct {
	Version  string
	policies map[models.ProductType]Policy
}

var standardDocs = []models.DocumentType{
	models.DocBillOfLading,
	models.DocCommercialInvoice,
	models.DocPackingList,
	models.DocCertOfOrigin,
}

func withDocs(docs ...models.DocumentType) []models.DocumentType {
	out := make([]models.DocumentType, 0, len(standardDocs)+len(docs))
	out = append(out, standardDocs...)
	out = append(out, docs...)
	return out
}

// NewMatrix builds the canonical policy snapshot.
func NewMatrix() *Matrix {
	policies := map[models.ProductType]Policy{
		models.ProductHornHoof: {
			ProductType:    models.ProductHornHoof,
			HSPrefixes:     []string{"0506", "0507"},
			EUDRApplicable: false,
			RequiredDocs: withDocs(
				models.DocEUTraces,
				models.DocVetHealth,
			),
			Expectations: map[models.DocumentType]string{
				models.DocVetHealth: "Nigerian veterinary authority",
			},
		},
		models.ProductSweetPotato: {
			ProductType:    models.ProductSweetPotato,
			HSPrefixes:     []string{"0714"},
			EUDRApplicable: false,
			RequiredDocs:   withDocs(models.DocPhytosanitary, models.DocQuality),
		},
		models.ProductHibiscus: {
			ProductType:    models.ProductHibiscus,
			HSPrefixes:     []string{"0902"},
			EUDRApplicable: false,
			RequiredDocs:   withDocs(models.DocPhytosanitary, models.DocQuality),
		},
		models.ProductDriedGinger: {
			ProductType:    models.ProductDriedGinger,
			HSPrefixes:     []string{"0910"},
			EUDRApplicable: false,
			RequiredDocs:   withDocs(models.DocPhytosanitary, models.DocQuality),
		},
	}
	for _, pt := range []struct {
		t      models.ProductType
		prefix string
	}{
		{models.ProductCocoa, "1801"},
		{models.ProductCoffee, "0901"},
		{models.ProductPalmOil, "1511"},
		{models.ProductRubber, "4001"},
		{models.ProductSoy, "1201"},
	} {
		policies[pt.t] = Policy{
			ProductType:    pt.t,
			HSPrefixes:     []string{pt.prefix},
			EUDRApplicable: true,
			RequiredDocs:   withDocs(models.DocPhytosanitary, models.DocEUDRDueDiligence),
		}
	}
	return &Matrix{Version: "2026-08", policies: policies}
}

// Lookup returns the policy for a product type, falling back to the
// standard document set for unknown products.
func (m *Matrix) Lookup(pt models.ProductType) Policy {
	if p, ok := m.policies[pt]; ok {
		return p
	}
	return Policy{
		ProductType:    pt,
		EUDRApplicable: false,
		RequiredDocs:   withDocs(),
	}
}

// LookupHS resolves a policy by HS code prefix.
func (m *Matrix) LookupHS(hsCode string) (Policy, bool) {
	code := normalizeHS(hsCode)
	for _, p := range m.policies {
		for _, prefix := range p.HSPrefixes {
			if strings.HasPrefix(code, prefix) {
				return p, true
			}
		}
	}
	return Policy{}, false
}

// RequiredDocs returns the required document set for a product type.
func (m *Matrix) RequiredDocs(pt models.ProductType) []models.DocumentType {
	return m.Lookup(pt).RequiredDocs
}

// MissingDocs lists the required document types that have no document in
// at least the given status among the provided set.
func (m *Matrix) MissingDocs(pt models.ProductType, docs []models.Document, atLeast func(models.DocumentStatus) bool) []models.DocumentType {
	present := make(map[models.DocumentType]bool)
	for _, d := range docs {
		if d.IsPrimary && atLeast(d.Status) {
			present[d.Type] = true
		}
	}
	var missing []models.DocumentType
	for _, required := range m.RequiredDocs(pt) {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	return missing
}
