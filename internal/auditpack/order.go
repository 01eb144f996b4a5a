// Package auditpack assembles the customs-ready evidence archive for a
// shipment: a generated index PDF, every primary document in a stable
// order, the container tracking log, and machine-readable metadata.
// Given the same inputs the archive bytes are reproducible; only the
// index PDF's own generation timestamp differs between runs.
package auditpack

import (
	"sort"
	"strings"

	"github.com/vibotaj/tracehub/internal/models"
)

// docRank fixes the archive ordering of document types. Types not listed
// sort after all listed ones, alphabetically.
var docRank = map[models.DocumentType]int{
	models.DocBillOfLading:      1,
	models.DocCommercialInvoice: 2,
	models.DocPackingList:       3,
	models.DocCertOfOrigin:      4,
	models.DocPhytosanitary:     5,
	models.DocVetHealth:         6,
	models.DocEUTraces:          7,
	models.DocQuality:           8,
	models.DocInsurance:         9,
	models.DocEUDRDueDiligence:  10,
}

// OrderDocuments sorts primary documents into the archive sequence.
func OrderDocuments(docs []*models.Document) []*models.Document {
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d.IsPrimary {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iKnown := docRank[out[i].Type]
		rj, jKnown := docRank[out[j].Type]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return out[i].Type < out[j].Type
		}
	})
	return out
}

// Slug renders a document type as an archive file stem, e.g.
// "bill_of_lading" becomes "bill-of-lading".
func Slug(t models.DocumentType) string {
	return strings.ReplaceAll(string(t), "_", "-")
}
