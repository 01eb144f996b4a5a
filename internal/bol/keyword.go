package bol

import (
	"context"
	"strings"

	"github.com/vibotaj/tracehub/internal/models"
)

// keywordSignals maps document types to phrases that identify them in
// extractable text. First match in table order wins; scores are the
// fraction of phrases found.
var keywordSignals = []struct {
	docType models.DocumentType
	phrases []string
}{
	{models.DocBillOfLading, []string{"bill of lading", "shipped on board", "ocean bill"}},
	{models.DocCommercialInvoice, []string{"commercial invoice", "invoice no", "total amount"}},
	{models.DocPackingList, []string{"packing list", "gross weight", "net weight"}},
	{models.DocCertOfOrigin, []string{"certificate of origin", "country of origin"}},
	{models.DocPhytosanitary, []string{"phytosanitary certificate", "plant protection"}},
	{models.DocVetHealth, []string{"veterinary health certificate", "animal health"}},
	{models.DocEUTraces, []string{"traces", "common health entry document"}},
	{models.DocEUDRDueDiligence, []string{"due diligence statement", "deforestation"}},
	{models.DocInsurance, []string{"insurance certificate", "insured value"}},
	{models.DocQuality, []string{"certificate of quality", "quality analysis"}},
}

// KeywordClassifier is the offline fallback used when no classification
// service is configured. It only identifies the document type from text
// fragments; it never produces field extraction, so BoL enrichment does
// not run on its output.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, fileName string, content []byte) (*Extraction, error) {
	text := strings.ToLower(string(content) + " " + fileName)
	best := &Extraction{
		Type:       models.DocOther,
		Confidence: 0,
		Method:     models.DetectionKeyword,
		Data:       &models.CanonicalData{SchemaVersion: 1},
	}
	for _, sig := range keywordSignals {
		hits := 0
		for _, p := range sig.phrases {
			if strings.Contains(text, p) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(sig.phrases))
		if score > best.Confidence {
			best.Type = sig.docType
			best.Confidence = score
		}
	}
	return best, nil
}
