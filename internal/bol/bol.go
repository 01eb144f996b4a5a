// Package bol turns uploaded trade documents into structured data and
// back-fills shipment fields from a parsed Bill of Lading. The parsed
// BoL is authoritative: its B/L number always wins, while other fields
// only fill gaps.
package bol

import (
	"context"

	"github.com/vibotaj/tracehub/internal/models"
)

// Extraction is one classifier result for a document or sub-document.
type Extraction struct {
	Type       models.DocumentType    `json:"documentType"`
	Confidence float64                `json:"confidence"`
	Method     models.DetectionMethod `json:"detectionMethod"`
	Data       *models.CanonicalData  `json:"data"`
}

// Classifier extracts structured fields from raw document bytes.
// Implementations: the HTTP driver against the classification service,
// and the keyword fallback used when no service is configured.
type Classifier interface {
	Classify(ctx context.Context, fileName string, content []byte) (*Extraction, error)
}
