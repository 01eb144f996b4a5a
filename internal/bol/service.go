package bol

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// Service runs classification for uploaded documents and applies BoL
// enrichment to the parent shipment.
type Service struct {
	store      *store.Store
	blobs      blob.Store
	classifier Classifier

	// OnEnriched is invoked after a BoL rewrites shipment fields, so the
	// compliance engine re-evaluates with the new values.
	OnEnriched func(shipmentID string)
}

// NewService wires the parser.
func NewService(st *store.Store, blobs blob.Store, classifier Classifier) *Service {
	return &Service{store: st, blobs: blobs, classifier: classifier}
}

// ParseDocument classifies one uploaded document, persists the
// extraction, and enriches the shipment when the document is a Bill of
// Lading with extracted fields.
func (s *Service) ParseDocument(ctx context.Context, tc *tenant.Context, documentID string) (*Extraction, error) {
	var (
		doc      *models.Document
		fileData []byte
	)
	if err := s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		var err error
		doc, err = sess.GetDocument(ctx, documentID)
		return err
	}); err != nil {
		return nil, err
	}

	rc, err := s.blobs.Get(ctx, doc.FilePath)
	if err != nil {
		return nil, err
	}
	fileData, err = io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	ext, err := s.classifier.Classify(ctx, doc.FileName, fileData)
	if err != nil {
		metrics.BoLParsesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	outcome := "parsed"
	if ext.Data == nil {
		outcome = "fallback"
	}
	metrics.BoLParsesTotal.WithLabelValues(outcome).Inc()
	log.Info().
		Str("document_id", documentID).
		Str("detected_type", string(ext.Type)).
		Float64("confidence", ext.Confidence).
		Msg("Classified document")

	now := time.Now().UTC()
	var enriched []string
	if err := s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		if err := sess.SetDocumentCanonical(ctx, documentID, ext.Data, ext.Confidence, now); err != nil {
			return err
		}
		if doc.Type != models.DocBillOfLading || ext.Data == nil {
			return nil
		}
		// Enrichment rewrites the shipment row; serialize with the
		// tracking ingestor touching the same shipment.
		if err := sess.LockShipment(ctx, doc.ShipmentID); err != nil {
			return err
		}
		sh, err := sess.GetShipment(ctx, doc.ShipmentID)
		if err != nil {
			return err
		}
		enriched = Enrich(sh, ext.Data)
		if len(enriched) == 0 {
			return nil
		}
		if err := sess.UpdateShipment(ctx, sh); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      now,
			OrganizationID: doc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "shipment.enriched_from_bol",
			ResourceType:   "shipment",
			ResourceID:     doc.ShipmentID,
			Details:        map[string]any{"fields": enriched, "document_id": documentID},
		})
	}); err != nil {
		return nil, err
	}

	if len(enriched) > 0 && s.OnEnriched != nil {
		log.Debug().Str("shipment_id", doc.ShipmentID).Strs("fields", enriched).
			Msg("Shipment enriched from BoL, queueing re-evaluation")
		s.OnEnriched(doc.ShipmentID)
	}
	return ext, nil
}
