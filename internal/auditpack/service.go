package auditpack

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// Service builds audit packs. It is a read-only consumer of shipment
// data; its only write is the finished archive and the audit row.
type Service struct {
	store  *store.Store
	blobs  blob.Store
	engine *compliance.Engine
}

// NewService wires the assembler.
func NewService(st *store.Store, blobs blob.Store, engine *compliance.Engine) *Service {
	return &Service{store: st, blobs: blobs, engine: engine}
}

// Result describes a finished pack.
type Result struct {
	Key       string    `json:"key"`
	FileName  string    `json:"fileName"`
	Size      int       `json:"size"`
	BuiltAt   time.Time `json:"builtAt"`
	SignedURL string    `json:"signedUrl,omitempty"`
}

// Build assembles the archive for one shipment and stores it in the
// audit-packs bucket.
func (s *Service) Build(ctx context.Context, tc *tenant.Context, shipmentID string) (*Result, error) {
	var data *Data
	err := s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		sh, err := sess.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := tenant.Authorize(tc, tenant.PermAuditPacksBuild, sh.OrganizationID, sh.BuyerOrganizationID); err != nil {
			return err
		}
		owner, err := sess.GetOrganization(ctx, sh.OrganizationID)
		if err != nil {
			return err
		}
		var buyer *models.Organization
		if sh.BuyerOrganizationID != "" {
			if buyer, err = sess.GetOrganization(ctx, sh.BuyerOrganizationID); err != nil {
				return err
			}
		}
		products, err := sess.ListProducts(ctx, shipmentID)
		if err != nil {
			return err
		}
		origins, err := sess.ListOrigins(ctx, shipmentID)
		if err != nil {
			return err
		}
		docs, err := sess.ListDocuments(ctx, shipmentID)
		if err != nil {
			return err
		}
		events, err := sess.ListContainerEvents(ctx, shipmentID)
		if err != nil {
			return err
		}
		issues, err := sess.ListIssues(ctx, shipmentID)
		if err != nil {
			return err
		}
		data = &Data{
			Shipment:    sh,
			Owner:       owner,
			Buyer:       buyer,
			Products:    products,
			Origins:     origins,
			Documents:   OrderDocuments(docs),
			Events:      events,
			Issues:      issues,
			Decision:    decisionFromIssues(issues),
			Matrix:      s.engine.Matrix(),
			GeneratedAt: time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries, err := BuildEntries(data, func(key string) (io.ReadCloser, error) {
		return s.blobs.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	archive, err := BuildArchive(entries)
	if err != nil {
		return nil, err
	}

	fileName := ArchiveName(data.Shipment.Reference)
	key := blob.Key(blob.BucketAuditPacks, data.Shipment.OrganizationID, shipmentID, fileName)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(archive), "application/zip"); err != nil {
		return nil, err
	}

	err = s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      data.GeneratedAt,
			OrganizationID: data.Shipment.OrganizationID,
			UserID:         tc.UserID,
			Action:         "audit_pack.built",
			ResourceType:   "shipment",
			ResourceID:     shipmentID,
			Details:        map[string]any{"key": key, "size": len(archive), "entries": len(entries)},
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("shipment_id", shipmentID).Int("size", len(archive)).Msg("Audit pack built")

	url, err := s.blobs.SignedURL(ctx, key, blob.SignedURLTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to presign audit pack URL")
		url = ""
	}
	return &Result{
		Key:       key,
		FileName:  fileName,
		Size:      len(archive),
		BuiltAt:   data.GeneratedAt,
		SignedURL: url,
	}, nil
}

// decisionFromIssues derives the pack's headline decision from the
// stored issue set, mirroring engine aggregation.
func decisionFromIssues(issues []*models.DocumentIssue) string {
	decision := string(compliance.DecisionApprove)
	warned := false
	for _, is := range issues {
		if is.IsOverridden {
			continue
		}
		switch is.Severity {
		case models.SeverityError:
			return string(compliance.DecisionReject)
		case models.SeverityWarning:
			warned = true
		}
	}
	if warned {
		decision = string(compliance.DecisionHold)
	}
	return decision
}
