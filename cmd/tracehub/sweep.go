package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/invitations"
	"github.com/vibotaj/tracehub/internal/lifecycle"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/notifications"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

const (
	sweepInterval = time.Hour
	// Archive window for tenants that never configured one.
	defaultArchiveAfterDays = 90
)

// runSweepers owns the periodic housekeeping passes: stale invitations,
// expired documents, and delivered shipments past the archive window.
// One pass runs at startup so a restarted instance catches up immediately.
func runSweepers(ctx context.Context, st *store.Store, bus *notifications.Bus, inv *invitations.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		sweepOnce(ctx, st, bus, inv)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, st *store.Store, bus *notifications.Bus, inv *invitations.Service) {
	if n, err := inv.ExpireStale(ctx); err != nil {
		log.Error().Err(err).Msg("Invitation expiry sweep failed")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("Expired stale invitations")
	}
	sweepExpiredDocuments(ctx, st, bus)
	sweepArchivable(ctx, st)
}

// sweepExpiredDocuments moves documents past their expiry date into the
// expired state and notifies the owning organization. Documents whose
// current state has no path to expired (already archived or rejected)
// are left alone.
func sweepExpiredDocuments(ctx context.Context, st *store.Store, bus *notifications.Bus) {
	now := time.Now().UTC()
	var expired []*models.Document
	err := st.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		docs, err := sess.ListExpiredDocuments(ctx, now)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if !lifecycle.CanDocTransition(d.Status, models.DocExpired) {
				continue
			}
			if err := sess.UpdateDocumentStatus(ctx, d.ID, models.DocExpired); err != nil {
				return err
			}
			if err := sess.AppendAudit(ctx, &models.AuditEntry{
				ID:             uuid.NewString(),
				Timestamp:      now,
				OrganizationID: d.OrganizationID,
				UserID:         "system",
				Action:         "document.status_changed",
				ResourceType:   "document",
				ResourceID:     d.ID,
				Details:        map[string]any{"from": string(d.Status), "to": string(models.DocExpired), "expiry_date": d.ExpiryDate},
			}); err != nil {
				return err
			}
			expired = append(expired, d)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Document expiry sweep failed")
		return
	}
	for _, d := range expired {
		bus.Publish(ctx, &models.Notification{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte("document-expired:"+d.ID)).String(),
			OrganizationID: d.OrganizationID,
			Type:           models.NotifyDocumentExpired,
			Title:          "Document expired: " + d.FileName,
			Body:           "The " + string(d.Type) + " on shipment " + d.ShipmentID + " passed its expiry date and needs replacement.",
			ResourceType:   "document",
			ResourceID:     d.ID,
		})
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("Expired documents past their expiry date")
	}
}

// sweepArchivable archives delivered shipments quiet for longer than
// their tenant's archive window.
func sweepArchivable(ctx context.Context, st *store.Store) {
	now := time.Now().UTC()
	var archived int
	err := st.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		orgs, err := sess.ListOrganizations(ctx)
		if err != nil {
			return err
		}
		windows := make(map[string]time.Duration, len(orgs))
		for _, org := range orgs {
			days := org.Settings.ArchiveAfterDays
			if days <= 0 {
				days = defaultArchiveAfterDays
			}
			windows[org.ID] = time.Duration(days) * 24 * time.Hour
		}
		shipments, err := sess.ListArchivable(ctx, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		for _, sh := range shipments {
			window, ok := windows[sh.OrganizationID]
			if !ok {
				window = defaultArchiveAfterDays * 24 * time.Hour
			}
			if sh.UpdatedAt.After(now.Add(-window)) {
				continue
			}
			if err := lifecycle.ShipmentTransition(sh.Status, models.ShipmentArchived); err != nil {
				continue
			}
			if err := sess.UpdateShipmentStatus(ctx, sh.ID, models.ShipmentArchived); err != nil {
				return err
			}
			if err := sess.AppendAudit(ctx, &models.AuditEntry{
				ID:             uuid.NewString(),
				Timestamp:      now,
				OrganizationID: sh.OrganizationID,
				UserID:         "system",
				Action:         "shipment.status_changed",
				ResourceType:   "shipment",
				ResourceID:     sh.ID,
				Details:        map[string]any{"from": string(sh.Status), "to": string(models.ShipmentArchived)},
			}); err != nil {
				return err
			}
			archived++
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Shipment archive sweep failed")
		return
	}
	if archived > 0 {
		log.Info().Int("count", archived).Msg("Archived delivered shipments")
	}
}
