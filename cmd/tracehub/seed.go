package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/config"
	"github.com/vibotaj/tracehub/internal/logging"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the platform organization and demo tenants",
	Long:  `Seeds the platform organization plus two demo tenants (a supplier and a buyer) with admin accounts and a sample shipment. Safe to rerun: existing slugs are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Config{Format: "auto", Level: "info", Component: "tracehub"})
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		return seed(ctx, st)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "changeme", "password for the seeded admin accounts")
	rootCmd.AddCommand(seedCmd)
}

func seed(ctx context.Context, st *store.Store) error {
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return st.WithSession(ctx, tenant.System(), func(sess *store.Session) error {
		platform, err := ensureOrg(ctx, sess, &models.Organization{
			Name: "TraceHub Platform", Slug: "tracehub", Type: models.OrgTypePlatform,
		}, now)
		if err != nil {
			return err
		}
		supplier, err := ensureOrg(ctx, sess, &models.Organization{
			Name: "VIBOTAJ Global Nig Ltd", Slug: "vibotaj", Type: models.OrgTypeSupplier,
			ContactEmail: "ops@vibotaj.example",
			Address:      models.Address{City: "Lagos", Country: "NG"},
		}, now)
		if err != nil {
			return err
		}
		buyer, err := ensureOrg(ctx, sess, &models.Organization{
			Name: "HAGES GmbH", Slug: "hages", Type: models.OrgTypeBuyer,
			ContactEmail: "import@hages.example",
			Address:      models.Address{City: "Hamburg", Country: "DE"},
		}, now)
		if err != nil {
			return err
		}

		if err := ensureUser(ctx, sess, "admin@tracehub.example", "Platform Admin", models.RoleAdmin, platform.ID, hash, now); err != nil {
			return err
		}
		if err := ensureUser(ctx, sess, "admin@vibotaj.example", "VIBOTAJ Admin", models.RoleSupplier, supplier.ID, hash, now); err != nil {
			return err
		}
		if err := ensureUser(ctx, sess, "buyer@hages.example", "HAGES Buyer", models.RoleBuyer, buyer.ID, hash, now); err != nil {
			return err
		}

		return ensureDemoShipment(ctx, sess, supplier.ID, buyer.ID, now)
	})
}

func ensureOrg(ctx context.Context, sess *store.Session, org *models.Organization, now time.Time) (*models.Organization, error) {
	existing, err := sess.GetOrganizationBySlug(ctx, org.Slug)
	if err == nil {
		log.Info().Str("slug", org.Slug).Msg("Organization already seeded")
		return existing, nil
	}
	org.ID = uuid.NewString()
	org.Status = models.OrgStatusActive
	org.Settings = models.OrgSettings{SchemaVersion: 1}
	org.CreatedAt = now
	org.UpdatedAt = now
	if err := sess.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	log.Info().Str("slug", org.Slug).Str("id", org.ID).Msg("Seeded organization")
	return org, nil
}

func ensureUser(ctx context.Context, sess *store.Session, email, name string, role models.SystemRole, orgID, hash string, now time.Time) error {
	if _, err := sess.GetUserByEmail(ctx, email); err == nil {
		log.Info().Str("email", email).Msg("User already seeded")
		return nil
	}
	u := &models.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		FullName:       name,
		Role:           role,
		OrganizationID: orgID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := sess.CreateUser(ctx, u); err != nil {
		return err
	}
	if err := sess.CreateMembership(ctx, &models.Membership{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		OrganizationID: orgID,
		OrgRole:        models.OrgRoleAdmin,
		IsPrimary:      true,
		Status:         models.MembershipActive,
		CreatedAt:      now,
	}); err != nil {
		return err
	}
	log.Info().Str("email", email).Msg("Seeded user")
	return nil
}

// ensureDemoShipment creates one horn/hoof shipment from Lagos to
// Hamburg, the scenario the demo tenants exercise.
func ensureDemoShipment(ctx context.Context, sess *store.Session, supplierID, buyerID string, now time.Time) error {
	const reference = "VIB-2025-001"
	existing, err := sess.ListShipments(ctx, store.ShipmentFilter{Reference: reference, Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info().Str("reference", reference).Msg("Demo shipment already seeded")
		return nil
	}
	sh := &models.Shipment{
		ID:                  uuid.NewString(),
		OrganizationID:      supplierID,
		BuyerOrganizationID: buyerID,
		Reference:           reference,
		ContainerNumber:     "MSKU1234565",
		ProductType:         models.ProductHornHoof,
		POLCode:             "NGAPP",
		POLName:             "Apapa, Lagos",
		PODCode:             "DEHAM",
		PODName:             "Hamburg",
		Incoterms:           "FOB",
		Status:              models.ShipmentDraft,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := sess.CreateShipment(ctx, sh); err != nil {
		return err
	}
	if err := sess.CreateProduct(ctx, &models.Product{
		ID:             uuid.NewString(),
		ShipmentID:     sh.ID,
		OrganizationID: supplierID,
		HSCode:         "05069000",
		Description:    "Cattle horns and hooves, crushed",
		QuantityNetKg:  24000,
		QuantityGrossKg: 24480,
	}); err != nil {
		return err
	}
	log.Info().Str("reference", reference).Str("id", sh.ID).Msg("Seeded demo shipment")
	return nil
}
