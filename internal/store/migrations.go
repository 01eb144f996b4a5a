package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migration is one ordered schema step. Steps run inside a transaction
// and are recorded in schema_migrations; reruns are no-ops.
type migration struct {
	version int
	name    string
	sql     string
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`,
			m.version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if exists {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		log.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}
	return nil
}

var migrations = []migration{
	{1, "identity", `
CREATE TABLE organizations (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	slug          TEXT NOT NULL UNIQUE,
	org_type      TEXT NOT NULL CHECK (org_type IN ('platform','buyer','supplier','agent')),
	status        TEXT NOT NULL DEFAULT 'active',
	contact_email TEXT,
	contact_phone TEXT,
	address       JSONB NOT NULL DEFAULT '{}',
	settings      JSONB NOT NULL DEFAULT '{"schemaVersion":1}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at    TIMESTAMPTZ
);
CREATE UNIQUE INDEX organizations_one_platform
	ON organizations ((org_type)) WHERE org_type = 'platform';

CREATE TABLE users (
	id              UUID PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	full_name       TEXT NOT NULL DEFAULT '',
	system_role     TEXT NOT NULL DEFAULT 'viewer',
	organization_id UUID NOT NULL REFERENCES organizations(id),
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at      TIMESTAMPTZ,
	deleted_by      UUID
);

CREATE TABLE memberships (
	id              UUID PRIMARY KEY,
	user_id         UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	organization_id UUID NOT NULL REFERENCES organizations(id),
	org_role        TEXT NOT NULL CHECK (org_role IN ('admin','manager','member','viewer')),
	is_primary      BOOLEAN NOT NULL DEFAULT false,
	status          TEXT NOT NULL DEFAULT 'active',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, organization_id)
);
CREATE UNIQUE INDEX memberships_one_primary
	ON memberships (user_id) WHERE is_primary;

CREATE TABLE invitations (
	id              UUID PRIMARY KEY,
	organization_id UUID NOT NULL REFERENCES organizations(id),
	email           TEXT NOT NULL,
	org_role        TEXT NOT NULL,
	token_hash      TEXT NOT NULL UNIQUE,
	status          TEXT NOT NULL DEFAULT 'pending',
	expires_at      TIMESTAMPTZ NOT NULL,
	created_by      UUID NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	accepted_at     TIMESTAMPTZ
);
CREATE INDEX invitations_org ON invitations (organization_id, status);
`},
	{2, "shipments", `
CREATE TABLE shipments (
	id                    UUID PRIMARY KEY,
	organization_id       UUID NOT NULL REFERENCES organizations(id),
	buyer_organization_id UUID REFERENCES organizations(id),
	reference             TEXT NOT NULL,
	container_number      TEXT,
	product_type          TEXT NOT NULL,
	bl_number             TEXT,
	vessel                TEXT,
	voyage                TEXT,
	pol_code              TEXT,
	pol_name              TEXT,
	pod_code              TEXT,
	pod_name              TEXT,
	etd                   TIMESTAMPTZ,
	eta                   TIMESTAMPTZ,
	atd                   TIMESTAMPTZ,
	ata                   TIMESTAMPTZ,
	incoterms             TEXT,
	status                TEXT NOT NULL DEFAULT 'draft',
	is_historical         BOOLEAN NOT NULL DEFAULT false,
	tracking_suspended    BOOLEAN NOT NULL DEFAULT false,
	last_polled_at        TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (organization_id, reference)
);
CREATE INDEX shipments_status ON shipments (status) WHERE NOT tracking_suspended;
CREATE INDEX shipments_buyer ON shipments (buyer_organization_id)
	WHERE buyer_organization_id IS NOT NULL;

CREATE TABLE products (
	id                UUID PRIMARY KEY,
	shipment_id       UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	organization_id   UUID NOT NULL REFERENCES organizations(id),
	hs_code           TEXT NOT NULL,
	description       TEXT,
	quantity_net_kg   DOUBLE PRECISION,
	quantity_gross_kg DOUBLE PRECISION
);
CREATE INDEX products_shipment ON products (shipment_id);

CREATE TABLE origins (
	id                    UUID PRIMARY KEY,
	shipment_id           UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	product_id            UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	organization_id       UUID NOT NULL REFERENCES organizations(id),
	farm_plot_identifier  TEXT,
	latitude              DOUBLE PRECISION NOT NULL,
	longitude             DOUBLE PRECISION NOT NULL,
	polygon               TEXT,
	country               TEXT,
	production_start_date TIMESTAMPTZ,
	production_end_date   TIMESTAMPTZ,
	deforestation_free    TEXT
);
CREATE INDEX origins_product ON origins (product_id);

-- Geolocation evidence is meaningless for excluded animal by-products;
-- writing it for HS 0506/0507 is always a caller bug.
CREATE FUNCTION reject_excluded_product_origin() RETURNS trigger AS $$
BEGIN
	IF EXISTS (
		SELECT 1 FROM products p
		WHERE p.id = NEW.product_id
		  AND (p.hs_code LIKE '0506%' OR p.hs_code LIKE '0507%')
	) THEN
		RAISE EXCEPTION 'origin data not allowed for HS 0506/0507 products'
			USING ERRCODE = '23514';
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
CREATE TRIGGER origins_no_excluded_products
	BEFORE INSERT OR UPDATE ON origins
	FOR EACH ROW EXECUTE FUNCTION reject_excluded_product_origin();
`},
	{3, "documents", `
CREATE TABLE documents (
	id                UUID PRIMARY KEY,
	shipment_id       UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	organization_id   UUID NOT NULL REFERENCES organizations(id),
	document_type     TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'draft',
	file_name         TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	file_size         BIGINT NOT NULL DEFAULT 0,
	mime_type         TEXT NOT NULL DEFAULT 'application/octet-stream',
	checksum          TEXT,
	reference_number  TEXT,
	issue_date        TIMESTAMPTZ,
	expiry_date       TIMESTAMPTZ,
	issuing_authority TEXT,
	canonical_data    JSONB,
	version           INTEGER NOT NULL DEFAULT 1,
	is_primary        BOOLEAN NOT NULL DEFAULT true,
	supersedes_id     UUID REFERENCES documents(id),
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	parsed_at         TIMESTAMPTZ,
	last_validated_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX documents_one_primary
	ON documents (shipment_id, document_type) WHERE is_primary;
CREATE INDEX documents_expiry ON documents (expiry_date)
	WHERE expiry_date IS NOT NULL AND status NOT IN ('archived','rejected','expired');

CREATE TABLE document_contents (
	id               UUID PRIMARY KEY,
	document_id      UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	document_type    TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'draft',
	page_start       INTEGER NOT NULL,
	page_end         INTEGER NOT NULL,
	reference_number TEXT,
	detected_fields  JSONB,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	detection_method TEXT NOT NULL DEFAULT 'keyword'
);

CREATE TABLE document_issues (
	id              UUID PRIMARY KEY,
	document_id     UUID REFERENCES documents(id) ON DELETE CASCADE,
	shipment_id     UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	rule_id         TEXT NOT NULL,
	rule_name       TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	field           TEXT,
	expected_value  TEXT,
	actual_value    TEXT,
	is_overridden   BOOLEAN NOT NULL DEFAULT false,
	overridden_by   UUID,
	override_reason TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX document_issues_shipment ON document_issues (shipment_id);

CREATE TABLE compliance_results (
	id          UUID PRIMARY KEY,
	document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
	shipment_id UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	rule_id     TEXT NOT NULL,
	passed      BOOLEAN NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL,
	checked_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX compliance_results_shipment ON compliance_results (shipment_id, checked_at DESC);

CREATE TABLE reference_registry (
	shipment_id      UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	reference_number TEXT NOT NULL,
	document_type    TEXT NOT NULL,
	first_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (shipment_id, reference_number, document_type)
);
`},
	{4, "tracking_and_audit", `
CREATE TABLE container_events (
	id            UUID PRIMARY KEY,
	shipment_id   UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
	event_status  TEXT NOT NULL,
	event_time    TIMESTAMPTZ NOT NULL,
	location_code TEXT,
	location_name TEXT,
	vessel        TEXT,
	voyage        TEXT,
	source        TEXT NOT NULL,
	raw_payload   JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (shipment_id, event_status, event_time, source)
);
CREATE INDEX container_events_shipment ON container_events (shipment_id, event_time);

CREATE TABLE audit_log (
	id              UUID PRIMARY KEY,
	ts              TIMESTAMPTZ NOT NULL DEFAULT now(),
	organization_id UUID,
	user_id         TEXT,
	action          TEXT NOT NULL,
	resource_type   TEXT NOT NULL,
	resource_id     TEXT NOT NULL,
	details         JSONB,
	request_id      TEXT
);
CREATE INDEX audit_log_org_ts ON audit_log (organization_id, ts DESC);
CREATE INDEX audit_log_resource ON audit_log (resource_type, resource_id);

-- Append-only: the log is evidence, not state.
CREATE RULE audit_log_no_update AS ON UPDATE TO audit_log DO INSTEAD NOTHING;
CREATE RULE audit_log_no_delete AS ON DELETE TO audit_log DO INSTEAD NOTHING;
`},
	{5, "notifications", `
CREATE TABLE notifications (
	id              UUID PRIMARY KEY,
	organization_id UUID NOT NULL REFERENCES organizations(id),
	user_id         UUID,
	notify_type     TEXT NOT NULL,
	title           TEXT NOT NULL,
	body            TEXT,
	resource_type   TEXT,
	resource_id     TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	read_at         TIMESTAMPTZ,
	emailed_at      TIMESTAMPTZ,
	attempts        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX notifications_inbox ON notifications (organization_id, user_id, created_at DESC);
CREATE INDEX notifications_outbox ON notifications (created_at)
	WHERE emailed_at IS NULL;

CREATE TABLE notification_preferences (
	user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	notify_type TEXT NOT NULL,
	in_app      BOOLEAN NOT NULL DEFAULT true,
	email       BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (user_id, notify_type)
);
`},
	{6, "row_level_security", `
CREATE FUNCTION current_org() RETURNS uuid AS $$
	SELECT NULLIF(current_setting('tracehub.current_org_id', true), '')::uuid
$$ LANGUAGE sql STABLE;

CREATE FUNCTION is_system_admin() RETURNS boolean AS $$
	SELECT COALESCE(current_setting('tracehub.is_system_admin', true), 'off') = 'on'
$$ LANGUAGE sql STABLE;

ALTER TABLE shipments ENABLE ROW LEVEL SECURITY;
ALTER TABLE shipments FORCE ROW LEVEL SECURITY;
-- The buyer organization named on a shipment can read it but not write it.
CREATE POLICY shipments_read ON shipments FOR SELECT
	USING (is_system_admin()
		OR organization_id = current_org()
		OR buyer_organization_id = current_org());
CREATE POLICY shipments_write ON shipments
	USING (is_system_admin() OR organization_id = current_org())
	WITH CHECK (is_system_admin() OR organization_id = current_org());

ALTER TABLE products ENABLE ROW LEVEL SECURITY;
ALTER TABLE products FORCE ROW LEVEL SECURITY;
CREATE POLICY products_tenant ON products
	USING (is_system_admin() OR organization_id = current_org()
		OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR organization_id = current_org());

ALTER TABLE origins ENABLE ROW LEVEL SECURITY;
ALTER TABLE origins FORCE ROW LEVEL SECURITY;
CREATE POLICY origins_tenant ON origins
	USING (is_system_admin() OR organization_id = current_org()
		OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR organization_id = current_org());

ALTER TABLE documents ENABLE ROW LEVEL SECURITY;
ALTER TABLE documents FORCE ROW LEVEL SECURITY;
CREATE POLICY documents_read ON documents FOR SELECT
	USING (is_system_admin() OR organization_id = current_org()
		OR shipment_id IN (SELECT id FROM shipments));
CREATE POLICY documents_write ON documents
	USING (is_system_admin() OR organization_id = current_org())
	WITH CHECK (is_system_admin() OR organization_id = current_org());

ALTER TABLE document_issues ENABLE ROW LEVEL SECURITY;
ALTER TABLE document_issues FORCE ROW LEVEL SECURITY;
CREATE POLICY document_issues_tenant ON document_issues
	USING (is_system_admin() OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR shipment_id IN (SELECT id FROM shipments));

ALTER TABLE compliance_results ENABLE ROW LEVEL SECURITY;
ALTER TABLE compliance_results FORCE ROW LEVEL SECURITY;
CREATE POLICY compliance_results_tenant ON compliance_results
	USING (is_system_admin() OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR shipment_id IN (SELECT id FROM shipments));

ALTER TABLE reference_registry ENABLE ROW LEVEL SECURITY;
ALTER TABLE reference_registry FORCE ROW LEVEL SECURITY;
CREATE POLICY reference_registry_tenant ON reference_registry
	USING (is_system_admin() OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR shipment_id IN (SELECT id FROM shipments));

ALTER TABLE container_events ENABLE ROW LEVEL SECURITY;
ALTER TABLE container_events FORCE ROW LEVEL SECURITY;
CREATE POLICY container_events_tenant ON container_events
	USING (is_system_admin() OR shipment_id IN (SELECT id FROM shipments))
	WITH CHECK (is_system_admin() OR shipment_id IN (SELECT id FROM shipments));

ALTER TABLE invitations ENABLE ROW LEVEL SECURITY;
ALTER TABLE invitations FORCE ROW LEVEL SECURITY;
CREATE POLICY invitations_tenant ON invitations
	USING (is_system_admin() OR organization_id = current_org())
	WITH CHECK (is_system_admin() OR organization_id = current_org());

ALTER TABLE audit_log ENABLE ROW LEVEL SECURITY;
ALTER TABLE audit_log FORCE ROW LEVEL SECURITY;
CREATE POLICY audit_log_read ON audit_log FOR SELECT
	USING (is_system_admin() OR organization_id = current_org());
CREATE POLICY audit_log_insert ON audit_log FOR INSERT
	WITH CHECK (true);

ALTER TABLE notifications ENABLE ROW LEVEL SECURITY;
ALTER TABLE notifications FORCE ROW LEVEL SECURITY;
CREATE POLICY notifications_tenant ON notifications
	USING (is_system_admin() OR organization_id = current_org())
	WITH CHECK (is_system_admin() OR organization_id = current_org());
`},
}
