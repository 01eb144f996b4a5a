package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

const shipmentColumns = `id, organization_id, buyer_organization_id, reference,
	container_number, product_type, bl_number, vessel, voyage,
	pol_code, pol_name, pod_code, pod_name, etd, eta, atd, ata, incoterms,
	status, is_historical, tracking_suspended, last_polled_at, created_at, updated_at`

// CreateShipment inserts a shipment in draft.
func (sess *Session) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO shipments
			(id, organization_id, buyer_organization_id, reference, container_number,
			 product_type, bl_number, vessel, voyage, pol_code, pol_name, pod_code, pod_name,
			 etd, eta, atd, ata, incoterms, status, is_historical)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		sh.ID, sh.OrganizationID, nullStr(sh.BuyerOrganizationID), sh.Reference,
		nullStr(sh.ContainerNumber), string(sh.ProductType), nullStr(sh.BLNumber),
		nullStr(sh.Vessel), nullStr(sh.Voyage),
		nullStr(sh.POLCode), nullStr(sh.POLName), nullStr(sh.PODCode), nullStr(sh.PODName),
		nullTime(sh.ETD), nullTime(sh.ETA), nullTime(sh.ATD), nullTime(sh.ATA),
		nullStr(sh.Incoterms), string(sh.Status), sh.IsHistorical)
	return mapPQError("store.create_shipment", err)
}

func scanShipment(row interface{ Scan(...any) error }) (*models.Shipment, error) {
	var (
		sh                                       models.Shipment
		buyer, container, bl, vessel, voyage     sql.NullString
		polCode, polName, podCode, podName, inco sql.NullString
		etd, eta, atd, ata, lastPolled           sql.NullTime
	)
	err := row.Scan(&sh.ID, &sh.OrganizationID, &buyer, &sh.Reference,
		&container, (*string)(&sh.ProductType), &bl, &vessel, &voyage,
		&polCode, &polName, &podCode, &podName, &etd, &eta, &atd, &ata, &inco,
		(*string)(&sh.Status), &sh.IsHistorical, &sh.TrackingSuspended,
		&lastPolled, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sh.BuyerOrganizationID = strOf(buyer)
	sh.ContainerNumber = strOf(container)
	sh.BLNumber = strOf(bl)
	sh.Vessel = strOf(vessel)
	sh.Voyage = strOf(voyage)
	sh.POLCode, sh.POLName = strOf(polCode), strOf(polName)
	sh.PODCode, sh.PODName = strOf(podCode), strOf(podName)
	sh.Incoterms = strOf(inco)
	sh.ETD, sh.ETA, sh.ATD, sh.ATA = timeOf(etd), timeOf(eta), timeOf(atd), timeOf(ata)
	sh.LastPolledAt = timeOf(lastPolled)
	return &sh, nil
}

// GetShipment fetches one shipment visible to the session's tenant.
func (sess *Session) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if err != nil {
		return nil, mapPQError("store.get_shipment", err)
	}
	return sh, nil
}

// ShipmentFilter narrows ListShipments. Zero values mean no filter.
type ShipmentFilter struct {
	Status      models.ShipmentStatus
	ProductType models.ProductType
	Reference   string
	Limit       int
	Offset      int
}

// ListShipments returns shipments visible to the tenant, newest first.
// Row-level policies already scope the rows; filters only narrow them.
func (sess *Session) ListShipments(ctx context.Context, f ShipmentFilter) ([]*models.Shipment, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ProductType != "" {
		args = append(args, string(f.ProductType))
		where = append(where, fmt.Sprintf("product_type = $%d", len(args)))
	}
	if f.Reference != "" {
		args = append(args, "%"+f.Reference+"%")
		where = append(where, fmt.Sprintf("reference ILIKE $%d", len(args)))
	}
	q := `SELECT ` + shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := sess.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapPQError("store.list_shipments", err)
	}
	defer rows.Close()
	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, mapPQError("store.list_shipments", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// UpdateShipment persists mutable shipment fields. Status changes go
// through UpdateShipmentStatus so the transition log stays coherent.
func (sess *Session) UpdateShipment(ctx context.Context, sh *models.Shipment) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE shipments SET
			buyer_organization_id = $2, container_number = $3, bl_number = $4,
			vessel = $5, voyage = $6, pol_code = $7, pol_name = $8,
			pod_code = $9, pod_name = $10, etd = $11, eta = $12, atd = $13, ata = $14,
			incoterms = $15, is_historical = $16, updated_at = now()
		WHERE id = $1`,
		sh.ID, nullStr(sh.BuyerOrganizationID), nullStr(sh.ContainerNumber),
		nullStr(sh.BLNumber), nullStr(sh.Vessel), nullStr(sh.Voyage),
		nullStr(sh.POLCode), nullStr(sh.POLName), nullStr(sh.PODCode), nullStr(sh.PODName),
		nullTime(sh.ETD), nullTime(sh.ETA), nullTime(sh.ATD), nullTime(sh.ATA),
		nullStr(sh.Incoterms), sh.IsHistorical)
	if err != nil {
		return mapPQError("store.update_shipment", err)
	}
	return requireRow(res, "store.update_shipment")
}

// UpdateShipmentStatus writes a status the caller has already validated
// against the lifecycle table.
func (sess *Session) UpdateShipmentStatus(ctx context.Context, id string, status models.ShipmentStatus) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE shipments SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return mapPQError("store.update_shipment_status", err)
	}
	return requireRow(res, "store.update_shipment_status")
}

// SetTrackingSuspended flips the poller suspension flag.
func (sess *Session) SetTrackingSuspended(ctx context.Context, id string, suspended bool) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE shipments SET tracking_suspended = $2, updated_at = now() WHERE id = $1`,
		id, suspended)
	if err != nil {
		return mapPQError("store.set_tracking_suspended", err)
	}
	return requireRow(res, "store.set_tracking_suspended")
}

// TouchLastPolled records a completed poll attempt.
func (sess *Session) TouchLastPolled(ctx context.Context, id string, at time.Time) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE shipments SET last_polled_at = $2 WHERE id = $1`, id, at)
	return mapPQError("store.touch_last_polled", err)
}

// ListShipmentsDueForPolling returns trackable shipments whose last poll
// is older than the per-status interval. Runs on a system session; the
// interval map comes from configuration.
func (sess *Session) ListShipmentsDueForPolling(ctx context.Context, now time.Time, intervals map[models.ShipmentStatus]time.Duration) ([]*models.Shipment, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+shipmentColumns+` FROM shipments
		WHERE status IN ('docs_complete','in_transit','arrived','customs')
		  AND NOT tracking_suspended
		  AND NOT is_historical
		  AND container_number IS NOT NULL
		ORDER BY last_polled_at NULLS FIRST`)
	if err != nil {
		return nil, mapPQError("store.list_due_for_polling", err)
	}
	defer rows.Close()
	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, mapPQError("store.list_due_for_polling", err)
		}
		interval, ok := intervals[sh.Status]
		if !ok {
			continue
		}
		if sh.LastPolledAt == nil || now.Sub(*sh.LastPolledAt) >= interval {
			out = append(out, sh)
		}
	}
	return out, rows.Err()
}

// ListArchivable returns delivered shipments quiet for longer than the
// tenant's archive window.
func (sess *Session) ListArchivable(ctx context.Context, cutoff time.Time) ([]*models.Shipment, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+shipmentColumns+` FROM shipments
		WHERE status = 'delivered' AND updated_at < $1`, cutoff)
	if err != nil {
		return nil, mapPQError("store.list_archivable", err)
	}
	defer rows.Close()
	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, mapPQError("store.list_archivable", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// CreateProduct adds one commodity line.
func (sess *Session) CreateProduct(ctx context.Context, p *models.Product) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO products (id, shipment_id, organization_id, hs_code, description,
			quantity_net_kg, quantity_gross_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ShipmentID, p.OrganizationID, p.HSCode, nullStr(p.Description),
		p.QuantityNetKg, p.QuantityGrossKg)
	return mapPQError("store.create_product", err)
}

// ListProducts returns a shipment's commodity lines.
func (sess *Session) ListProducts(ctx context.Context, shipmentID string) ([]*models.Product, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, shipment_id, organization_id, hs_code, description,
			COALESCE(quantity_net_kg, 0), COALESCE(quantity_gross_kg, 0)
		FROM products WHERE shipment_id = $1 ORDER BY hs_code`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_products", err)
	}
	defer rows.Close()
	var out []*models.Product
	for rows.Next() {
		var (
			p    models.Product
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ShipmentID, &p.OrganizationID, &p.HSCode,
			&desc, &p.QuantityNetKg, &p.QuantityGrossKg); err != nil {
			return nil, mapPQError("store.list_products", err)
		}
		p.Description = strOf(desc)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CreateOrigin stores EUDR geolocation evidence for one product. The
// database trigger rejects it for excluded HS 0506/0507 products.
func (sess *Session) CreateOrigin(ctx context.Context, o *models.Origin) error {
	_, err := sess.tx.ExecContext(ctx, `
		INSERT INTO origins (id, shipment_id, product_id, organization_id,
			farm_plot_identifier, latitude, longitude, polygon, country,
			production_start_date, production_end_date, deforestation_free)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.ShipmentID, o.ProductID, o.OrganizationID,
		nullStr(o.FarmPlotIdentifier), o.Latitude, o.Longitude,
		nullStr(o.Polygon), nullStr(o.Country),
		nullTime(o.ProductionStartDate), nullTime(o.ProductionEndDate),
		nullStr(o.DeforestationFree))
	return mapPQError("store.create_origin", err)
}

// ListOrigins returns a shipment's geolocation evidence.
func (sess *Session) ListOrigins(ctx context.Context, shipmentID string) ([]*models.Origin, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, shipment_id, product_id, organization_id, farm_plot_identifier,
			latitude, longitude, polygon, country,
			production_start_date, production_end_date, deforestation_free
		FROM origins WHERE shipment_id = $1`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_origins", err)
	}
	defer rows.Close()
	var out []*models.Origin
	for rows.Next() {
		var (
			o                           models.Origin
			plot, poly, country, defFre sql.NullString
			start, end                  sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.ShipmentID, &o.ProductID, &o.OrganizationID,
			&plot, &o.Latitude, &o.Longitude, &poly, &country, &start, &end, &defFre); err != nil {
			return nil, mapPQError("store.list_origins", err)
		}
		o.FarmPlotIdentifier = strOf(plot)
		o.Polygon = strOf(poly)
		o.Country = strOf(country)
		o.DeforestationFree = strOf(defFre)
		o.ProductionStartDate, o.ProductionEndDate = timeOf(start), timeOf(end)
		out = append(out, &o)
	}
	return out, rows.Err()
}
