package models

import "time"

// ShipmentStatus is the shipment lifecycle state.
type ShipmentStatus string

const (
	ShipmentDraft         ShipmentStatus = "draft"
	ShipmentDocsPending   ShipmentStatus = "docs_pending"
	ShipmentDocsComplete  ShipmentStatus = "docs_complete"
	ShipmentInTransit     ShipmentStatus = "in_transit"
	ShipmentArrived       ShipmentStatus = "arrived"
	ShipmentCustoms       ShipmentStatus = "customs"
	ShipmentDelivered     ShipmentStatus = "delivered"
	ShipmentArchived      ShipmentStatus = "archived"
	ShipmentTrackingError ShipmentStatus = "tracking_error"
)

// ProductType keys into the compliance matrix.
type ProductType string

const (
	ProductHornHoof    ProductType = "horn_hoof"
	ProductSweetPotato ProductType = "sweet_potato_pellets"
	ProductHibiscus    ProductType = "hibiscus"
	ProductDriedGinger ProductType = "dried_ginger"
	ProductCocoa       ProductType = "cocoa"
	ProductCoffee      ProductType = "coffee"
	ProductPalmOil     ProductType = "palm_oil"
	ProductRubber      ProductType = "rubber"
	ProductSoy         ProductType = "soy"
	ProductOther       ProductType = "other"
)

// Shipment is owned by organization_id; buyer_organization_id grants a
// second organization read-only visibility. Reference is unique within
// the owning organization.
type Shipment struct {
	ID                  string         `json:"id"`
	OrganizationID      string         `json:"organizationId"`
	BuyerOrganizationID string         `json:"buyerOrganizationId,omitempty"`
	Reference           string         `json:"reference"`
	ContainerNumber     string         `json:"containerNumber,omitempty"`
	ProductType         ProductType    `json:"productType"`
	BLNumber            string         `json:"blNumber,omitempty"`
	Vessel              string         `json:"vessel,omitempty"`
	Voyage              string         `json:"voyage,omitempty"`
	POLCode             string         `json:"polCode,omitempty"` // UN/LOCODE
	POLName             string         `json:"polName,omitempty"`
	PODCode             string         `json:"podCode,omitempty"`
	PODName             string         `json:"podName,omitempty"`
	ETD                 *time.Time     `json:"etd,omitempty"`
	ETA                 *time.Time     `json:"eta,omitempty"`
	ATD                 *time.Time     `json:"atd,omitempty"`
	ATA                 *time.Time     `json:"ata,omitempty"`
	Incoterms           string         `json:"incoterms,omitempty"`
	Status              ShipmentStatus `json:"status"`
	IsHistorical        bool           `json:"isHistorical"`
	TrackingSuspended   bool           `json:"trackingSuspended,omitempty"`
	LastPolledAt        *time.Time     `json:"lastPolledAt,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Product is one commodity line on a shipment. The HS code's first four
// digits determine the regulatory class.
type Product struct {
	ID             string  `json:"id"`
	ShipmentID     string  `json:"shipmentId"`
	OrganizationID string  `json:"organizationId"`
	HSCode         string  `json:"hsCode"`
	Description    string  `json:"description,omitempty"`
	QuantityNetKg  float64 `json:"quantityNetKg,omitempty"`
	QuantityGrossKg float64 `json:"quantityGrossKg,omitempty"`
}

// Origin holds the EUDR geolocation evidence for a product. It must never
// exist for horn/hoof products (HS 0506/0507).
type Origin struct {
	ID                  string     `json:"id"`
	ShipmentID          string     `json:"shipmentId"`
	ProductID           string     `json:"productId"`
	OrganizationID      string     `json:"organizationId"`
	FarmPlotIdentifier  string     `json:"farmPlotIdentifier,omitempty"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	Polygon             string     `json:"polygon,omitempty"` // GeoJSON, optional
	Country             string     `json:"country,omitempty"`
	ProductionStartDate *time.Time `json:"productionStartDate,omitempty"`
	ProductionEndDate   *time.Time `json:"productionEndDate,omitempty"`
	DeforestationFree   string     `json:"deforestationFreeStatement,omitempty"`
}

// ContainerEventStatus is the normalized carrier event vocabulary.
type ContainerEventStatus string

const (
	EventBooked        ContainerEventStatus = "booked"
	EventGateIn        ContainerEventStatus = "gate_in"
	EventLoaded        ContainerEventStatus = "loaded"
	EventDeparted      ContainerEventStatus = "departed"
	EventInTransit     ContainerEventStatus = "in_transit"
	EventTransshipment ContainerEventStatus = "transshipment"
	EventArrived       ContainerEventStatus = "arrived"
	EventDischarged    ContainerEventStatus = "discharged"
	EventGateOut       ContainerEventStatus = "gate_out"
	EventDelivered     ContainerEventStatus = "delivered"
	EventCustomsHold   ContainerEventStatus = "customs_hold"
	EventCustomsRelease ContainerEventStatus = "customs_released"
	EventOther         ContainerEventStatus = "other"
)

// ContainerEvent is one normalized tracking event. The tuple
// (shipment_id, event_status, event_time, source) is the dedup key.
type ContainerEvent struct {
	ID           string               `json:"id"`
	ShipmentID   string               `json:"shipmentId"`
	Status       ContainerEventStatus `json:"eventStatus"`
	EventTime    time.Time            `json:"eventTime"`
	LocationCode string               `json:"locationCode,omitempty"`
	LocationName string               `json:"locationName,omitempty"`
	Vessel       string               `json:"vessel,omitempty"`
	Voyage       string               `json:"voyage,omitempty"`
	Source       string               `json:"source"`
	RawPayload   []byte               `json:"-"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// AuditEntry is one append-only audit log row. Written in the same
// transaction as the mutation it records.
type AuditEntry struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organizationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resourceType"`
	ResourceID     string         `json:"resourceId"`
	Details        map[string]any `json:"details,omitempty"`
	RequestID      string         `json:"requestId,omitempty"`
}
