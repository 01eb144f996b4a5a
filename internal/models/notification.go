package models

import "time"

// NotificationType is the event vocabulary published on the bus.
type NotificationType string

const (
	NotifyShipmentCreated    NotificationType = "shipment_created"
	NotifyShipmentDeparted   NotificationType = "shipment_departed"
	NotifyShipmentArrived    NotificationType = "shipment_arrived"
	NotifyShipmentDelivered  NotificationType = "shipment_delivered"
	NotifyShipmentCustoms    NotificationType = "shipment_customs_hold"
	NotifyDocsComplete       NotificationType = "shipment_docs_complete"
	NotifyDocumentUploaded   NotificationType = "document_uploaded"
	NotifyDocumentValidated  NotificationType = "document_validated"
	NotifyDocumentRejected   NotificationType = "document_rejected"
	NotifyDocumentExpired    NotificationType = "document_expired"
	NotifyComplianceDecision NotificationType = "compliance_decision"
	NotifyTrackingError      NotificationType = "tracking_error"
	NotifyInvitation         NotificationType = "invitation"
)

// NotificationChannel is a delivery channel gated by user preferences.
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
)

// Notification is one durable outbox row. Delivery is at-least-once;
// consumers must be idempotent on ID.
type Notification struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organizationId"`
	UserID         string           `json:"userId,omitempty"` // empty = broadcast to org
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body,omitempty"`
	ResourceType   string           `json:"resourceType,omitempty"`
	ResourceID     string           `json:"resourceId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	EmailedAt      *time.Time       `json:"emailedAt,omitempty"`
	Attempts       int              `json:"-"`
}

// NotificationPreference gates which event types reach which channels
// for one user. Absent rows fall back to the organization defaults.
type NotificationPreference struct {
	UserID  string           `json:"userId"`
	Type    NotificationType `json:"type"`
	InApp   bool             `json:"inApp"`
	Email   bool             `json:"email"`
}
