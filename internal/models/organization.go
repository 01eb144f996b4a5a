// Package models defines the persisted entities of the compliance and
// shipment engine. Every tenant-scoped record carries the owning
// organization id; child rows inherit their tenant from the parent.
package models

import (
	"strings"
	"time"
)

// OrgType classifies an organization's role on the platform.
type OrgType string

const (
	OrgTypePlatform OrgType = "platform"
	OrgTypeBuyer    OrgType = "buyer"
	OrgTypeSupplier OrgType = "supplier"
	OrgTypeAgent    OrgType = "agent"
)

// OrgStatus is the lifecycle status of an organization.
type OrgStatus string

const (
	OrgStatusActive       OrgStatus = "active"
	OrgStatusSuspended    OrgStatus = "suspended"
	OrgStatusPendingSetup OrgStatus = "pending_setup"
)

// NormalizeOrgStatus maps arbitrary stored values onto a known status.
func NormalizeOrgStatus(s string) OrgStatus {
	switch OrgStatus(strings.ToLower(strings.TrimSpace(s))) {
	case OrgStatusSuspended:
		return OrgStatusSuspended
	case OrgStatusPendingSetup:
		return OrgStatusPendingSetup
	default:
		return OrgStatusActive
	}
}

// Address is a structured postal address kept as a typed value, not a map.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"` // ISO 3166-1 alpha-2
}

// OrgSettings holds tenant-level configuration. Unknown fields from older
// schema versions are preserved verbatim in Extra and never interpreted.
type OrgSettings struct {
	SchemaVersion        int             `json:"schemaVersion"`
	ArchiveAfterDays     int             `json:"archiveAfterDays,omitempty"` // quiescence before delivered→archived
	NotificationDefaults map[string]bool `json:"notificationDefaults,omitempty"`
	Extra                map[string]any  `json:"extra,omitempty"`
}

// Organization is a tenant. Exactly one organization of type platform exists.
type Organization struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"` // globally unique
	Type         OrgType     `json:"type"`
	Status       OrgStatus   `json:"status"`
	ContactEmail string      `json:"contactEmail,omitempty"`
	ContactPhone string      `json:"contactPhone,omitempty"`
	Address      Address     `json:"address"`
	Settings     OrgSettings `json:"settings"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	DeletedAt    *time.Time  `json:"deletedAt,omitempty"` // soft suspend marker
}

// SystemRole is the platform-wide role attached to a user account.
type SystemRole string

const (
	RoleAdmin          SystemRole = "admin"
	RoleCompliance     SystemRole = "compliance"
	RoleLogisticsAgent SystemRole = "logistics_agent"
	RoleBuyer          SystemRole = "buyer"
	RoleSupplier       SystemRole = "supplier"
	RoleViewer         SystemRole = "viewer"
)

// User is owned by its primary organization. Email is globally unique.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FullName       string     `json:"fullName"`
	Role           SystemRole `json:"role"`
	OrganizationID string     `json:"organizationId"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
	DeletedBy      string     `json:"deletedBy,omitempty"`
}

// OrgRole is a user's role within one organization.
type OrgRole string

const (
	OrgRoleAdmin   OrgRole = "admin"
	OrgRoleManager OrgRole = "manager"
	OrgRoleMember  OrgRole = "member"
	OrgRoleViewer  OrgRole = "viewer"
)

// MembershipStatus tracks whether a membership is usable.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

// Membership links a user to an organization. Unique on (user, org);
// each user has exactly one primary membership, and an organization must
// always retain at least one active admin member.
type Membership struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	OrganizationID string           `json:"organizationId"`
	OrgRole        OrgRole          `json:"orgRole"`
	IsPrimary      bool             `json:"isPrimary"`
	Status         MembershipStatus `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// InvitationStatus is the lifecycle of a single-use invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation stores only the SHA-256 of the token; the plaintext is
// returned once at creation and never persisted.
type Invitation struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organizationId"`
	Email          string           `json:"email"`
	OrgRole        OrgRole          `json:"orgRole"`
	TokenHash      string           `json:"-"`
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	CreatedBy      string           `json:"createdBy"`
	CreatedAt      time.Time        `json:"createdAt"`
	AcceptedAt     *time.Time       `json:"acceptedAt,omitempty"`
}
