package tenant

import (
	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

// Permission is a fixed enumeration of actions. Permissions are derived
// from (system_role, org_role) at context construction; handlers only ask
// Authorize, never inspect roles directly.
type Permission string

const (
	PermShipmentsRead     Permission = "shipments:read"
	PermShipmentsWrite    Permission = "shipments:write"
	PermDocumentsRead     Permission = "documents:read"
	PermDocumentsWrite    Permission = "documents:write"
	PermDocumentsValidate Permission = "documents:validate"
	PermComplianceRun     Permission = "compliance:run"
	PermComplianceOverride Permission = "compliance:override"
	PermTrackingRead      Permission = "tracking:read"
	PermTrackingManage    Permission = "tracking:manage"
	PermAuditPacksBuild   Permission = "audit_packs:build"
	PermInvitationsManage Permission = "invitations:manage"
	PermOrgManage         Permission = "organizations:manage"
	PermUsersManage       Permission = "users:manage"
	PermAuditLogsRead     Permission = "audit_logs:read"
	PermNotificationsRead Permission = "notifications:read"
)

func allPermissions() map[Permission]bool {
	out := make(map[Permission]bool)
	for _, p := range []Permission{
		PermShipmentsRead, PermShipmentsWrite,
		PermDocumentsRead, PermDocumentsWrite, PermDocumentsValidate,
		PermComplianceRun, PermComplianceOverride,
		PermTrackingRead, PermTrackingManage,
		PermAuditPacksBuild, PermInvitationsManage,
		PermOrgManage, PermUsersManage,
		PermAuditLogsRead, PermNotificationsRead,
	} {
		out[p] = true
	}
	return out
}

// derivePermissions computes the permission set for a role pair. Viewers
// read; members upload; managers validate and override; org admins also
// manage membership. Compliance officers validate regardless of org role.
func derivePermissions(sysRole models.SystemRole, orgRole models.OrgRole) map[Permission]bool {
	perms := map[Permission]bool{
		PermShipmentsRead:     true,
		PermDocumentsRead:     true,
		PermTrackingRead:      true,
		PermNotificationsRead: true,
	}

	switch orgRole {
	case models.OrgRoleAdmin:
		perms[PermShipmentsWrite] = true
		perms[PermDocumentsWrite] = true
		perms[PermDocumentsValidate] = true
		perms[PermComplianceRun] = true
		perms[PermComplianceOverride] = true
		perms[PermTrackingManage] = true
		perms[PermAuditPacksBuild] = true
		perms[PermInvitationsManage] = true
		perms[PermUsersManage] = true
		perms[PermAuditLogsRead] = true
	case models.OrgRoleManager:
		perms[PermShipmentsWrite] = true
		perms[PermDocumentsWrite] = true
		perms[PermDocumentsValidate] = true
		perms[PermComplianceRun] = true
		perms[PermComplianceOverride] = true
		perms[PermTrackingManage] = true
		perms[PermAuditPacksBuild] = true
		perms[PermAuditLogsRead] = true
	case models.OrgRoleMember:
		perms[PermShipmentsWrite] = true
		perms[PermDocumentsWrite] = true
		perms[PermComplianceRun] = true
		perms[PermAuditPacksBuild] = true
	}

	switch sysRole {
	case models.RoleCompliance:
		perms[PermDocumentsValidate] = true
		perms[PermComplianceRun] = true
		perms[PermComplianceOverride] = true
	case models.RoleBuyer, models.RoleViewer:
		// Read-side only regardless of org role.
		perms[PermShipmentsWrite] = false
		perms[PermDocumentsWrite] = false
		perms[PermDocumentsValidate] = false
		perms[PermComplianceOverride] = false
		perms[PermTrackingManage] = false
		perms[PermInvitationsManage] = false
		perms[PermUsersManage] = false
	}

	return perms
}

// Authorize is the single authorization predicate invoked at each handler
// boundary. resourceOrgID is the owning tenant of the target resource;
// buyerOrgID, when non-empty, grants read-only visibility to that second
// organization.
func Authorize(tc *Context, perm Permission, resourceOrgID, buyerOrgID string) error {
	if tc == nil {
		return apperr.New(apperr.KindAuthentication, "authorize", "missing tenant context")
	}
	if tc.IsSystemAdmin {
		return nil
	}
	if !tc.Has(perm) {
		return apperr.New(apperr.KindPermission, "authorize", "permission denied").
			WithDetails(map[string]any{"permission": string(perm)})
	}
	if resourceOrgID == "" || resourceOrgID == tc.OrganizationID {
		return nil
	}
	// Buyer read path: the second org sees the shipment but never mutates it.
	if buyerOrgID != "" && buyerOrgID == tc.OrganizationID && readOnly(perm) {
		return nil
	}
	return apperr.New(apperr.KindCrossTenant, "authorize", "resource belongs to another organization")
}

func readOnly(p Permission) bool {
	switch p {
	case PermShipmentsRead, PermDocumentsRead, PermTrackingRead,
		PermNotificationsRead, PermAuditLogsRead, PermAuditPacksBuild:
		return true
	}
	return false
}
