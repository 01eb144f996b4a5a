// Package tenant resolves and carries the caller's tenant context and
// answers every authorization question through a single predicate.
//
// Every authenticated request resolves to a Context holding the active
// organization, the caller's role within it, and the derived permission
// set. Data access layers read the org id from here; nothing else decides
// tenancy.
package tenant

import (
	"context"

	"github.com/vibotaj/tracehub/internal/models"
)

type ctxKey string

const tenantKey ctxKey = "tenant_context"

// Context identifies the caller for the duration of one request or one
// background unit of work.
type Context struct {
	UserID         string
	OrganizationID string
	OrgRole        models.OrgRole
	SystemRole     models.SystemRole
	IsSystemAdmin  bool
	Permissions    map[Permission]bool
}

// System returns the context used by background workers acting on behalf
// of the platform itself.
func System() *Context {
	return &Context{
		UserID:        "system",
		SystemRole:    models.RoleAdmin,
		IsSystemAdmin: true,
		Permissions:   allPermissions(),
	}
}

// ForUser derives a tenant context from a user's role and active membership.
func ForUser(userID, orgID string, sysRole models.SystemRole, orgRole models.OrgRole) *Context {
	tc := &Context{
		UserID:         userID,
		OrganizationID: orgID,
		OrgRole:        orgRole,
		SystemRole:     sysRole,
		IsSystemAdmin:  sysRole == models.RoleAdmin && orgRole == models.OrgRoleAdmin && orgID == "",
	}
	tc.Permissions = derivePermissions(sysRole, orgRole)
	return tc
}

// WithContext stores the tenant context on ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

// FromContext extracts the tenant context, or nil when unauthenticated.
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(tenantKey).(*Context); ok {
		return tc
	}
	return nil
}

// Has reports whether the caller holds the permission. System admins hold
// every permission.
func (c *Context) Has(p Permission) bool {
	if c == nil {
		return false
	}
	if c.IsSystemAdmin {
		return true
	}
	return c.Permissions[p]
}
