package tenant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

func TestAuthorizeSameOrg(t *testing.T) {
	tc := ForUser("u1", "org-a", models.RoleLogisticsAgent, models.OrgRoleManager)
	assert.NoError(t, Authorize(tc, PermShipmentsWrite, "org-a", ""))
	assert.NoError(t, Authorize(tc, PermDocumentsValidate, "org-a", ""))
}

func TestAuthorizeCrossTenantRejected(t *testing.T) {
	tc := ForUser("u1", "org-a", models.RoleLogisticsAgent, models.OrgRoleManager)
	err := Authorize(tc, PermShipmentsRead, "org-b", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCrossTenant))
}

func TestAuthorizeBuyerReadOnly(t *testing.T) {
	buyer := ForUser("u2", "org-hages", models.RoleBuyer, models.OrgRoleMember)

	// Buyer org on the shipment: reads allowed, writes rejected.
	assert.NoError(t, Authorize(buyer, PermShipmentsRead, "org-vibotaj", "org-hages"))
	assert.Error(t, Authorize(buyer, PermShipmentsWrite, "org-vibotaj", "org-hages"))

	// Not the buyer org: nothing visible.
	err := Authorize(buyer, PermShipmentsRead, "org-vibotaj", "")
	assert.True(t, errors.Is(err, apperr.ErrCrossTenant))
}

func TestAuthorizeMissingContext(t *testing.T) {
	err := Authorize(nil, PermShipmentsRead, "org-a", "")
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

func TestAuthorizePermissionDenied(t *testing.T) {
	viewer := ForUser("u3", "org-a", models.RoleViewer, models.OrgRoleViewer)
	err := Authorize(viewer, PermDocumentsWrite, "org-a", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestSystemContextHasEverything(t *testing.T) {
	sys := System()
	assert.NoError(t, Authorize(sys, PermOrgManage, "any-org", ""))
	assert.True(t, sys.Has(PermComplianceOverride))
}

func TestComplianceRoleCanValidateAsMember(t *testing.T) {
	tc := ForUser("u4", "org-a", models.RoleCompliance, models.OrgRoleMember)
	assert.True(t, tc.Has(PermDocumentsValidate))
	assert.True(t, tc.Has(PermComplianceOverride))
}

func TestContextRoundTrip(t *testing.T) {
	tc := ForUser("u1", "org-a", models.RoleSupplier, models.OrgRoleMember)
	ctx := WithContext(t.Context(), tc)
	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "org-a", got.OrganizationID)
	assert.Nil(t, FromContext(t.Context()))
}
