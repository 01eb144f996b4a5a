// Package blob abstracts object storage for document files and audit-pack
// archives. Keys follow {bucket}/{org_id}/{resource_id}/{filename}; the
// store asserts at write time that the key's org segment matches the
// caller's tenant, mirroring the row-level policies on the database side.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
)

// Buckets recognized by the engine.
const (
	BucketDocuments  = "documents"
	BucketAuditPacks = "audit-packs"
	BucketExports    = "exports"
)

// SignedURLTTL is the maximum lifetime of a download URL.
const SignedURLTTL = 15 * time.Minute

// Store is the object storage contract. Concrete drivers are swappable;
// the engine never touches provider SDKs outside this package.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key builds a storage key under the per-tenant prefix.
func Key(bucket, orgID, resourceID, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s", bucket, orgID, resourceID, filename)
}

// OrgSegment extracts the org id segment from a key, or "".
func OrgSegment(key string) string {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// CheckTenant verifies that key belongs to orgID. System callers pass
// isSystemAdmin=true and skip the check.
func CheckTenant(key, orgID string, isSystemAdmin bool) error {
	if isSystemAdmin {
		return nil
	}
	if seg := OrgSegment(key); seg != orgID || seg == "" {
		return apperr.New(apperr.KindCrossTenant, "blob.check_tenant",
			"storage key belongs to another organization")
	}
	return nil
}
