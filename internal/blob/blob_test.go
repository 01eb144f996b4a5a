package blob

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibotaj/tracehub/internal/apperr"
)

func TestKeyLayout(t *testing.T) {
	key := Key(BucketDocuments, "org-a", "ship-1", "bol.pdf")
	assert.Equal(t, "documents/org-a/ship-1/bol.pdf", key)
	assert.Equal(t, "org-a", OrgSegment(key))
}

func TestCheckTenant(t *testing.T) {
	key := Key(BucketDocuments, "org-a", "ship-1", "bol.pdf")
	assert.NoError(t, CheckTenant(key, "org-a", false))
	assert.NoError(t, CheckTenant(key, "org-b", true)) // system admin bypass

	err := CheckTenant(key, "org-b", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrCrossTenant))

	assert.Error(t, CheckTenant("malformed", "org-a", false))
}

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080", []byte("test-key"))
	require.NoError(t, err)

	key := Key(BucketDocuments, "org-a", "ship-1", "bol.pdf")
	require.NoError(t, s.Put(t.Context(), key, bytes.NewReader([]byte("pdf bytes")), "application/pdf"))

	rc, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "pdf bytes", string(data))

	require.NoError(t, s.Delete(t.Context(), key))
	_, err = s.Get(t.Context(), key)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "", []byte("k"))
	require.NoError(t, err)
	assert.Error(t, s.Put(t.Context(), "../../etc/passwd", strings.NewReader("x"), ""))
	_, err = s.Get(t.Context(), "/abs/path")
	assert.Error(t, err)
}

func TestFSStoreSignedURL(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080", []byte("secret"))
	require.NoError(t, err)

	key := Key(BucketAuditPacks, "org-a", "ship-1", "pack.zip")
	url, err := s.SignedURL(t.Context(), key, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/blobs/"+key)
	assert.Contains(t, url, "sig=")

	// Extract exp and sig back out of the URL.
	var exp, sig string
	for _, part := range strings.Split(strings.SplitN(url, "?", 2)[1], "&") {
		kv := strings.SplitN(part, "=", 2)
		switch kv[0] {
		case "exp":
			exp = kv[1]
		case "sig":
			sig = kv[1]
		}
	}
	assert.NoError(t, s.VerifySignature(key, exp, sig))
	assert.Error(t, s.VerifySignature(key, exp, "tampered"))
	assert.Error(t, s.VerifySignature(key, "0", sig)) // expired
}

func TestSignedURLTTLCapped(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://localhost", []byte("k"))
	require.NoError(t, err)
	// A requested TTL beyond the cap is clamped; the URL must still verify.
	url, err := s.SignedURL(t.Context(), "documents/o/r/f", 24*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}
