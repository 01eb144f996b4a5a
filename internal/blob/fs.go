package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vibotaj/tracehub/internal/apperr"
)

// FSStore implements Store on the local filesystem. Used in development
// and tests; signed URLs are HMAC-stamped paths served by the API.
type FSStore struct {
	root      string
	signKey   []byte
	publicURL string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir, publicURL string, signKey []byte) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: dir, signKey: signKey, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperr.New(apperr.KindValidation, "blob.path", "invalid storage key")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FSStore) Put(_ context.Context, key string, body io.Reader, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, apperr.New(apperr.KindNotFound, "blob.get", "object not found")
	}
	return f, err
}

// SignedURL returns a URL of the form
// {publicURL}/blobs/{key}?exp={unix}&sig={hmac}. Verification happens in
// the API layer with VerifySignature.
func (s *FSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > SignedURLTTL {
		ttl = SignedURLTTL
	}
	exp := time.Now().Add(ttl).Unix()
	sig := s.sign(key, exp)
	return fmt.Sprintf("%s/blobs/%s?exp=%d&sig=%s", s.publicURL, key, exp, sig), nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.signKey)
	fmt.Fprintf(mac, "%s|%d", key, exp)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signed URL's key, expiry, and HMAC.
func (s *FSStore) VerifySignature(key, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return apperr.New(apperr.KindValidation, "blob.verify", "malformed expiry")
	}
	if time.Now().Unix() > exp {
		return apperr.New(apperr.KindExpired, "blob.verify", "signed URL expired")
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return apperr.New(apperr.KindPermission, "blob.verify", "bad signature")
	}
	return nil
}
