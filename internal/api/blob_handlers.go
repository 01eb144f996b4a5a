package api

import (
	"io"
	"net/http"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/blob"
)

// handleSignedBlob serves filesystem-store downloads. The HMAC in the
// query string is the whole credential; the route bypasses bearer auth
// so signed links work in a plain browser tab. S3 deployments never hit
// this path: their signed URLs point at the bucket directly.
func (s *Server) handleSignedBlob(w http.ResponseWriter, r *http.Request) {
	fs, ok := s.blobs.(*blob.FSStore)
	if !ok {
		writeError(w, r, apperr.New(apperr.KindNotFound, "blobs.download", "not found"))
		return
	}
	key := r.PathValue("key")
	q := r.URL.Query()
	if err := fs.VerifySignature(key, q.Get("exp"), q.Get("sig")); err != nil {
		writeError(w, r, err)
		return
	}
	body, err := fs.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Disposition", "attachment")
	if _, err := io.Copy(w, body); err != nil {
		// Headers already sent; nothing left to do but log via recovery.
		return
	}
}
