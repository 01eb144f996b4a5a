package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/lifecycle"
	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// maxUploadBytes caps one document upload.
const maxUploadBytes = 25 << 20

var validDocumentTypes = map[models.DocumentType]bool{
	models.DocBillOfLading:      true,
	models.DocCommercialInvoice: true,
	models.DocPackingList:       true,
	models.DocCertOfOrigin:      true,
	models.DocPhytosanitary:     true,
	models.DocVetHealth:         true,
	models.DocEUTraces:          true,
	models.DocQuality:           true,
	models.DocInsurance:         true,
	models.DocEUDRDueDiligence:  true,
	models.DocOther:             true,
}

// handleUploadDocument accepts a multipart upload, stores the bytes
// under the tenant's blob prefix, and registers the document as the new
// primary of its (shipment, type) slot. Bills of lading are parsed
// after commit; parse failures leave the upload intact.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.upload", "invalid multipart body"))
		return
	}
	shipmentID := r.FormValue("shipmentId")
	docType := models.DocumentType(r.FormValue("documentType"))
	if shipmentID == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.upload", "shipmentId is required").WithField("shipmentId"))
		return
	}
	if !validDocumentTypes[docType] {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.upload", "unknown document type").WithField("documentType"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.upload", "file is required").WithField("file"))
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(&buf, hasher), file)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "documents.upload", err))
		return
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	doc := &models.Document{
		ID:               uuid.NewString(),
		ShipmentID:       shipmentID,
		OrganizationID:   tc.OrganizationID,
		Type:             docType,
		Status:           models.DocUploaded,
		FileName:         header.Filename,
		FileSize:         size,
		MimeType:         contentTypeOf(header.Header.Get("Content-Type"), header.Filename),
		Checksum:         checksum,
		ReferenceNumber:  strings.TrimSpace(r.FormValue("referenceNumber")),
		IssuingAuthority: r.FormValue("issuingAuthority"),
		IssueDate:        parseFormDate(r.FormValue("issueDate")),
		ExpiryDate:       parseFormDate(r.FormValue("expiryDate")),
		Version:          1,
		IsPrimary:        true,
	}
	doc.FilePath = blob.Key(blob.BucketDocuments, tc.OrganizationID, doc.ID, header.Filename)

	if err := blob.CheckTenant(doc.FilePath, tc.OrganizationID, tc.IsSystemAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	// The blob write is external I/O and stays outside the transaction.
	// A failed transaction removes the orphaned object best effort.
	if err := s.blobs.Put(r.Context(), doc.FilePath, bytes.NewReader(buf.Bytes()), doc.MimeType); err != nil {
		writeError(w, r, err)
		return
	}

	var duplicateRef bool
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		sh, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermDocumentsWrite)
		if err != nil {
			return err
		}
		if doc.Type == models.DocEUDRDueDiligence {
			if err := rejectEUDRForExcluded(r, sess, sh); err != nil {
				return err
			}
		}
		// New upload of an existing slot supersedes the current primary.
		existing, err := sess.ListDocuments(r.Context(), shipmentID)
		if err != nil {
			return err
		}
		for _, prev := range existing {
			if prev.Type == doc.Type && prev.IsPrimary {
				doc.Version = prev.Version + 1
				doc.SupersedesID = prev.ID
			}
		}
		if err := sess.CreateDocument(r.Context(), doc); err != nil {
			return err
		}
		// First upload moves the shipment out of draft.
		if sh.Status == models.ShipmentDraft {
			if err := sess.UpdateShipmentStatus(r.Context(), shipmentID, models.ShipmentDocsPending); err != nil {
				return err
			}
			if err := sess.AppendAudit(r.Context(), &models.AuditEntry{
				ID:             uuid.NewString(),
				Timestamp:      time.Now().UTC(),
				OrganizationID: sh.OrganizationID,
				UserID:         tc.UserID,
				Action:         "shipment.status_changed",
				ResourceType:   "shipment",
				ResourceID:     shipmentID,
				Details:        map[string]any{"from": string(models.ShipmentDraft), "to": string(models.ShipmentDocsPending)},
			}); err != nil {
				return err
			}
		}
		if doc.ReferenceNumber != "" {
			duplicateRef, err = sess.RegisterReference(r.Context(), &models.ReferenceEntry{
				ShipmentID:      shipmentID,
				ReferenceNumber: doc.ReferenceNumber,
				DocumentType:    doc.Type,
				FirstSeenAt:     time.Now().UTC(),
			})
			if err != nil {
				return err
			}
		}
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "document.uploaded",
			ResourceType:   "document",
			ResourceID:     doc.ID,
			Details: map[string]any{
				"document_type": string(doc.Type),
				"file_name":     doc.FileName,
				"version":       doc.Version,
			},
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(r.Context(), doc.FilePath); delErr != nil {
			log.Warn().Err(delErr).Str("key", doc.FilePath).Msg("failed to remove blob after rolled back upload")
		}
		writeError(w, r, err)
		return
	}
	metrics.DocumentUploadsTotal.WithLabelValues(string(doc.Type)).Inc()

	s.bus.Publish(r.Context(), &models.Notification{
		OrganizationID: tc.OrganizationID,
		Type:           models.NotifyDocumentUploaded,
		Title:          "Document " + doc.FileName + " uploaded",
		ResourceType:   "document",
		ResourceID:     doc.ID,
	})

	if doc.Type == models.DocBillOfLading {
		if _, err := s.bolSvc.ParseDocument(r.Context(), tc, doc.ID); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID).Msg("bill of lading parse failed")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document":           doc,
		"duplicateReference": duplicateRef,
	})
}

// rejectEUDRForExcluded blocks EUDR due-diligence artefacts on shipments
// carrying horn/hoof products, which sit outside EUDR scope.
func rejectEUDRForExcluded(r *http.Request, sess *store.Session, sh *models.Shipment) error {
	excluded := sh.ProductType == models.ProductHornHoof
	if !excluded {
		products, err := sess.ListProducts(r.Context(), sh.ID)
		if err != nil {
			return err
		}
		for _, p := range products {
			if compliance.IsHornHoof(p.HSCode) {
				excluded = true
				break
			}
		}
	}
	if excluded {
		return apperr.New(apperr.KindValidation, "documents.upload",
			"eudr_due_diligence does not apply to horn/hoof shipments").WithField("documentType")
	}
	return nil
}

func contentTypeOf(declared, filename string) string {
	if declared != "" {
		return declared
	}
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func parseFormDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shipmentID := r.URL.Query().Get("shipmentId")
	if shipmentID == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.list", "shipmentId is required").WithField("shipmentId"))
		return
	}
	var docs []*models.Document
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		if _, err := s.getShipmentAuthorized(r, sess, tc, shipmentID, tenant.PermDocumentsRead); err != nil {
			return err
		}
		docs, err = sess.ListDocuments(r.Context(), shipmentID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var doc *models.Document
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		doc, err = sess.GetDocument(r.Context(), r.PathValue("id"))
		if err != nil {
			return err
		}
		_, err = s.getShipmentAuthorized(r, sess, tc, doc.ShipmentID, tenant.PermDocumentsRead)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	var contents []*models.DocumentContent
	_ = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		contents, _ = sess.ListDocumentContents(r.Context(), doc.ID)
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "contents": contents})
}

type documentTransitionRequest struct {
	To     models.DocumentStatus `json:"to"`
	Reason string                `json:"reason,omitempty"`
}

func (s *Server) handleTransitionDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req documentTransitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.To == models.DocRejected && strings.TrimSpace(req.Reason) == "" {
		writeError(w, r, apperr.New(apperr.KindValidation, "documents.transition",
			"a rejection requires a reason").WithField("reason"))
		return
	}
	// Validation is a reviewer action, gated separately from plain writes.
	perm := tenant.PermDocumentsWrite
	if req.To == models.DocValidated {
		perm = tenant.PermDocumentsValidate
	}
	var doc *models.Document
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		doc, err = sess.GetDocument(r.Context(), r.PathValue("id"))
		if err != nil {
			return err
		}
		if _, err := s.getShipmentAuthorized(r, sess, tc, doc.ShipmentID, perm); err != nil {
			return err
		}
		if err := lifecycle.DocTransition(doc.Status, req.To); err != nil {
			return err
		}
		if req.To == models.DocValidated {
			if err := validateRequiredFields(doc); err != nil {
				return err
			}
		}
		from := doc.Status
		if err := sess.UpdateDocumentStatus(r.Context(), doc.ID, req.To); err != nil {
			return err
		}
		doc.Status = req.To
		return sess.AppendAudit(r.Context(), &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: doc.OrganizationID,
			UserID:         tc.UserID,
			Action:         "document.status_changed",
			ResourceType:   "document",
			ResourceID:     doc.ID,
			Details:        map[string]any{"from": string(from), "to": string(req.To), "reason": req.Reason},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if doc.Status == models.DocRejected {
		s.bus.Publish(r.Context(), &models.Notification{
			OrganizationID: doc.OrganizationID,
			Type:           models.NotifyDocumentRejected,
			Title:          "Document " + doc.FileName + " rejected",
			Body:           req.Reason,
			ResourceType:   "document",
			ResourceID:     doc.ID,
		})
	}
	writeJSON(w, http.StatusOK, doc)
}

// certificateTypes need a named issuing authority before validation.
var certificateTypes = map[models.DocumentType]bool{
	models.DocCertOfOrigin:     true,
	models.DocPhytosanitary:    true,
	models.DocVetHealth:        true,
	models.DocEUTraces:         true,
	models.DocQuality:          true,
	models.DocInsurance:        true,
	models.DocEUDRDueDiligence: true,
}

// validateRequiredFields gates the move to validated: every document
// except free-form attachments needs a reference number, and
// certificates additionally need their issuing authority.
func validateRequiredFields(doc *models.Document) error {
	if doc.Type != models.DocOther && strings.TrimSpace(doc.ReferenceNumber) == "" {
		return apperr.New(apperr.KindValidation, "documents.transition",
			"document has no reference number").WithField("referenceNumber")
	}
	if certificateTypes[doc.Type] && strings.TrimSpace(doc.IssuingAuthority) == "" {
		return apperr.New(apperr.KindValidation, "documents.transition",
			"certificate has no issuing authority").WithField("issuingAuthority")
	}
	return nil
}

// handleDownloadDocument hands out a short-lived signed URL rather than
// streaming the file through the API process.
func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	tc, err := requireTenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var doc *models.Document
	err = s.store.WithSession(r.Context(), tc, func(sess *store.Session) error {
		doc, err = sess.GetDocument(r.Context(), r.PathValue("id"))
		if err != nil {
			return err
		}
		_, err = s.getShipmentAuthorized(r, sess, tc, doc.ShipmentID, tenant.PermDocumentsRead)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := blob.CheckTenant(doc.FilePath, tc.OrganizationID, tc.IsSystemAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	url, err := s.blobs.SignedURL(r.Context(), doc.FilePath, blob.SignedURLTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       url,
		"expiresAt": time.Now().UTC().Add(blob.SignedURLTTL),
	})
}
