package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibotaj/tracehub/internal/models"
)

const documentColumns = `id, shipment_id, organization_id, document_type, status,
	file_name, file_path, file_size, mime_type, checksum, reference_number,
	issue_date, expiry_date, issuing_authority, canonical_data, version,
	is_primary, supersedes_id, confidence, parsed_at, last_validated_at,
	created_at, updated_at`

// CreateDocument inserts a new document row. When it supersedes an
// earlier version, the previous primary of the same (shipment, type) is
// demoted in the same transaction so the partial unique index holds.
func (sess *Session) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.IsPrimary {
		if _, err := sess.tx.ExecContext(ctx, `
			UPDATE documents SET is_primary = false, updated_at = now()
			WHERE shipment_id = $1 AND document_type = $2 AND is_primary`,
			d.ShipmentID, string(d.Type)); err != nil {
			return mapPQError("store.create_document", err)
		}
	}
	canonical, err := jsonOf(d.Canonical)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, `
		INSERT INTO documents
			(id, shipment_id, organization_id, document_type, status, file_name, file_path,
			 file_size, mime_type, checksum, reference_number, issue_date, expiry_date,
			 issuing_authority, canonical_data, version, is_primary, supersedes_id, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		d.ID, d.ShipmentID, d.OrganizationID, string(d.Type), string(d.Status),
		d.FileName, d.FilePath, d.FileSize, d.MimeType, nullStr(d.Checksum),
		nullStr(d.ReferenceNumber), nullTime(d.IssueDate), nullTime(d.ExpiryDate),
		nullStr(d.IssuingAuthority), canonical, d.Version, d.IsPrimary,
		nullStr(d.SupersedesID), d.Confidence)
	return mapPQError("store.create_document", err)
}

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var (
		d                              models.Document
		checksum, refNo, authority     sql.NullString
		supersedes                     sql.NullString
		issue, expiry, parsed, lastVal sql.NullTime
		canonical                      []byte
	)
	err := row.Scan(&d.ID, &d.ShipmentID, &d.OrganizationID, (*string)(&d.Type),
		(*string)(&d.Status), &d.FileName, &d.FilePath, &d.FileSize, &d.MimeType,
		&checksum, &refNo, &issue, &expiry, &authority, &canonical, &d.Version,
		&d.IsPrimary, &supersedes, &d.Confidence, &parsed, &lastVal,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Checksum = strOf(checksum)
	d.ReferenceNumber = strOf(refNo)
	d.IssuingAuthority = strOf(authority)
	d.SupersedesID = strOf(supersedes)
	d.IssueDate, d.ExpiryDate = timeOf(issue), timeOf(expiry)
	d.ParsedAt, d.LastValidatedAt = timeOf(parsed), timeOf(lastVal)
	if len(canonical) > 0 {
		d.Canonical = &models.CanonicalData{}
		if err := scanJSON(canonical, d.Canonical); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// GetDocument fetches one document by id.
func (sess *Session) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, mapPQError("store.get_document", err)
	}
	return d, nil
}

// ListDocuments returns a shipment's documents, primaries first.
func (sess *Session) ListDocuments(ctx context.Context, shipmentID string) ([]*models.Document, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE shipment_id = $1
		ORDER BY is_primary DESC, document_type, version DESC`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_documents", err)
	}
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapPQError("store.list_documents", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus writes a status the caller has already validated
// against the document lifecycle.
func (sess *Session) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return mapPQError("store.update_document_status", err)
	}
	return requireRow(res, "store.update_document_status")
}

// SetDocumentCanonical attaches the classifier extraction to a document.
func (sess *Session) SetDocumentCanonical(ctx context.Context, id string, data *models.CanonicalData, confidence float64, parsedAt time.Time) error {
	canonical, err := jsonOf(data)
	if err != nil {
		return err
	}
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE documents
		SET canonical_data = $2, confidence = $3, parsed_at = $4, updated_at = now()
		WHERE id = $1`, id, canonical, confidence, parsedAt)
	if err != nil {
		return mapPQError("store.set_document_canonical", err)
	}
	return requireRow(res, "store.set_document_canonical")
}

// TouchDocumentValidated records a completed validation run.
func (sess *Session) TouchDocumentValidated(ctx context.Context, id string, at time.Time) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE documents SET last_validated_at = $2, updated_at = now() WHERE id = $1`, id, at)
	return mapPQError("store.touch_document_validated", err)
}

// ListExpiredDocuments returns live documents whose expiry has passed.
func (sess *Session) ListExpiredDocuments(ctx context.Context, now time.Time) ([]*models.Document, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE expiry_date IS NOT NULL AND expiry_date < $1
		  AND status NOT IN ('archived','rejected','expired')`, now)
	if err != nil {
		return nil, mapPQError("store.list_expired_documents", err)
	}
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapPQError("store.list_expired_documents", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDocumentContent stores one detected sub-document.
func (sess *Session) CreateDocumentContent(ctx context.Context, c *models.DocumentContent) error {
	fields, err := jsonOf(c.DetectedFields)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, `
		INSERT INTO document_contents
			(id, document_id, document_type, status, page_start, page_end,
			 reference_number, detected_fields, confidence, detection_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.DocumentID, string(c.Type), string(c.Status), c.PageStart, c.PageEnd,
		nullStr(c.ReferenceNumber), fields, c.Confidence, string(c.Method))
	return mapPQError("store.create_document_content", err)
}

// ListDocumentContents returns the sub-documents of one upload, in page order.
func (sess *Session) ListDocumentContents(ctx context.Context, documentID string) ([]*models.DocumentContent, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, document_id, document_type, status, page_start, page_end,
			reference_number, detected_fields, confidence, detection_method
		FROM document_contents WHERE document_id = $1 ORDER BY page_start`, documentID)
	if err != nil {
		return nil, mapPQError("store.list_document_contents", err)
	}
	defer rows.Close()
	var out []*models.DocumentContent
	for rows.Next() {
		var (
			c      models.DocumentContent
			refNo  sql.NullString
			fields []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, (*string)(&c.Type), (*string)(&c.Status),
			&c.PageStart, &c.PageEnd, &refNo, &fields, &c.Confidence, (*string)(&c.Method)); err != nil {
			return nil, mapPQError("store.list_document_contents", err)
		}
		c.ReferenceNumber = strOf(refNo)
		if len(fields) > 0 {
			c.DetectedFields = &models.CanonicalData{}
			if err := scanJSON(fields, c.DetectedFields); err != nil {
				return nil, err
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ReplaceIssues swaps a shipment's issues for the given rule ids with a
// fresh evaluation's output, preserving override flags keyed on
// (rule_id, field) so re-validation does not resurrect handled findings.
func (sess *Session) ReplaceIssues(ctx context.Context, shipmentID string, issues []*models.DocumentIssue) error {
	type overrideKey struct{ rule, field string }
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT rule_id, COALESCE(field, ''), overridden_by, COALESCE(override_reason, '')
		FROM document_issues
		WHERE shipment_id = $1 AND is_overridden`, shipmentID)
	if err != nil {
		return mapPQError("store.replace_issues", err)
	}
	overrides := map[overrideKey][2]string{}
	for rows.Next() {
		var rule, field, by, reason string
		if err := rows.Scan(&rule, &field, &by, &reason); err != nil {
			rows.Close()
			return mapPQError("store.replace_issues", err)
		}
		overrides[overrideKey{rule, field}] = [2]string{by, reason}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapPQError("store.replace_issues", err)
	}

	if _, err := sess.tx.ExecContext(ctx,
		`DELETE FROM document_issues WHERE shipment_id = $1`, shipmentID); err != nil {
		return mapPQError("store.replace_issues", err)
	}
	for _, is := range issues {
		if ov, ok := overrides[overrideKey{is.RuleID, is.Field}]; ok {
			is.IsOverridden = true
			is.OverriddenBy = ov[0]
			is.OverrideReason = ov[1]
		}
		if _, err := sess.tx.ExecContext(ctx, `
			INSERT INTO document_issues
				(id, document_id, shipment_id, rule_id, rule_name, severity, message,
				 field, expected_value, actual_value, is_overridden, overridden_by, override_reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			is.ID, nullStr(is.DocumentID), is.ShipmentID, is.RuleID, is.RuleName,
			string(is.Severity), is.Message, nullStr(is.Field),
			nullStr(is.ExpectedValue), nullStr(is.ActualValue),
			is.IsOverridden, nullStr(is.OverriddenBy), nullStr(is.OverrideReason)); err != nil {
			return mapPQError("store.replace_issues", err)
		}
	}
	return nil
}

// ListIssues returns a shipment's current issues, errors first.
func (sess *Session) ListIssues(ctx context.Context, shipmentID string) ([]*models.DocumentIssue, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, document_id, shipment_id, rule_id, rule_name, severity, message,
			field, expected_value, actual_value, is_overridden, overridden_by,
			override_reason, created_at
		FROM document_issues WHERE shipment_id = $1
		ORDER BY severity, rule_id`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_issues", err)
	}
	defer rows.Close()
	var out []*models.DocumentIssue
	for rows.Next() {
		var (
			is                               models.DocumentIssue
			docID, field, expected, actual   sql.NullString
			overriddenBy, overrideReason     sql.NullString
		)
		if err := rows.Scan(&is.ID, &docID, &is.ShipmentID, &is.RuleID, &is.RuleName,
			(*string)(&is.Severity), &is.Message, &field, &expected, &actual,
			&is.IsOverridden, &overriddenBy, &overrideReason, &is.CreatedAt); err != nil {
			return nil, mapPQError("store.list_issues", err)
		}
		is.DocumentID = strOf(docID)
		is.Field = strOf(field)
		is.ExpectedValue, is.ActualValue = strOf(expected), strOf(actual)
		is.OverriddenBy, is.OverrideReason = strOf(overriddenBy), strOf(overrideReason)
		out = append(out, &is)
	}
	return out, rows.Err()
}

// OverrideIssue marks one issue as handled by a compliance officer.
func (sess *Session) OverrideIssue(ctx context.Context, issueID, byUserID, reason string) error {
	res, err := sess.tx.ExecContext(ctx, `
		UPDATE document_issues
		SET is_overridden = true, overridden_by = $2, override_reason = $3
		WHERE id = $1`, issueID, byUserID, reason)
	if err != nil {
		return mapPQError("store.override_issue", err)
	}
	return requireRow(res, "store.override_issue")
}

// InsertComplianceResults appends one evaluation's rule outcomes.
func (sess *Session) InsertComplianceResults(ctx context.Context, results []*models.ComplianceResult) error {
	for _, r := range results {
		if _, err := sess.tx.ExecContext(ctx, `
			INSERT INTO compliance_results
				(id, document_id, shipment_id, rule_id, passed, severity, message, checked_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			r.ID, nullStr(r.DocumentID), r.ShipmentID, r.RuleID, r.Passed,
			string(r.Severity), r.Message, r.CheckedAt); err != nil {
			return mapPQError("store.insert_compliance_results", err)
		}
	}
	return nil
}

// ListComplianceResults returns the latest evaluation's outcomes.
func (sess *Session) ListComplianceResults(ctx context.Context, shipmentID string) ([]*models.ComplianceResult, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT id, document_id, shipment_id, rule_id, passed, severity, message, checked_at
		FROM compliance_results
		WHERE shipment_id = $1
		  AND checked_at = (SELECT MAX(checked_at) FROM compliance_results WHERE shipment_id = $1)
		ORDER BY rule_id`, shipmentID)
	if err != nil {
		return nil, mapPQError("store.list_compliance_results", err)
	}
	defer rows.Close()
	var out []*models.ComplianceResult
	for rows.Next() {
		var (
			r     models.ComplianceResult
			docID sql.NullString
		)
		if err := rows.Scan(&r.ID, &docID, &r.ShipmentID, &r.RuleID, &r.Passed,
			(*string)(&r.Severity), &r.Message, &r.CheckedAt); err != nil {
			return nil, mapPQError("store.list_compliance_results", err)
		}
		r.DocumentID = strOf(docID)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RegisterReference records a document reference number for duplicate
// detection. Returns true when the reference was already known for this
// shipment and document type.
func (sess *Session) RegisterReference(ctx context.Context, e *models.ReferenceEntry) (bool, error) {
	res, err := sess.tx.ExecContext(ctx, `
		INSERT INTO reference_registry (shipment_id, reference_number, document_type, first_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shipment_id, reference_number, document_type) DO NOTHING`,
		e.ShipmentID, e.ReferenceNumber, string(e.DocumentType), e.FirstSeenAt)
	if err != nil {
		return false, mapPQError("store.register_reference", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapPQError("store.register_reference", err)
	}
	return n == 0, nil
}
