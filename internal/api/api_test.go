package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vibotaj/tracehub/internal/auditpack"
	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/bol"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/config"
	"github.com/vibotaj/tracehub/internal/invitations"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/notifications"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/websocket"
)

type testEnv struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
	tokens  *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.NewWithDB(db)
	blobs, err := blob.NewFSStore(t.TempDir(), "http://localhost:8080", []byte("test-sign-key"))
	require.NoError(t, err)

	tokens := auth.NewTokens("test-token-key", time.Hour)
	bus := notifications.NewBus(st, nil)
	engine := compliance.NewEngine(compliance.NewMatrix())

	handler := NewServer(Deps{
		Config:      &config.Config{},
		Store:       st,
		Blobs:       blobs,
		Tokens:      tokens,
		Bus:         bus,
		Hub:         websocket.NewHub(),
		BoL:         bol.NewService(st, blobs, nil),
		Compliance:  compliance.NewService(st, engine, bus),
		Invitations: invitations.NewService(st, bus),
		AuditPacks:  auditpack.NewService(st, blobs, engine),
		Version:     "test",
	})
	return &testEnv{handler: handler, mock: mock, tokens: tokens}
}

func (e *testEnv) bearer(t *testing.T, orgID string, sysRole models.SystemRole, orgRole models.OrgRole) string {
	t.Helper()
	token, _, err := e.tokens.Issue("user-1", orgID, sysRole, orgRole)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func expectSession(mock sqlmock.Sqlmock, orgID string) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs("tracehub.current_org_id", orgID, "tracehub.is_system_admin", "off").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectSystemSession(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config`).
		WithArgs("tracehub.current_org_id", "", "tracehub.is_system_admin", "on").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func userRow(id, email, hash string, active bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "system_role",
		"organization_id", "is_active", "created_at", "updated_at", "deleted_at", "deleted_by",
	}).AddRow(id, email, hash, "Test User", "supplier", "org-a", active, now, now, nil, nil)
}

func shipmentColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "buyer_organization_id", "reference",
		"container_number", "product_type", "bl_number", "vessel", "voyage",
		"pol_code", "pol_name", "pod_code", "pod_name", "etd", "eta", "atd", "ata",
		"incoterms", "status", "is_historical", "tracking_suspended",
		"last_polled_at", "created_at", "updated_at",
	})
}

func shipmentRow(id, orgID, buyerOrgID string) *sqlmock.Rows {
	now := time.Now().UTC()
	var buyer any
	if buyerOrgID != "" {
		buyer = buyerOrgID
	}
	return shipmentColumns().AddRow(id, orgID, buyer, "VIBO-2026-001",
		"MSKU1234565", "horn_hoof", nil, nil, nil,
		nil, nil, nil, nil, nil, nil, nil, nil,
		nil, "draft", false, false, nil, now, now)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/shipments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_error", errorCode(t, rec))
}

func TestGarbageTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/shipments", "Bearer not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVersionIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"test"`)
}

func TestOpenAPIDocServed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/shipments")
	assert.Contains(t, paths, "/compliance/{shipmentID}/run")
}

func TestLoginHappyPath(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("correct horse battery")
	require.NoError(t, err)

	expectSystemSession(env.mock)
	env.mock.ExpectQuery(`FROM users WHERE email`).
		WillReturnRows(userRow("user-1", "ops@vibotaj.com", hash, true))
	env.mock.ExpectQuery(`FROM memberships WHERE user_id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "organization_id", "org_role", "is_primary", "status", "created_at",
		}).AddRow("m-1", "user-1", "org-a", "manager", true, "active", time.Now()))
	env.mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ops@vibotaj.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "org-a", resp.OrgID)
	assert.Equal(t, models.OrgRoleManager, resp.OrgRole)

	tc, err := env.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", tc.UserID)
	assert.Equal(t, "org-a", tc.OrganizationID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestLoginWrongPasswordIsUniform(t *testing.T) {
	env := newTestEnv(t)
	hash, err := auth.HashPassword("the real password")
	require.NoError(t, err)

	expectSystemSession(env.mock)
	env.mock.ExpectQuery(`FROM users WHERE email`).
		WillReturnRows(userRow("user-1", "ops@vibotaj.com", hash, true))
	env.mock.ExpectRollback()

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ops@vibotaj.com",
		"password": "a guess",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
}

func TestGetShipmentNotFound(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentColumns())
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodGet, "/shipments/sh-missing", authz, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestGetShipmentCrossTenantReads404(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-b")
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-b", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodGet, "/shipments/sh-1", authz, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "cross-tenant access must be indistinguishable from absence")
}

func TestGetShipmentBuyerReadPath(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-buyer")
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", "org-buyer"))
	env.mock.ExpectCommit()

	authz := env.bearer(t, "org-buyer", models.RoleBuyer, models.OrgRoleViewer)
	rec := env.do(t, http.MethodGet, "/shipments/sh-1", authz, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "VIBO-2026-001")
}

func TestCreateShipmentValidation(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)

	rec := env.do(t, http.MethodPost, "/shipments", authz, map[string]string{
		"productType": "horn_hoof",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), `"field":"reference"`)
}

func TestCreateShipmentRejectsBadContainer(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)

	rec := env.do(t, http.MethodPost, "/shipments", authz, map[string]string{
		"reference":       "VIBO-2026-002",
		"productType":     "horn_hoof",
		"containerNumber": "NOT-A-CONTAINER",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ISO 6346")
}

func TestCreateShipmentHappyPath(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectExec(`INSERT INTO shipments`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()
	// Post-commit notification lands in the outbox via a system session.
	expectSystemSession(env.mock)
	env.mock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/shipments", authz, map[string]string{
		"reference":   "VIBO-2026-003",
		"productType": "horn_hoof",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sh models.Shipment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sh))
	assert.Equal(t, models.ShipmentDraft, sh.Status)
	assert.Equal(t, "org-a", sh.OrganizationID)
	assert.NotEmpty(t, sh.ID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestViewerCannotCreateShipment(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleViewer, models.OrgRoleViewer)
	rec := env.do(t, http.MethodPost, "/shipments", authz, map[string]string{
		"reference":   "VIBO-2026-004",
		"productType": "horn_hoof",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_error", errorCode(t, rec))
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/shipments", authz, map[string]string{
		"reference":   "VIBO-2026-005",
		"productType": "horn_hoof",
		"tpyo":        "oops",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set("X-Request-ID", "req-upstream-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-upstream-42", rec.Header().Get("X-Request-ID"))
}

func TestRateLimitEnvelope(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := withRateLimit(rate.NewLimiter(0, 0))(inner)

	req := httptest.NewRequest(http.MethodGet, "/shipments", nil)
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestBearerTokenQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications/feed?token=tok-123", nil)
	assert.Equal(t, "tok-123", bearerToken(req))

	req2 := httptest.NewRequest(http.MethodGet, "/shipments", nil)
	req2.Header.Set("Authorization", "Bearer tok-456")
	assert.Equal(t, "tok-456", bearerToken(req2))
}

func TestRouteGroup(t *testing.T) {
	assert.Equal(t, "shipments", routeGroup("/shipments/sh-1/transition"))
	assert.Equal(t, "api", routeGroup("/api/health"))
	assert.Equal(t, "root", routeGroup("/"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestQueryInt(t *testing.T) {
	assert.Equal(t, 50, queryInt("", 50))
	assert.Equal(t, 25, queryInt("25", 50))
	assert.Equal(t, 50, queryInt("-1", 50))
	assert.Equal(t, 50, queryInt("abc", 50))
}

func TestParseFormDate(t *testing.T) {
	assert.Nil(t, parseFormDate(""))
	assert.Nil(t, parseFormDate("next tuesday"))
	got := parseFormDate("2026-08-01")
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())
	rfc := parseFormDate("2026-08-01T12:30:00Z")
	require.NotNil(t, rfc)
	assert.Equal(t, 12, rfc.Hour())
}

func TestPickMembership(t *testing.T) {
	memberships := []*models.Membership{
		{OrganizationID: "org-x", OrgRole: models.OrgRoleViewer, Status: models.MembershipInactive},
		{OrganizationID: "org-a", OrgRole: models.OrgRoleManager, Status: models.MembershipActive},
		{OrganizationID: "org-b", OrgRole: models.OrgRoleMember, Status: models.MembershipActive, IsPrimary: true},
	}
	slugOf := func(orgID string) (string, error) {
		return map[string]string{"org-a": "acme", "org-b": "vibotaj"}[orgID], nil
	}

	t.Run("primary wins without slug", func(t *testing.T) {
		m := pickMembership(memberships, "", slugOf)
		require.NotNil(t, m)
		assert.Equal(t, "org-b", m.OrganizationID)
	})

	t.Run("slug selects secondary org", func(t *testing.T) {
		m := pickMembership(memberships, "acme", slugOf)
		require.NotNil(t, m)
		assert.Equal(t, "org-a", m.OrganizationID)
	})

	t.Run("unknown slug yields nothing", func(t *testing.T) {
		assert.Nil(t, pickMembership(memberships, "ghost", slugOf))
	})

	t.Run("inactive memberships never match", func(t *testing.T) {
		assert.Nil(t, pickMembership(memberships[:1], "", slugOf))
	})
}

func TestSignedBlobExpiredLink(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/blobs/documents/org-a/doc-1/file.pdf?exp=1&sig=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "expired timestamp rejected before the signature check")
}

func TestMarkNotificationRead(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectExec(`UPDATE notifications SET read_at`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleMember)
	rec := env.do(t, http.MethodPost, "/notifications/n-1/read", authz, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestAuditLogsRequirePermission(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleMember)
	rec := env.do(t, http.MethodGet, "/audit-logs", authz, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func documentRow(id, shipmentID, docType, refNo, authority string) *sqlmock.Rows {
	now := time.Now().UTC()
	var ref, auth any
	if refNo != "" {
		ref = refNo
	}
	if authority != "" {
		auth = authority
	}
	return sqlmock.NewRows([]string{
		"id", "shipment_id", "organization_id", "document_type", "status",
		"file_name", "file_path", "file_size", "mime_type", "checksum", "reference_number",
		"issue_date", "expiry_date", "issuing_authority", "canonical_data", "version",
		"is_primary", "supersedes_id", "confidence", "parsed_at", "last_validated_at",
		"created_at", "updated_at",
	}).AddRow(id, shipmentID, "org-a", docType, "uploaded",
		"file.pdf", "documents/org-a/"+id+"/file.pdf", int64(1024), "application/pdf", nil, ref,
		nil, nil, auth, nil, 1,
		true, nil, 0.0, nil, nil,
		now, now)
}

func (e *testEnv) doMultipart(t *testing.T, path, authz string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", authz)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadEUDRDocRejectedForHornHoof(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.doMultipart(t, "/documents", authz, map[string]string{
		"shipmentId":   "sh-1",
		"documentType": "eudr_due_diligence",
	}, "dds.pdf", []byte("%PDF-1.4 test"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "validation_error", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), `"field":"documentType"`)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestMemberCannotValidateDocument(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM documents WHERE id`).
		WillReturnRows(documentRow("doc-1", "sh-1", "bill_of_lading", "BL-123", ""))
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleMember)
	rec := env.do(t, http.MethodPost, "/documents/doc-1/transition", authz,
		map[string]string{"to": "validated"})

	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, "permission_error", errorCode(t, rec))
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestManagerValidatesDocument(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM documents WHERE id`).
		WillReturnRows(documentRow("doc-1", "sh-1", "bill_of_lading", "BL-123", ""))
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectExec(`UPDATE documents SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/documents/doc-1/transition", authz,
		map[string]string{"to": "validated"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"validated"`)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestValidateDocumentNeedsReferenceNumber(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM documents WHERE id`).
		WillReturnRows(documentRow("doc-1", "sh-1", "bill_of_lading", "", ""))
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/documents/doc-1/transition", authz,
		map[string]string{"to": "validated"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"field":"referenceNumber"`)
}

func TestValidateCertificateNeedsIssuingAuthority(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM documents WHERE id`).
		WillReturnRows(documentRow("doc-1", "sh-1", "phytosanitary_certificate", "PC-42", ""))
	env.mock.ExpectQuery(`FROM shipments WHERE id`).
		WillReturnRows(shipmentRow("sh-1", "org-a", ""))
	env.mock.ExpectRollback()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/documents/doc-1/transition", authz,
		map[string]string{"to": "validated"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"field":"issuingAuthority"`)
}

func TestRejectDocumentRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleManager)
	rec := env.do(t, http.MethodPost, "/documents/doc-1/transition", authz,
		map[string]string{"to": "rejected", "reason": "  "})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "validation_error", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), `"field":"reason"`)
}

func TestAuditLogsQueryFilters(t *testing.T) {
	env := newTestEnv(t)
	expectSession(env.mock, "org-a")
	env.mock.ExpectQuery(`FROM audit_log`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "ts", "organization_id", "user_id", "action",
			"resource_type", "resource_id", "details", "request_id",
		}).AddRow("a-1", time.Now(), "org-a", "user-1", "shipment.created",
			"shipment", "sh-1", []byte(`{"reference":"VIBO-2026-001"}`), nil))
	env.mock.ExpectCommit()

	authz := env.bearer(t, "org-a", models.RoleSupplier, models.OrgRoleAdmin)
	u := "/audit-logs?" + url.Values{
		"resourceType": {"shipment"},
		"action":       {"shipment.created"},
		"limit":        {"10"},
	}.Encode()
	rec := env.do(t, http.MethodGet, u, authz, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "shipment.created")
}
