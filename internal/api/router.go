// Package api exposes the engine over HTTP: JSON handlers grouped per
// resource, a middleware chain shared by every route, and the OpenAPI
// document describing the surface.
package api

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/vibotaj/tracehub/internal/auditpack"
	"github.com/vibotaj/tracehub/internal/auth"
	"github.com/vibotaj/tracehub/internal/blob"
	"github.com/vibotaj/tracehub/internal/bol"
	"github.com/vibotaj/tracehub/internal/compliance"
	"github.com/vibotaj/tracehub/internal/config"
	"github.com/vibotaj/tracehub/internal/invitations"
	"github.com/vibotaj/tracehub/internal/notifications"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/websocket"
)

// Server wires handlers to their services.
type Server struct {
	mux         *http.ServeMux
	cfg         *config.Config
	store       *store.Store
	blobs       blob.Store
	tokens      *auth.Tokens
	bus         *notifications.Bus
	hub         *websocket.Hub
	bolSvc      *bol.Service
	compliance  *compliance.Service
	invitations *invitations.Service
	auditPacks  *auditpack.Service
	version     string
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Store       *store.Store
	Blobs       blob.Store
	Tokens      *auth.Tokens
	Bus         *notifications.Bus
	Hub         *websocket.Hub
	BoL         *bol.Service
	Compliance  *compliance.Service
	Invitations *invitations.Service
	AuditPacks  *auditpack.Service
	Version     string
}

// NewServer builds the handler tree with the full middleware chain:
// recovery, request id, metrics, rate limit, bearer auth.
func NewServer(d Deps) http.Handler {
	s := &Server{
		mux:         http.NewServeMux(),
		cfg:         d.Config,
		store:       d.Store,
		blobs:       d.Blobs,
		tokens:      d.Tokens,
		bus:         d.Bus,
		hub:         d.Hub,
		bolSvc:      d.BoL,
		compliance:  d.Compliance,
		invitations: d.Invitations,
		auditPacks:  d.AuditPacks,
		version:     d.Version,
	}
	s.routes()

	public := map[string]bool{
		"/api/health":              true,
		"/api/version":             true,
		"/openapi.json":            true,
		"/metrics":                 true,
		"/auth/login":              true,
		"/invitations/accept":      true,
	}
	limiter := rate.NewLimiter(rate.Limit(100), 200)
	return chain(s.mux,
		withRecovery,
		withRequestID,
		withMetrics,
		withRateLimit(limiter),
		withAuth(s.tokens, public),
	)
}

func (s *Server) routes() {
	// Platform
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/version", s.handleVersion)
	s.mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	s.mux.Handle("GET /metrics", metricsHandler())

	// Auth
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /auth/me", s.handleMe)
	s.mux.HandleFunc("POST /auth/change-password", s.handleChangePassword)

	// Organizations & members
	s.mux.HandleFunc("POST /organizations", s.handleCreateOrganization)
	s.mux.HandleFunc("GET /organizations", s.handleListOrganizations)
	s.mux.HandleFunc("GET /organizations/{id}", s.handleGetOrganization)
	s.mux.HandleFunc("PATCH /organizations/{id}", s.handleUpdateOrganization)
	s.mux.HandleFunc("GET /organizations/{id}/members", s.handleListMembers)
	s.mux.HandleFunc("PATCH /organizations/{id}/members/{userID}", s.handleUpdateMember)
	s.mux.HandleFunc("DELETE /organizations/{id}/members/{userID}", s.handleRemoveMember)

	// Invitations
	s.mux.HandleFunc("POST /invitations", s.handleCreateInvitation)
	s.mux.HandleFunc("GET /invitations", s.handleListInvitations)
	s.mux.HandleFunc("POST /invitations/accept", s.handleAcceptInvitation)
	s.mux.HandleFunc("POST /invitations/{id}/resend", s.handleResendInvitation)
	s.mux.HandleFunc("DELETE /invitations/{id}", s.handleRevokeInvitation)

	// Shipments
	s.mux.HandleFunc("POST /shipments", s.handleCreateShipment)
	s.mux.HandleFunc("GET /shipments", s.handleListShipments)
	s.mux.HandleFunc("GET /shipments/{id}", s.handleGetShipment)
	s.mux.HandleFunc("PATCH /shipments/{id}", s.handleUpdateShipment)
	s.mux.HandleFunc("POST /shipments/{id}/transition", s.handleTransitionShipment)
	s.mux.HandleFunc("POST /shipments/{id}/products", s.handleAddProduct)
	s.mux.HandleFunc("GET /shipments/{id}/products", s.handleListProducts)
	s.mux.HandleFunc("POST /shipments/{id}/origins", s.handleAddOrigin)
	s.mux.HandleFunc("GET /shipments/{id}/origins", s.handleListOrigins)

	// Documents
	s.mux.HandleFunc("POST /documents", s.handleUploadDocument)
	s.mux.HandleFunc("GET /documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("POST /documents/{id}/transition", s.handleTransitionDocument)
	s.mux.HandleFunc("GET /documents/{id}/download", s.handleDownloadDocument)

	// Tracking
	s.mux.HandleFunc("GET /tracking/{shipmentID}/events", s.handleListEvents)
	s.mux.HandleFunc("POST /tracking/{shipmentID}/resume", s.handleResumeTracking)

	// Compliance
	s.mux.HandleFunc("POST /compliance/{shipmentID}/run", s.handleRunCompliance)
	s.mux.HandleFunc("GET /compliance/{shipmentID}/issues", s.handleListIssues)
	s.mux.HandleFunc("GET /compliance/{shipmentID}/results", s.handleListResults)
	s.mux.HandleFunc("POST /compliance/{shipmentID}/issues/{issueID}/override", s.handleOverrideIssue)

	// Audit packs
	s.mux.HandleFunc("POST /audit-packs/{shipmentID}", s.handleBuildAuditPack)

	// Notifications
	s.mux.HandleFunc("GET /notifications", s.handleListNotifications)
	s.mux.HandleFunc("POST /notifications/{id}/read", s.handleMarkNotificationRead)
	s.mux.HandleFunc("GET /notifications/preferences", s.handleGetPreferences)
	s.mux.HandleFunc("PUT /notifications/preferences", s.handlePutPreference)
	s.mux.HandleFunc("GET /notifications/feed", s.handleFeed)

	// Audit log
	s.mux.HandleFunc("GET /audit-logs", s.handleQueryAuditLogs)

	// Signed blob downloads (filesystem driver)
	s.mux.HandleFunc("GET /blobs/{key...}", s.handleSignedBlob)
}
