package api

import "net/http"

// handleOpenAPI serves a hand-maintained summary document. It tracks
// routes() by convention; detailed schemas live with the handlers.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "TraceHub API",
			"version": s.version,
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
		"security": []map[string]any{{"bearerAuth": []string{}}},
		"paths": map[string]any{
			"/api/health":   pathDoc("GET", "Liveness and database probe"),
			"/api/version":  pathDoc("GET", "Build version"),
			"/metrics":      pathDoc("GET", "Prometheus metrics"),
			"/auth/login":   pathDoc("POST", "Exchange credentials for a bearer token"),
			"/auth/me":      pathDoc("GET", "Caller identity and permissions"),
			"/auth/change-password": pathDoc("POST", "Rotate the caller's password"),
			"/organizations":                          pathDoc("GET,POST", "List or provision organizations"),
			"/organizations/{id}":                     pathDoc("GET,PATCH", "Read or update one organization"),
			"/organizations/{id}/members":             pathDoc("GET", "List members"),
			"/organizations/{id}/members/{userID}":    pathDoc("PATCH,DELETE", "Change role or deactivate a member"),
			"/invitations":                            pathDoc("GET,POST", "List or issue invitations"),
			"/invitations/accept":                     pathDoc("POST", "Redeem an invitation token"),
			"/invitations/{id}/resend":                pathDoc("POST", "Rotate and reissue a token"),
			"/invitations/{id}":                       pathDoc("DELETE", "Revoke an invitation"),
			"/shipments":                              pathDoc("GET,POST", "List or create shipments"),
			"/shipments/{id}":                         pathDoc("GET,PATCH", "Read or update one shipment"),
			"/shipments/{id}/transition":              pathDoc("POST", "Move the shipment lifecycle"),
			"/shipments/{id}/products":                pathDoc("GET,POST", "Products on a shipment"),
			"/shipments/{id}/origins":                 pathDoc("GET,POST", "EUDR origin evidence"),
			"/documents":                              pathDoc("GET,POST", "List by shipment or upload (multipart)"),
			"/documents/{id}":                         pathDoc("GET", "Document with detected contents"),
			"/documents/{id}/transition":              pathDoc("POST", "Move the document lifecycle"),
			"/documents/{id}/download":                pathDoc("GET", "Short-lived signed download URL"),
			"/tracking/{shipmentID}/events":           pathDoc("GET", "Container event history"),
			"/tracking/{shipmentID}/resume":           pathDoc("POST", "Resume suspended carrier polling"),
			"/compliance/{shipmentID}/run":            pathDoc("POST", "Evaluate the rules engine"),
			"/compliance/{shipmentID}/issues":         pathDoc("GET", "Current issues"),
			"/compliance/{shipmentID}/results":        pathDoc("GET", "Latest evaluation results"),
			"/compliance/{shipmentID}/issues/{issueID}/override": pathDoc("POST", "Override one issue with a reason"),
			"/audit-packs/{shipmentID}":               pathDoc("POST", "Assemble the audit-pack archive"),
			"/notifications":                          pathDoc("GET", "Caller's notification feed"),
			"/notifications/{id}/read":                pathDoc("POST", "Mark one notification read"),
			"/notifications/preferences":              pathDoc("GET,PUT", "Per-type channel preferences"),
			"/notifications/feed":                     pathDoc("GET", "Websocket live feed (?token=)"),
			"/audit-logs":                             pathDoc("GET", "Query the append-only audit trail"),
		},
	}
	writeJSON(w, http.StatusOK, doc)
}

func pathDoc(methods, summary string) map[string]any {
	return map[string]any{"x-methods": methods, "summary": summary}
}
