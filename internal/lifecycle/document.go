// Package lifecycle encodes the document and shipment state machines as
// static transition tables. The same tables drive the executors and the
// generated state documentation; no transition logic lives anywhere else.
package lifecycle

import (
	"fmt"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/models"
)

// docTransitions is the legal document transition table. Any pair not
// listed here fails with an invalid-transition error.
var docTransitions = map[models.DocumentStatus][]models.DocumentStatus{
	models.DocDraft:             {models.DocUploaded, models.DocExpired},
	models.DocUploaded:          {models.DocPendingValidation, models.DocValidated, models.DocRejected, models.DocExpired},
	models.DocPendingValidation: {models.DocValidated, models.DocRejected, models.DocExpired},
	models.DocValidated:         {models.DocComplianceOK, models.DocComplianceFailed, models.DocRejected, models.DocExpired},
	models.DocComplianceOK:      {models.DocLinked, models.DocComplianceFailed, models.DocComplianceOK, models.DocExpired},
	models.DocComplianceFailed:  {models.DocLinked, models.DocComplianceOK, models.DocComplianceFailed, models.DocExpired},
	models.DocLinked:            {models.DocArchived, models.DocExpired},
	models.DocArchived:          {},
	models.DocRejected:          {},
	models.DocExpired:           {},
}

// DocTerminal reports whether a document state admits no transitions.
func DocTerminal(s models.DocumentStatus) bool {
	return len(docTransitions[s]) == 0
}

// CanDocTransition checks the table without side effects.
func CanDocTransition(from, to models.DocumentStatus) bool {
	for _, next := range docTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DocTransition validates a document state change. The caller persists the
// change and the audit entry in the same transaction.
func DocTransition(from, to models.DocumentStatus) error {
	if CanDocTransition(from, to) {
		return nil
	}
	return apperr.New(apperr.KindInvalidTransition, "documents.transition",
		fmt.Sprintf("cannot move document from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// DocStates enumerates every known document state, for documentation and
// exhaustiveness checks.
func DocStates() []models.DocumentStatus {
	return []models.DocumentStatus{
		models.DocDraft, models.DocUploaded, models.DocPendingValidation,
		models.DocValidated, models.DocComplianceOK, models.DocComplianceFailed,
		models.DocLinked, models.DocArchived, models.DocRejected, models.DocExpired,
	}
}
