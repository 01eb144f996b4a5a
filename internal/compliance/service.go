package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibotaj/tracehub/internal/apperr"
	"github.com/vibotaj/tracehub/internal/lifecycle"
	"github.com/vibotaj/tracehub/internal/metrics"
	"github.com/vibotaj/tracehub/internal/models"
	"github.com/vibotaj/tracehub/internal/store"
	"github.com/vibotaj/tracehub/internal/tenant"
)

// Publisher receives the decision notification after a run commits.
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification)
}

// Service runs the rules engine against stored shipments and persists
// the outcome: issues, results, document status moves, and the
// docs_pending → docs_complete shipment transition.
type Service struct {
	store     *store.Store
	engine    *Engine
	publisher Publisher
}

func NewService(st *store.Store, engine *Engine, publisher Publisher) *Service {
	return &Service{store: st, engine: engine, publisher: publisher}
}

// Run evaluates one shipment. Prior overrides survive by (rule_id,
// field); the advisory lock serializes concurrent runs and tracking
// updates on the same shipment.
func (s *Service) Run(ctx context.Context, tc *tenant.Context, shipmentID string) (*Evaluation, error) {
	if err := tenant.Authorize(tc, tenant.PermComplianceRun, "", ""); err != nil {
		return nil, err
	}
	started := time.Now()
	var (
		eval     *Evaluation
		shipment *models.Shipment
	)
	err := s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		if err := sess.LockShipment(ctx, shipmentID); err != nil {
			return err
		}
		sh, err := sess.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := tenant.Authorize(tc, tenant.PermComplianceRun, sh.OrganizationID, ""); err != nil {
			return err
		}
		products, err := sess.ListProducts(ctx, shipmentID)
		if err != nil {
			return err
		}
		origins, err := sess.ListOrigins(ctx, shipmentID)
		if err != nil {
			return err
		}
		docs, err := sess.ListDocuments(ctx, shipmentID)
		if err != nil {
			return err
		}
		prior, err := sess.ListIssues(ctx, shipmentID)
		if err != nil {
			return err
		}

		in := &Input{Shipment: *sh}
		for _, p := range products {
			in.Products = append(in.Products, *p)
		}
		for _, o := range origins {
			in.Origins = append(in.Origins, *o)
		}
		for _, d := range docs {
			in.Documents = append(in.Documents, *d)
		}
		eval = s.engine.Evaluate(in, overridesFrom(prior))

		if err := s.persist(ctx, sess, sh, docs, eval); err != nil {
			return err
		}
		shipment = sh
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      eval.EvaluatedAt,
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "compliance.evaluated",
			ResourceType:   "shipment",
			ResourceID:     shipmentID,
			Details: map[string]any{
				"decision":        string(eval.Decision),
				"active_failures": eval.ActiveFailures,
				"matrix_version":  eval.MatrixVersion,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.RuleEvaluationsTotal.WithLabelValues(string(eval.Decision)).Inc()
	metrics.RuleEvaluationDuration.Observe(time.Since(started).Seconds())

	if s.publisher != nil {
		s.publisher.Publish(ctx, &models.Notification{
			ID:             decisionNotificationID(shipmentID, eval.Decision, eval.EvaluatedAt),
			OrganizationID: shipment.OrganizationID,
			Type:           models.NotifyComplianceDecision,
			Title:          "Compliance decision for " + shipment.Reference + ": " + string(eval.Decision),
			ResourceType:   "shipment",
			ResourceID:     shipmentID,
		})
	}
	log.Info().
		Str("shipment_id", shipmentID).
		Str("decision", string(eval.Decision)).
		Int("active_failures", eval.ActiveFailures).
		Msg("Compliance run finished")
	return eval, nil
}

// persist writes issues and results, moves validated documents to
// their compliance status, and advances the shipment when the document
// set is complete.
func (s *Service) persist(ctx context.Context, sess *store.Session, sh *models.Shipment, docs []*models.Document, eval *Evaluation) error {
	bolID := ""
	for _, d := range docs {
		if d.Type == models.DocBillOfLading && d.IsPrimary {
			bolID = d.ID
		}
	}

	var issues []*models.DocumentIssue
	results := make([]*models.ComplianceResult, 0, len(eval.Results))
	for _, r := range eval.Results {
		results = append(results, &models.ComplianceResult{
			ID:         uuid.NewString(),
			DocumentID: documentFor(r.RuleID, bolID),
			ShipmentID: sh.ID,
			RuleID:     r.RuleID,
			Passed:     r.Passed,
			Severity:   r.Severity,
			Message:    r.Message,
			CheckedAt:  eval.EvaluatedAt,
		})
		if r.Passed {
			continue
		}
		issues = append(issues, &models.DocumentIssue{
			ID:            uuid.NewString(),
			DocumentID:    documentFor(r.RuleID, bolID),
			ShipmentID:    sh.ID,
			RuleID:        r.RuleID,
			RuleName:      r.RuleName,
			Severity:      r.Severity,
			Message:       r.Message,
			Field:         r.Field,
			ExpectedValue: r.Expected,
			ActualValue:   r.Actual,
			CreatedAt:     eval.EvaluatedAt,
		})
	}
	if err := sess.ReplaceIssues(ctx, sh.ID, issues); err != nil {
		return err
	}
	if err := sess.InsertComplianceResults(ctx, results); err != nil {
		return err
	}

	failedDocs := map[string]bool{}
	for _, is := range issues {
		if is.Severity == models.SeverityError && is.DocumentID != "" {
			failedDocs[is.DocumentID] = true
		}
	}
	for _, d := range docs {
		if d.Status != models.DocValidated && d.Status != models.DocComplianceOK && d.Status != models.DocComplianceFailed {
			continue
		}
		target := models.DocComplianceOK
		if failedDocs[d.ID] {
			target = models.DocComplianceFailed
		}
		if d.Status == target {
			continue
		}
		if !lifecycle.CanDocTransition(d.Status, target) {
			continue
		}
		if err := sess.UpdateDocumentStatus(ctx, d.ID, target); err != nil {
			return err
		}
		if err := sess.TouchDocumentValidated(ctx, d.ID, eval.EvaluatedAt); err != nil {
			return err
		}
	}

	return s.advanceShipment(ctx, sess, sh, docs, eval)
}

// advanceShipment moves docs_pending shipments to docs_complete once
// every required document is present, validated, and the decision is
// not a rejection.
func (s *Service) advanceShipment(ctx context.Context, sess *store.Session, sh *models.Shipment, docs []*models.Document, eval *Evaluation) error {
	if sh.Status != models.ShipmentDocsPending || eval.Decision == DecisionReject {
		return nil
	}
	present := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		present = append(present, *d)
	}
	missing := s.engine.Matrix().MissingDocs(sh.ProductType, present, func(st models.DocumentStatus) bool {
		return st == models.DocValidated || st == models.DocComplianceOK || st == models.DocLinked
	})
	if len(missing) > 0 {
		return nil
	}
	if err := lifecycle.ShipmentTransition(sh.Status, models.ShipmentDocsComplete); err != nil {
		return err
	}
	if err := sess.UpdateShipmentStatus(ctx, sh.ID, models.ShipmentDocsComplete); err != nil {
		return err
	}
	sh.Status = models.ShipmentDocsComplete
	return sess.AppendAudit(ctx, &models.AuditEntry{
		ID:             uuid.NewString(),
		Timestamp:      eval.EvaluatedAt,
		OrganizationID: sh.OrganizationID,
		UserID:         "system",
		Action:         "shipment.status_changed",
		ResourceType:   "shipment",
		ResourceID:     sh.ID,
		Details:        map[string]any{"from": string(models.ShipmentDocsPending), "to": string(models.ShipmentDocsComplete)},
	})
}

// OverrideIssue marks one issue overridden with a reason. Only
// compliance managers may override; the reason is mandatory.
func (s *Service) OverrideIssue(ctx context.Context, tc *tenant.Context, shipmentID, issueID, reason string) error {
	if err := tenant.Authorize(tc, tenant.PermComplianceOverride, "", ""); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return apperr.New(apperr.KindValidation, "compliance.override", "override reason is required").WithField("reason")
	}
	return s.store.WithSession(ctx, tc, func(sess *store.Session) error {
		sh, err := sess.GetShipment(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := tenant.Authorize(tc, tenant.PermComplianceOverride, sh.OrganizationID, ""); err != nil {
			return err
		}
		if err := sess.OverrideIssue(ctx, issueID, tc.UserID, reason); err != nil {
			return err
		}
		return sess.AppendAudit(ctx, &models.AuditEntry{
			ID:             uuid.NewString(),
			Timestamp:      time.Now().UTC(),
			OrganizationID: sh.OrganizationID,
			UserID:         tc.UserID,
			Action:         "compliance.issue_overridden",
			ResourceType:   "document_issue",
			ResourceID:     issueID,
			Details:        map[string]any{"reason": reason, "shipment_id": shipmentID},
		})
	})
}

// overridesFrom extracts the surviving overrides from the previous run.
func overridesFrom(prior []*models.DocumentIssue) []Override {
	var out []Override
	for _, is := range prior {
		if is.IsOverridden {
			out = append(out, Override{
				RuleID: is.RuleID,
				Field:  is.Field,
				By:     is.OverriddenBy,
				Reason: is.OverrideReason,
			})
		}
	}
	return out
}

// documentFor ties BoL rule outcomes to the BoL document row;
// cross-document and EUDR rules stay shipment-scoped.
func documentFor(ruleID, bolID string) string {
	if strings.HasPrefix(ruleID, "BOL-") {
		return bolID
	}
	return ""
}

func decisionNotificationID(shipmentID string, d Decision, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte("compliance:"+shipmentID+":"+string(d)+":"+at.Format(time.RFC3339))).String()
}
