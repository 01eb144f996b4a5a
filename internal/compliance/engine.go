package compliance

import (
	"sort"
	"time"
)

// Decision is the aggregate outcome of an evaluation.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionHold    Decision = "HOLD"
	DecisionReject  Decision = "REJECT"
)

// Override re-applies a prior operator override onto a re-created issue.
// Matching is by (rule id, field).
type Override struct {
	RuleID string
	Field  string
	By     string
	Reason string
}

// Evaluation is the full result of one engine run.
type Evaluation struct {
	Decision       Decision     `json:"decision"`
	Results        []RuleResult `json:"results"`
	ActiveFailures int          `json:"activeFailures"`
	EvaluatedAt    time.Time    `json:"evaluatedAt"`
	MatrixVersion  string       `json:"matrixVersion"`
}

// Engine evaluates the registered rule set against a shipment. The rule
// registry is immutable after construction; evaluation order is rule id
// lexically ascending, which makes runs deterministic.
type Engine struct {
	matrix *Matrix
	rules  []Rule
}

// NewEngine builds an engine with the canonical rule registry.
func NewEngine(matrix *Matrix) *Engine {
	rules := bolRules()
	rules = append(rules, crossDocRules()...)
	rules = append(rules, eudrRules()...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return &Engine{matrix: matrix, rules: rules}
}

// Matrix exposes the engine's policy snapshot.
func (e *Engine) Matrix() *Matrix { return e.matrix }

// Evaluate runs every applicable rule and aggregates the decision.
// Overrides from earlier runs are re-applied by (rule id, field) before
// aggregation; overridden failures stay visible but do not count.
func (e *Engine) Evaluate(in *Input, overrides []Override) *Evaluation {
	overridden := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		overridden[o.RuleID+"|"+o.Field] = o
	}

	eval := &Evaluation{
		Decision:      DecisionApprove,
		EvaluatedAt:   time.Now().UTC(),
		MatrixVersion: e.matrix.Version,
	}

	for _, rule := range e.rules {
		if !rule.Applicable(in) {
			continue
		}
		passed, message, field, expected, actual := rule.Eval(in)
		result := RuleResult{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Passed:   passed,
			Severity: rule.Severity,
			Message:  message,
			Field:    field,
			Expected: expected,
			Actual:   actual,
		}
		if !passed {
			if _, ok := overridden[rule.ID+"|"+field]; ok {
				result.Overridden = true
			}
		}
		eval.Results = append(eval.Results, result)
	}

	eval.Decision, eval.ActiveFailures = Aggregate(eval.Results)
	return eval
}

// Aggregate computes the decision from a result set: any un-overridden
// ERROR rejects; otherwise any un-overridden WARNING holds; otherwise
// approve. The active failure count excludes INFO results.
func Aggregate(results []RuleResult) (Decision, int) {
	var errs, warns int
	for _, r := range results {
		if r.Passed || r.Overridden {
			continue
		}
		switch r.Severity {
		case "ERROR":
			errs++
		case "WARNING":
			warns++
		}
	}
	switch {
	case errs > 0:
		return DecisionReject, errs + warns
	case warns > 0:
		return DecisionHold, warns
	default:
		return DecisionApprove, 0
	}
}
