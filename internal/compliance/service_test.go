package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vibotaj/tracehub/internal/models"
)

func TestOverridesFromKeepsOnlyOverridden(t *testing.T) {
	prior := []*models.DocumentIssue{
		{RuleID: "BOL-003", Field: "container_number", IsOverridden: true,
			OverriddenBy: "user-1", OverrideReason: "carrier typo confirmed"},
		{RuleID: "XD-WEIGHT", Field: "net_weight"},
	}
	got := overridesFrom(prior)
	assert.Len(t, got, 1)
	assert.Equal(t, "BOL-003", got[0].RuleID)
	assert.Equal(t, "carrier typo confirmed", got[0].Reason)
}

func TestDocumentForScopesBoLRules(t *testing.T) {
	assert.Equal(t, "doc-bol", documentFor("BOL-007", "doc-bol"))
	assert.Equal(t, "", documentFor("XD-CONTAINER", "doc-bol"))
	assert.Equal(t, "", documentFor("EUDR-GEO", "doc-bol"))
}

func TestDecisionNotificationIDDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := decisionNotificationID("ship-1", DecisionHold, at)
	b := decisionNotificationID("ship-1", DecisionHold, at)
	c := decisionNotificationID("ship-1", DecisionReject, at)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
