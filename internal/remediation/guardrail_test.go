package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardrailChecks(t *testing.T) {
	cases := []struct {
		name  string
		guard Guardrail
		in    CheckInput
		pass  bool
	}{
		{"cost under", Guardrail{Type: GuardMaxCost, Threshold: 100}, CheckInput{Type: "x", EstimatedCost: 100}, true},
		{"cost over", Guardrail{Type: GuardMaxCost, Threshold: 100}, CheckInput{Type: "x", EstimatedCost: 101}, false},
		{"bid change over", Guardrail{Type: GuardMaxBidChange, Threshold: 30},
			CheckInput{Type: "reduce_bids", Params: map[string]any{"change_pct": -40.0}}, false},
		{"bid change ignores budget", Guardrail{Type: GuardMaxBidChange, Threshold: 30},
			CheckInput{Type: "reduce_budget", Params: map[string]any{"change_pct": -40.0}}, true},
		{"budget change over", Guardrail{Type: GuardMaxBudgetChange, Threshold: 30},
			CheckInput{Type: "reduce_budget", Params: map[string]any{"change_pct": 31}}, false},
		{"pause count over", Guardrail{Type: GuardMaxPauseCount, Threshold: 3},
			CheckInput{Type: "pause_keywords", Params: map[string]any{"count": 5}}, false},
		{"pause count missing", Guardrail{Type: GuardMaxPauseCount, Threshold: 3},
			CheckInput{Type: "pause_keywords"}, true},
		{"forbidden", Guardrail{Type: GuardForbiddenAction, Actions: []string{"delete_campaign"}},
			CheckInput{Type: "delete_campaign"}, false},
		{"scoped out", Guardrail{Type: GuardMaxCost, Threshold: 1, Actions: []string{"reduce_bids"}},
			CheckInput{Type: "add_negative_keywords", EstimatedCost: 50}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.guard.Check(tc.in)
			assert.Equal(t, tc.pass, res.Passed)
			if !tc.pass {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestDefaultGuardrailsAreFresh(t *testing.T) {
	a := DefaultGuardrails()
	a[0].Threshold = 1
	b := DefaultGuardrails()
	assert.Equal(t, 1000.0, b[0].Threshold)
}

type stubPolicy struct{ blocker bool }

func (stubPolicy) Name() string   { return "stub" }
func (stubPolicy) Critical() bool { return false }
func (p stubPolicy) Check(CheckInput) CheckResult {
	return CheckResult{Passed: false, Blocker: p.blocker, Reason: "stubbed"}
}

func TestEvaluatorUsesInjectedPolicies(t *testing.T) {
	v := NewEvaluator(stubPolicy{blocker: true}).Evaluate(Step{Action: "a"}, 0)
	assert.Len(t, v.Blockers, 1)
	assert.Empty(t, v.Warnings)

	v = NewEvaluator(stubPolicy{}).Evaluate(Step{Action: "a"}, 0)
	assert.Empty(t, v.Blockers)
	assert.Len(t, v.Warnings, 1)
}
