package remediation

import (
	"fmt"
	"math"
	"strings"
)

type GuardrailType string

const (
	GuardMaxCost         GuardrailType = "max_cost"
	GuardMaxBidChange    GuardrailType = "max_bid_change"
	GuardMaxBudgetChange GuardrailType = "max_budget_change"
	GuardMaxPauseCount   GuardrailType = "max_pause_count"
	GuardForbiddenAction GuardrailType = "forbidden_action"
)

// CheckInput is the proposal a policy judges: one step plus the
// remediation-wide cost estimate.
type CheckInput struct {
	Type          string
	Params        map[string]any
	EstimatedCost float64
}

type CheckResult struct {
	Passed  bool
	Blocker bool
	Reason  string
}

// Policy approves, warns on, or blocks one proposed step.
type Policy interface {
	Name() string
	Critical() bool
	Check(in CheckInput) CheckResult
}

// Guardrail is a configurable Policy. Actions scopes it to the listed step
// actions; for forbidden_action it is the forbidden list.
type Guardrail struct {
	GuardName  string        `json:"name" yaml:"name"`
	Type       GuardrailType `json:"type" yaml:"type"`
	Threshold  float64       `json:"threshold" yaml:"threshold"`
	IsCritical bool          `json:"critical" yaml:"critical"`
	Message    string        `json:"message" yaml:"message"`
	Actions    []string      `json:"actions,omitempty" yaml:"actions"`
}

func (g Guardrail) Name() string   { return g.GuardName }
func (g Guardrail) Critical() bool { return g.IsCritical }

func (g Guardrail) Check(in CheckInput) CheckResult {
	pass := CheckResult{Passed: true}
	if g.Type == GuardForbiddenAction {
		if contains(g.Actions, in.Type) {
			return g.fail(true, fmt.Sprintf("action %s is forbidden", in.Type))
		}
		return pass
	}
	if len(g.Actions) > 0 && !contains(g.Actions, in.Type) {
		return pass
	}
	switch g.Type {
	case GuardMaxCost:
		if in.EstimatedCost > g.Threshold {
			return g.fail(false, fmt.Sprintf("estimated cost %.2f exceeds %.2f", in.EstimatedCost, g.Threshold))
		}
	case GuardMaxBidChange:
		if isBidAction(in.Type) {
			if pct, ok := number(in.Params, "change_pct"); ok && math.Abs(pct) > g.Threshold {
				return g.fail(false, fmt.Sprintf("bid change %.1f%% exceeds %.1f%%", pct, g.Threshold))
			}
		}
	case GuardMaxBudgetChange:
		if isBudgetAction(in.Type) {
			if pct, ok := number(in.Params, "change_pct"); ok && math.Abs(pct) > g.Threshold {
				return g.fail(false, fmt.Sprintf("budget change %.1f%% exceeds %.1f%%", pct, g.Threshold))
			}
		}
	case GuardMaxPauseCount:
		if strings.HasPrefix(in.Type, "pause_") {
			if n, ok := number(in.Params, "count"); ok && n > g.Threshold {
				return g.fail(false, fmt.Sprintf("pausing %.0f items exceeds %.0f", n, g.Threshold))
			}
		}
	}
	return pass
}

func (g Guardrail) fail(blocker bool, detail string) CheckResult {
	reason := detail
	if g.Message != "" {
		reason = g.Message + ": " + detail
	}
	return CheckResult{Passed: false, Blocker: blocker, Reason: reason}
}

// DefaultGuardrails returns a new slice on every call.
func DefaultGuardrails() []Guardrail {
	return []Guardrail{
		{GuardName: "cost_ceiling", Type: GuardMaxCost, Threshold: 1000, IsCritical: true,
			Message: "Estimated cost exceeds the automatic approval limit"},
		{GuardName: "bid_change_limit", Type: GuardMaxBidChange, Threshold: 50, IsCritical: true,
			Message: "Bid change too large for automatic application"},
		{GuardName: "budget_change_limit", Type: GuardMaxBudgetChange, Threshold: 30, IsCritical: true,
			Message: "Budget change too large for automatic application"},
		{GuardName: "pause_limit", Type: GuardMaxPauseCount, Threshold: 10,
			Message: "Large pause batch"},
		{GuardName: "no_deletes", Type: GuardForbiddenAction, IsCritical: true,
			Message: "Destructive action", Actions: []string{"delete_campaign", "delete_ad_group", "delete_keywords"}},
	}
}

// Policies adapts configured guardrails for NewEvaluator.
func Policies(guardrails []Guardrail) []Policy {
	out := make([]Policy, 0, len(guardrails))
	for _, g := range guardrails {
		out = append(out, g)
	}
	return out
}

// Evaluator runs an injected list of policies over steps.
type Evaluator struct {
	policies []Policy
}

func NewEvaluator(policies ...Policy) *Evaluator {
	return &Evaluator{policies: append([]Policy(nil), policies...)}
}

// Verdict collects every failing policy for one step.
type Verdict struct {
	Blockers []string
	Warnings []string
}

func (e *Evaluator) Evaluate(step Step, estimatedCost float64) Verdict {
	var v Verdict
	in := CheckInput{Type: step.Action, Params: step.Params, EstimatedCost: estimatedCost}
	for _, p := range e.policies {
		res := p.Check(in)
		if res.Passed {
			continue
		}
		msg := fmt.Sprintf("%s blocked by %s: %s", step.Action, p.Name(), res.Reason)
		if p.Critical() || res.Blocker {
			v.Blockers = append(v.Blockers, msg)
			continue
		}
		v.Warnings = append(v.Warnings, fmt.Sprintf("%s flagged by %s: %s", step.Action, p.Name(), res.Reason))
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isBidAction(action string) bool {
	return strings.HasSuffix(action, "_bids") || strings.HasSuffix(action, "_bid")
}

func isBudgetAction(action string) bool {
	return strings.HasSuffix(action, "_budget")
}

func number(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
