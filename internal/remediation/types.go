package remediation

import "time"

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepApplied StepStatus = "applied"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

type Step struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Output string         `json:"output,omitempty"`
	Status StepStatus     `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

type Impact struct {
	Cost        float64 `json:"cost"`
	Description string  `json:"description,omitempty"`
}

// Options control how far a remediation goes. The zero value applies steps
// but never changes bids, budgets or pauses.
type Options struct {
	DryRun             bool `json:"dry_run"`
	AllowBidChanges    bool `json:"allow_bid_changes"`
	AllowBudgetChanges bool `json:"allow_budget_changes"`
	AllowPauses        bool `json:"allow_pauses"`
}

type Remediation struct {
	AlertID          string    `json:"alertId"`
	Playbook         string    `json:"playbook"`
	Steps            []Step    `json:"steps"`
	GuardrailsPassed bool      `json:"guardrailsPassed"`
	Blockers         []string  `json:"blockers"`
	Warnings         []string  `json:"warnings,omitempty"`
	EstimatedImpact  *Impact   `json:"estimatedImpact,omitempty"`
	DryRun           bool      `json:"dryRun"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

func (r Remediation) Actions() []string {
	out := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Action)
	}
	return out
}
