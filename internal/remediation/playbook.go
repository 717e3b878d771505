package remediation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"adwatch-backend/internal/detection"
)

var ErrPlaybookNotFound = errors.New("playbook not found")

// Plan is what a playbook proposes for one alert.
type Plan struct {
	Steps  []Step
	Impact *Impact
}

type Playbook interface {
	Name() string
	Execute(ctx context.Context, alert detection.Alert, opts Options) (Plan, error)
}

type playbookFunc struct {
	name string
	fn   func(ctx context.Context, alert detection.Alert, opts Options) (Plan, error)
}

func (p playbookFunc) Name() string { return p.name }

func (p playbookFunc) Execute(ctx context.Context, alert detection.Alert, opts Options) (Plan, error) {
	return p.fn(ctx, alert, opts)
}

// NewPlaybook wraps fn as a named Playbook.
func NewPlaybook(name string, fn func(ctx context.Context, alert detection.Alert, opts Options) (Plan, error)) Playbook {
	return playbookFunc{name: name, fn: fn}
}

type PlaybookRegistry struct {
	mu        sync.RWMutex
	playbooks map[string]Playbook
}

func NewPlaybookRegistry(playbooks ...Playbook) *PlaybookRegistry {
	r := &PlaybookRegistry{playbooks: make(map[string]Playbook)}
	for _, p := range playbooks {
		r.Register(p)
	}
	return r
}

func (r *PlaybookRegistry) Register(p Playbook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbooks[p.Name()] = p
}

func (r *PlaybookRegistry) Get(name string) (Playbook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.playbooks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, name)
	}
	return p, nil
}

func (r *PlaybookRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.playbooks))
	for name := range r.playbooks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PlaybookName is alert.Playbook when set, else pb_<type>.
func PlaybookName(alert detection.Alert) string {
	if alert.Playbook != "" {
		return alert.Playbook
	}
	return "pb_" + string(alert.Type)
}

type gate int

const (
	gateNone gate = iota
	gateBids
	gateBudget
	gatePauses
	gateManual
)

type stepTemplate struct {
	action string
	gate   gate
	params func(alert detection.Alert) map[string]any
	output string
}

type templatePlaybook struct {
	name  string
	steps []stepTemplate
}

func (p templatePlaybook) Name() string { return p.name }

func (p templatePlaybook) Execute(ctx context.Context, alert detection.Alert, opts Options) (Plan, error) {
	steps := make([]Step, 0, len(p.steps))
	for _, t := range p.steps {
		step := Step{Action: t.action, Output: t.output, Status: StepPending}
		if t.params != nil {
			step.Params = t.params(alert)
		}
		switch {
		case t.gate == gateManual:
			step.Output = joinOutput(step.Output, "manual follow-up")
		case !allowed(t.gate, opts):
			step.Output = joinOutput(step.Output, "proposed only, not enabled in options")
		case !opts.DryRun:
			step.Status = StepApplied
		}
		steps = append(steps, step)
	}
	return Plan{Steps: steps, Impact: excessSpend(alert)}, nil
}

func allowed(g gate, opts Options) bool {
	switch g {
	case gateBids:
		return opts.AllowBidChanges
	case gateBudget:
		return opts.AllowBudgetChanges
	case gatePauses:
		return opts.AllowPauses
	}
	return true
}

func joinOutput(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// excessSpend estimates cost as the absolute change times the number of
// current-window samples.
func excessSpend(alert detection.Alert) *Impact {
	m := alert.Metrics
	return &Impact{
		Cost:        math.Abs(m.ChangeAbsolute) * float64(m.Current.Count),
		Description: fmt.Sprintf("%.1f%% change over %d days", m.ChangePercentage, m.Current.Count),
	}
}

// halfChange proposes a bid or budget move of half the observed change, in
// the opposite direction, capped at 50%.
func halfChange(alert detection.Alert) map[string]any {
	pct := -alert.Metrics.ChangePercentage / 2
	pct = math.Max(-50, math.Min(50, pct))
	return map[string]any{"change_pct": math.Round(pct*10) / 10}
}

func entityScope(alert detection.Alert) map[string]any {
	params := map[string]any{"entity_type": string(alert.Entity.Type), "entity_id": alert.Entity.ID}
	if alert.Entity.Campaign != "" {
		params["campaign"] = alert.Entity.Campaign
	}
	if alert.Entity.AdGroup != "" {
		params["ad_group"] = alert.Entity.AdGroup
	}
	return params
}

func withScope(extra map[string]any) func(detection.Alert) map[string]any {
	return func(alert detection.Alert) map[string]any {
		params := entityScope(alert)
		for k, v := range extra {
			params[k] = v
		}
		return params
	}
}

func merged(fns ...func(detection.Alert) map[string]any) func(detection.Alert) map[string]any {
	return func(alert detection.Alert) map[string]any {
		params := map[string]any{}
		for _, fn := range fns {
			for k, v := range fn(alert) {
				params[k] = v
			}
		}
		return params
	}
}

// BuiltinPlaybooks returns one playbook per alert type.
func BuiltinPlaybooks() []Playbook {
	return []Playbook{
		templatePlaybook{name: "pb_cpc_jump", steps: []stepTemplate{
			{action: "reduce_bids", gate: gateBids, params: merged(entityScope, halfChange)},
			{action: "add_negative_keywords", params: withScope(map[string]any{"source": "search_terms"})},
			{action: "review_auction_insights", gate: gateManual, params: entityScope},
		}},
		templatePlaybook{name: "pb_ctr_drop", steps: []stepTemplate{
			{action: "refresh_ad_copy", gate: gateManual, params: entityScope},
			{action: "add_negative_keywords", params: withScope(map[string]any{"source": "search_terms"})},
			{action: "review_search_terms", gate: gateManual, params: entityScope},
		}},
		templatePlaybook{name: "pb_spend_spike", steps: []stepTemplate{
			{action: "reduce_budget", gate: gateBudget, params: merged(entityScope, halfChange)},
			{action: "pause_keywords", gate: gatePauses, params: withScope(map[string]any{"count": 5, "selector": "top_spend_no_conversions"})},
			{action: "review_match_types", gate: gateManual, params: entityScope},
		}},
		templatePlaybook{name: "pb_conversion_drop", steps: []stepTemplate{
			{action: "check_conversion_tracking", gate: gateManual, params: entityScope},
			{action: "check_landing_page", gate: gateManual, params: func(a detection.Alert) map[string]any {
				return map[string]any{"url": a.Entity.URL}
			}},
			{action: "reduce_bids", gate: gateBids, params: withScope(map[string]any{"change_pct": -15.0})},
		}},
		templatePlaybook{name: "pb_quality_score", steps: []stepTemplate{
			{action: "improve_ad_relevance", gate: gateManual, params: entityScope},
			{action: "review_landing_page", gate: gateManual, params: entityScope},
			{action: "split_ad_group", gate: gateManual, params: entityScope},
		}},
		templatePlaybook{name: "pb_zscore", steps: []stepTemplate{
			{action: "investigate_metric", gate: gateManual, params: entityScope, output: "check recent account changes"},
		}},
	}
}
