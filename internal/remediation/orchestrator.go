package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/storage"
	"adwatch-backend/pkg/log"
)

type RemediationLog interface {
	AppendRemediation(ctx context.Context, rec storage.RemediationRecord) error
}

type Orchestrator struct {
	playbooks  *PlaybookRegistry
	guardrails *Evaluator
	history    RemediationLog
	logger     log.Logger
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithHistory(h RemediationLog) Option { return func(o *Orchestrator) { o.history = h } }
func WithLogger(l log.Logger) Option       { return func(o *Orchestrator) { o.logger = l } }
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(playbooks *PlaybookRegistry, guardrails *Evaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		playbooks:  playbooks,
		guardrails: guardrails,
		logger:     log.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.guardrails == nil {
		o.guardrails = NewEvaluator()
	}
	return o
}

// Remediate never fails. Problems are reported as blockers on the result.
func (o *Orchestrator) Remediate(ctx context.Context, alert detection.Alert, opts Options) Remediation {
	name := PlaybookName(alert)
	result := Remediation{
		AlertID:     alert.ID,
		Playbook:    name,
		Steps:       []Step{},
		Blockers:    []string{},
		DryRun:      opts.DryRun,
		GeneratedAt: o.now().UTC(),
	}
	logger := o.logger.With("alert_id", alert.ID, "playbook", name)

	if err := o.run(ctx, alert, opts, &result); err != nil {
		result.GuardrailsPassed = false
		result.Blockers = append(result.Blockers, err.Error())
		logger.Warnf(ctx, "remediation failed: %v", err)
		return result
	}
	result.GuardrailsPassed = len(result.Blockers) == 0
	for _, b := range result.Blockers {
		logger.Warnf(ctx, "guardrail: %s", b)
	}

	if !opts.DryRun && result.GuardrailsPassed && o.history != nil {
		if err := o.record(ctx, result); err != nil {
			logger.Errorf(ctx, "record remediation: %v", err)
			result.Warnings = append(result.Warnings, "remediation log write failed: "+err.Error())
		}
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, alert detection.Alert, opts Options, result *Remediation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Execution error: %v", r)
		}
	}()
	if o.playbooks == nil {
		return fmt.Errorf("Playbook not found: %s", result.Playbook)
	}
	pb, err := o.playbooks.Get(result.Playbook)
	if errors.Is(err, ErrPlaybookNotFound) {
		return fmt.Errorf("Playbook not found: %s", result.Playbook)
	}
	if err != nil {
		return err
	}
	plan, err := pb.Execute(ctx, alert, opts)
	if plan.Steps != nil {
		result.Steps = plan.Steps
	}
	result.EstimatedImpact = plan.Impact
	if err != nil {
		return fmt.Errorf("Execution error: %v", err)
	}

	cost := 0.0
	if plan.Impact != nil {
		cost = plan.Impact.Cost
	}
	for i := range result.Steps {
		step := &result.Steps[i]
		verdict := o.guardrails.Evaluate(*step, cost)
		result.Warnings = append(result.Warnings, verdict.Warnings...)
		if len(verdict.Blockers) == 0 {
			continue
		}
		result.Blockers = append(result.Blockers, verdict.Blockers...)
		step.Status = StepSkipped
		step.Reason = verdict.Blockers[0]
		for _, b := range verdict.Blockers[1:] {
			step.Reason += "; " + b
		}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, r Remediation) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return o.history.AppendRemediation(ctx, storage.RemediationRecord{
		ID:               uuid.NewString(),
		AlertID:          r.AlertID,
		Playbook:         r.Playbook,
		Actions:          r.Actions(),
		GuardrailsPassed: r.GuardrailsPassed,
		RecordedAt:       r.GeneratedAt,
		Payload:          payload,
	})
}
