package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/metricsource"
	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/remediation"
)

var ErrInvalid = errors.New("invalid configuration")

var identRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// File is the detector configuration document.
type File struct {
	Product    string                  `yaml:"product"`
	Window     detection.TimeWindow    `yaml:"window"`
	Alerts     []detection.AlertConfig `yaml:"alerts"`
	Entities   []detection.Entity      `yaml:"entities"`
	Guardrails []remediation.Guardrail `yaml:"guardrails"`
	Warehouse  metricsource.Mapping    `yaml:"warehouse"`
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

type ValidationError struct {
	Details []ErrorDetail `json:"details"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Problem)
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	for i := range f.Entities {
		if f.Entities[i].Product == "" {
			f.Entities[i].Product = f.Product
		}
	}
	for i := range f.Alerts {
		if f.Alerts[i].NoiseControl.Strategy == "" {
			f.Alerts[i].NoiseControl.Strategy = noise.StrategyConsecutive
		}
		if f.Alerts[i].NoiseControl.ConsecutiveChecks == 0 && f.Alerts[i].NoiseControl.Strategy != noise.StrategyCooldown {
			f.Alerts[i].NoiseControl.ConsecutiveChecks = 1
		}
	}
}

// GuardrailList returns the configured guardrails, or the defaults when none
// are configured.
func (f *File) GuardrailList() []remediation.Guardrail {
	if len(f.Guardrails) == 0 {
		return remediation.DefaultGuardrails()
	}
	return f.Guardrails
}

func (f *File) Validate() error {
	var details []ErrorDetail
	add := func(field, problem, hint string) {
		details = append(details, ErrorDetail{Field: field, Problem: problem, Hint: hint})
	}
	if strings.TrimSpace(f.Product) == "" {
		add("product", "required", "Name the product these detectors monitor")
	}
	if f.Window.BaselineDays < 0 || f.Window.CurrentDays < 0 {
		add("window", "negative", "Use positive day counts")
	}

	playbooks := remediation.NewPlaybookRegistry(remediation.BuiltinPlaybooks()...).Names()
	seen := map[detection.AlertType]bool{}
	for i, a := range f.Alerts {
		field := fmt.Sprintf("alerts[%d]", i)
		if !detection.KnownType(a.Type) {
			add(field+".type", "unknown", "Use cpc_jump, ctr_drop, spend_spike, conversion_drop, quality_score or zscore")
		}
		if seen[a.Type] {
			add(field+".type", "duplicate", "Configure each alert type once")
		}
		seen[a.Type] = true
		if a.Type == detection.AlertZScore && a.Metric == "" {
			add(field+".metric", "required", "zscore detectors need a metric")
		}
		if a.Playbook != "" && !slices.Contains(playbooks, a.Playbook) {
			add(field+".playbook", "unknown", "Use one of "+strings.Join(playbooks, ", "))
		}
		if cf := a.Thresholds.ChangeFactor; cf != nil && *cf <= 0 {
			add(field+".thresholds.change_factor", "invalid", "Must be > 0")
		}
		if mv := a.Thresholds.MinVolume; mv != nil && *mv < 0 {
			add(field+".thresholds.min_volume", "invalid", "Must be >= 0")
		}
		nc := a.NoiseControl
		switch nc.Strategy {
		case noise.StrategyConsecutive, noise.StrategyCooldown, noise.StrategyBoth:
		default:
			add(field+".noise_control.strategy", "unknown", "Use consecutive, cooldown or both")
		}
		if (nc.Strategy == noise.StrategyConsecutive || nc.Strategy == noise.StrategyBoth) && nc.ConsecutiveChecks < 1 {
			add(field+".noise_control.consecutive_checks", "invalid", "Must be >= 1")
		}
		if (nc.Strategy == noise.StrategyCooldown || nc.Strategy == noise.StrategyBoth) && nc.CooldownHours <= 0 {
			add(field+".noise_control.cooldown_hours", "invalid", "Must be > 0")
		}
	}

	ids := map[string]bool{}
	for i, e := range f.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if e.ID == "" {
			add(field+".id", "required", "")
		} else if ids[e.ID] {
			add(field+".id", "duplicate", "Entity ids must be unique")
		}
		ids[e.ID] = true
		switch e.Type {
		case detection.EntityCampaign, detection.EntityAdGroup, detection.EntityKeyword, detection.EntityURL, detection.EntityCluster:
		default:
			add(field+".type", "unknown", "Use campaign, ad_group, keyword, url or cluster")
		}
	}

	for i, g := range f.Guardrails {
		field := fmt.Sprintf("guardrails[%d]", i)
		if g.GuardName == "" {
			add(field+".name", "required", "")
		}
		switch g.Type {
		case remediation.GuardMaxCost, remediation.GuardMaxBidChange, remediation.GuardMaxBudgetChange, remediation.GuardMaxPauseCount:
			if g.Threshold < 0 {
				add(field+".threshold", "invalid", "Must be >= 0")
			}
		case remediation.GuardForbiddenAction:
			if len(g.Actions) == 0 {
				add(field+".actions", "required", "List the forbidden actions")
			}
		default:
			add(field+".type", "unknown", "Use max_cost, max_bid_change, max_budget_change, max_pause_count or forbidden_action")
		}
	}

	if m := f.Warehouse; m.Table != "" {
		if !identRegex.MatchString(m.Table) {
			add("warehouse.table", "invalid", "Use alphanumeric identifiers")
		}
		if !identRegex.MatchString(m.DateColumn) {
			add("warehouse.date_column", "invalid", "Use alphanumeric identifiers")
		}
		for metric, col := range m.Metrics {
			if !identRegex.MatchString(col) {
				add("warehouse.metrics."+metric, "invalid", "Use alphanumeric identifiers")
			}
		}
		for metric, col := range m.Averages {
			if !identRegex.MatchString(col) {
				add("warehouse.averages."+metric, "invalid", "Use alphanumeric identifiers")
			}
		}
		for metric, r := range m.Ratios {
			if !identRegex.MatchString(r.Numerator) || !identRegex.MatchString(r.Denominator) {
				add("warehouse.ratios."+metric, "invalid", "Name numerator and denominator columns")
			}
		}
		_, dupes := m.MetricNames()
		for _, metric := range dupes {
			add("warehouse."+metric, "duplicate", "Map each metric under one of metrics, averages or ratios")
		}
		for field, col := range m.EntityColumns {
			if !identRegex.MatchString(col) {
				add("warehouse.entity_columns."+field, "invalid", "Use alphanumeric identifiers")
			}
		}
	}

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}
