package config

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adwatch-backend/internal/crypto"
	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/noise"
)

const validFile = `
product: shoes
window:
  baseline_days: 28
  current_days: 7
alerts:
  - type: cpc_jump
    enabled: true
    thresholds:
      min_volume: 50
      change_factor: 1.4
      severity_bands: {critical: 1.0, high: 0.6, medium: 0.3}
    noise_control:
      strategy: both
      consecutive_checks: 2
      cooldown_hours: 24
  - type: zscore
    enabled: true
    metric: impressions
entities:
  - id: kw-1
    type: keyword
    campaign: Brand
    keyword: running shoes
guardrails:
  - name: cap
    type: max_cost
    threshold: 250
    critical: true
warehouse:
  table: ad_stats
  date_column: day
  metrics: {cpc: avg_cpc}
  entity_columns: {keyword: keyword_text}
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(validFile))
	require.NoError(t, err)
	assert.Equal(t, "shoes", f.Product)
	require.Len(t, f.Alerts, 2)

	cpc := f.Alerts[0]
	assert.Equal(t, detection.AlertCPCJump, cpc.Type)
	assert.Equal(t, 1.4, *cpc.Thresholds.ChangeFactor)
	assert.Equal(t, 0.6, *cpc.Thresholds.SeverityBands.High)
	assert.Equal(t, noise.StrategyBoth, cpc.NoiseControl.Strategy)

	z := f.Alerts[1]
	assert.Equal(t, noise.StrategyConsecutive, z.NoiseControl.Strategy)
	assert.Equal(t, 1, z.NoiseControl.ConsecutiveChecks)

	assert.Equal(t, "shoes", f.Entities[0].Product)
	assert.Equal(t, "avg_cpc", f.Warehouse.Metrics["cpc"])
	require.Len(t, f.GuardrailList(), 1)
}

func TestGuardrailDefaults(t *testing.T) {
	f := &File{Product: "shoes"}
	assert.NotEmpty(t, f.GuardrailList())
}

func TestValidateCollectsDetails(t *testing.T) {
	_, err := ParseFile([]byte(`
alerts:
  - type: bogus
  - type: zscore
    playbook: pb_nope
    noise_control: {strategy: cooldown}
entities:
  - id: a
    type: planet
guardrails:
  - name: g
    type: forbidden_action
warehouse:
  table: "ad_stats; drop"
  date_column: day
  metrics:
    cpc: cpc
  ratios:
    cpc: {numerator: cost}
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := map[string]bool{}
	for _, d := range verr.Details {
		fields[d.Field] = true
	}
	for _, want := range []string{
		"product",
		"alerts[0].type",
		"alerts[1].metric",
		"alerts[1].noise_control.cooldown_hours",
		"alerts[1].playbook",
		"entities[0].type",
		"guardrails[0].actions",
		"warehouse.table",
		"warehouse.ratios.cpc",
		"warehouse.cpc",
	} {
		assert.True(t, fields[want], "missing detail for %s (got %v)", want, fields)
	}
}

func TestParseFileBadYAML(t *testing.T) {
	_, err := ParseFile([]byte("alerts: [\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("RUN_INTERVAL", "15m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Worker.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.Worker.RunInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.JobTimeout)
	assert.True(t, cfg.Remediation.DryRun)
}

func TestLoadRejectsBadWorkerSettings(t *testing.T) {
	for name, kv := range map[string][2]string{
		"zero interval":     {"RUN_INTERVAL", "0s"},
		"negative interval": {"RUN_INTERVAL", "-5m"},
		"no workers":        {"WORKER_COUNT", "0"},
		"negative timeout":  {"JOB_TIMEOUT", "-1s"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestWarehousePasswordDecryption(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 32)))
	enc, err := crypto.NewFromBase64Key(key)
	require.NoError(t, err)
	sealed, err := enc.Encrypt("hunter2")
	require.NoError(t, err)

	w := WarehouseConfig{Type: "postgres", Host: "db", PasswordEnc: sealed, EncryptionKey: key}
	conn, err := w.ConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", conn.Password)
	assert.True(t, w.Enabled())

	w.EncryptionKey = ""
	_, err = w.ConnectionConfig()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestExampleDetectorsFileIsValid(t *testing.T) {
	f, err := LoadFile("../../config/detectors.yaml")
	require.NoError(t, err)
	assert.Equal(t, "shoes", f.Product)
	assert.Len(t, f.Alerts, 6)
	assert.Len(t, f.GuardrailList(), 5)
	for _, e := range f.Entities {
		assert.Equal(t, "shoes", e.Product)
	}
	assert.Equal(t, "keyword_text", f.Warehouse.EntityColumns["keyword"])
	assert.Equal(t, "clicks", f.Warehouse.Ratios["cpc"].Denominator)
	assert.Equal(t, "quality_score", f.Warehouse.Averages["quality_score"])
}
