package detection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchSummary(t *testing.T) {
	alerts := []Alert{
		{ID: "b", Severity: SeverityLow, Detection: Detection{Occurrences: 1}},
		{ID: "a", Severity: SeverityCritical, Detection: Detection{Occurrences: 4}},
		{ID: "c", Severity: SeverityHigh, Detection: Detection{Occurrences: 1}},
		{ID: "d", Severity: SeverityCritical, Detection: Detection{Occurrences: 1}},
	}
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	batch := NewBatch("shoes", at, alerts)

	assert.Equal(t, Summary{Total: 4, Critical: 2, High: 1, Low: 1, New: 3, Persistent: 1}, batch.Summary)
	ids := []string{}
	for _, a := range batch.Alerts {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a", "d", "c", "b"}, ids)
	assert.Equal(t, "b", alerts[0].ID)
}

func TestAlertBatchJSONShape(t *testing.T) {
	batch := NewBatch("shoes", time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), nil)
	raw, err := json.Marshal(batch)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	for _, key := range []string{"generated_at", "product", "summary", "alerts"} {
		assert.Contains(t, decoded, key)
	}
	summary := decoded["summary"].(map[string]any)
	for _, key := range []string{"total", "critical", "high", "medium", "low", "new", "persistent"} {
		assert.Contains(t, summary, key)
	}
}
