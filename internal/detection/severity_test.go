package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestClassifyZScoreFallback(t *testing.T) {
	cases := []struct {
		z    float64
		want Severity
	}{
		{3.2, SeverityCritical},
		{-3.2, SeverityCritical},
		{2.6, SeverityHigh},
		{1.6, SeverityMedium},
		{1.0, SeverityLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.z, nil, nil), "z=%v", tc.z)
	}
}

func TestClassifyRatioBands(t *testing.T) {
	bands := &SeverityBands{Critical: ptr(1.0), High: ptr(0.5), Medium: ptr(0.25)}
	assert.Equal(t, SeverityCritical, Classify(0, ptr(2.2), bands))
	assert.Equal(t, SeverityHigh, Classify(0, ptr(1.6), bands))
	assert.Equal(t, SeverityHigh, Classify(0, ptr(0.4), bands))
	assert.Equal(t, SeverityMedium, Classify(0, ptr(0.7), bands))
	// unmatched bands fall through to z
	assert.Equal(t, SeverityHigh, Classify(2.7, ptr(1.1), bands))
	assert.Equal(t, SeverityLow, Classify(0.5, ptr(1.1), bands))
}

func TestClassifyRatioWithoutBandsUsesZ(t *testing.T) {
	assert.Equal(t, SeverityMedium, Classify(1.7, ptr(5), nil))
}

func TestClassifyPartialBands(t *testing.T) {
	bands := &SeverityBands{High: ptr(0.5)}
	assert.Equal(t, SeverityHigh, Classify(0, ptr(3), bands))
}
