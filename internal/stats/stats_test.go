package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(values), 1e-9)
	assert.InDelta(t, 2.0, StdDev(values, true), 1e-9)
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(values, false), 1e-9)
	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev([]float64{3}, false))
}

func TestTrimCount(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 0},
		{4, 0},
		{9, 0},
		{10, 1},
		{14, 1},
		{20, 1},
		{29, 1},
		{30, 2},
		{41, 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TrimCount(tc.n, 0.05), "n=%d", tc.n)
	}
}

func TestTrimKeepsSortedMiddle(t *testing.T) {
	sorted := Sorted([]float64{20, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	trimmed := Trim(sorted, 0.05)
	require.Len(t, trimmed, 12)
	for _, v := range trimmed {
		assert.Equal(t, 1.0, v)
	}
	assert.Equal(t, 20.0, sorted[len(sorted)-1])
}

func TestUpperMedian(t *testing.T) {
	assert.Equal(t, 3.0, UpperMedian([]float64{1, 2, 3, 4, 5}))
	assert.Equal(t, 3.0, UpperMedian([]float64{1, 2, 3, 4}))
	assert.Zero(t, UpperMedian(nil))
}

func TestFinite(t *testing.T) {
	assert.Empty(t, Finite([]float64{math.NaN()}))
	assert.Equal(t, []float64{1, 2}, Finite([]float64{1, math.NaN(), math.Inf(1), 2}))
}
