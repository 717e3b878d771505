package stats

import (
	"math"
	"sort"
)

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func StdDev(values []float64, population bool) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	denom := float64(len(values))
	if !population {
		if len(values) < 2 {
			return 0
		}
		denom = float64(len(values) - 1)
	}
	return math.Sqrt(sum / denom)
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// TrimCount is the number of samples dropped from each tail of n samples,
// n*fraction rounded to nearest. Small sets are left whole so a handful of
// samples keeps its spread. It never trims a set down to nothing.
func TrimCount(n int, fraction float64) int {
	if n <= 0 || fraction <= 0 {
		return 0
	}
	k := int(math.Round(float64(n) * fraction))
	if n-2*k < 1 {
		return 0
	}
	return k
}

// Trim drops TrimCount samples from each end of an already sorted slice.
func Trim(sorted []float64, fraction float64) []float64 {
	k := TrimCount(len(sorted), fraction)
	return sorted[k : len(sorted)-k]
}

// UpperMedian returns sorted[n/2]. For even n this is the upper of the two
// middle elements, not their average.
func UpperMedian(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)/2]
}

// Finite drops NaN and infinite samples.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
