package detection

import (
	"time"

	"adwatch-backend/internal/stats"
)

// baselineTrimFraction is dropped from each tail before mean and stdDev.
const baselineTrimFraction = 0.05

const (
	defaultBaselineDays = 28
	defaultCurrentDays  = 7
)

// EvaluateBaseline summarizes the historical window. NaN and infinite
// samples are discarded first. Mean and StdDev (population) use the trimmed
// set; Median, Count, Min and Max use all remaining samples.
func EvaluateBaseline(samples []float64, period Period) BaselineData {
	samples = stats.Finite(samples)
	if len(samples) == 0 {
		return BaselineData{Period: period}
	}
	sorted := stats.Sorted(samples)
	trimmed := stats.Trim(sorted, baselineTrimFraction)
	return BaselineData{
		Mean:   stats.Mean(trimmed),
		StdDev: stats.StdDev(trimmed, true),
		Median: stats.UpperMedian(sorted),
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Period: period,
	}
}

func EvaluateCurrent(samples []float64, period Period) CurrentData {
	samples = stats.Finite(samples)
	return CurrentData{
		Value:  stats.Mean(samples),
		Count:  len(samples),
		Period: period,
	}
}

// ZScore returns (current - mean) / stdDev, or 0 when the baseline has no spread.
func ZScore(current CurrentData, baseline BaselineData) float64 {
	if baseline.StdDev == 0 {
		return 0
	}
	return (current.Value - baseline.Mean) / baseline.StdDev
}

// ResolveWindow picks each window length from the alert's own thresholds
// first, then the shared window, then the defaults.
func ResolveWindow(window TimeWindow, th Thresholds) TimeWindow {
	if th.BaselineDays > 0 {
		window.BaselineDays = th.BaselineDays
	}
	if th.CurrentDays > 0 {
		window.CurrentDays = th.CurrentDays
	}
	if window.BaselineDays <= 0 {
		window.BaselineDays = defaultBaselineDays
	}
	if window.CurrentDays <= 0 {
		window.CurrentDays = defaultCurrentDays
	}
	return window
}

// Periods returns inclusive day ranges. The current window ends yesterday and
// the baseline window ends the day before the current window starts.
func Periods(now time.Time, window TimeWindow) (Period, Period) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	current := Period{
		Start: today.Add(-time.Duration(window.CurrentDays) * day),
		End:   today.Add(-day),
	}
	baseline := Period{
		Start: current.Start.Add(-time.Duration(window.BaselineDays) * day),
		End:   current.Start.Add(-day),
	}
	return baseline, current
}
