package detection

import (
	"fmt"
	"math"
	"strings"
)

const (
	defaultCPCJumpFactor        = 1.5
	defaultCTRDropFactor        = 0.7
	defaultSpendSpikeFactor     = 2.0
	defaultConversionDropFactor = 0.5
	defaultZScoreFactor         = 2.5
	defaultMinQuality           = 5.0
	qualityDropPoints           = 2.0
)

func factor(th Thresholds, fallback float64) float64 {
	if th.ChangeFactor != nil {
		return *th.ChangeFactor
	}
	return fallback
}

// ratioRise triggers when current/baseline >= change_factor.
func ratioRise(label string, fallback float64) rule {
	return func(cfg AlertConfig, baseline BaselineData, current CurrentData, window TimeWindow) signal {
		limit := factor(cfg.Thresholds, fallback)
		if baseline.Mean == 0 {
			return signal{reason: fmt.Sprintf("Baseline %s is zero", label)}
		}
		ratio := current.Value / baseline.Mean
		if ratio < limit {
			return signal{reason: fmt.Sprintf("%s ratio %.2fx below threshold %.2fx", label, ratio, limit)}
		}
		return signal{
			triggered: true,
			ratio:     &ratio,
			why: fmt.Sprintf("%s rose to %.2f over the last %d days, %.2fx the %d-day baseline of %.2f (threshold %.2fx)",
				label, current.Value, window.CurrentDays, ratio, window.BaselineDays, baseline.Mean, limit),
		}
	}
}

// ratioDrop triggers when current/baseline <= change_factor.
func ratioDrop(label string, fallback float64) rule {
	return func(cfg AlertConfig, baseline BaselineData, current CurrentData, window TimeWindow) signal {
		limit := factor(cfg.Thresholds, fallback)
		if baseline.Mean == 0 {
			return signal{reason: fmt.Sprintf("Baseline %s is zero", label)}
		}
		ratio := current.Value / baseline.Mean
		if ratio > limit {
			return signal{reason: fmt.Sprintf("%s ratio %.2fx above threshold %.2fx", label, ratio, limit)}
		}
		return signal{
			triggered: true,
			ratio:     &ratio,
			why: fmt.Sprintf("%s fell to %.2f over the last %d days, %.2fx the %d-day baseline of %.2f (threshold %.2fx)",
				label, current.Value, window.CurrentDays, ratio, window.BaselineDays, baseline.Mean, limit),
		}
	}
}

func qualityRule(cfg AlertConfig, baseline BaselineData, current CurrentData, window TimeWindow) signal {
	floor := defaultMinQuality
	if cfg.Thresholds.MinQuality != nil {
		floor = *cfg.Thresholds.MinQuality
	}
	var issues []string
	if current.Value < floor {
		issues = append(issues, fmt.Sprintf("below_floor: %.1f < %.1f", current.Value, floor))
	}
	if drop := baseline.Mean - current.Value; drop >= qualityDropPoints {
		issues = append(issues, fmt.Sprintf("dropped: %.1f points from %.1f", drop, baseline.Mean))
	}
	if len(issues) == 0 {
		return signal{reason: fmt.Sprintf("Quality score %.1f has no issues", current.Value)}
	}
	sig := signal{
		triggered:  true,
		additional: map[string]any{"issues": issues},
		why: fmt.Sprintf("Quality score is %.1f against a %d-day baseline of %.1f: %s",
			current.Value, window.BaselineDays, baseline.Mean, strings.Join(issues, "; ")),
	}
	if baseline.Mean != 0 {
		ratio := current.Value / baseline.Mean
		sig.ratio = &ratio
	}
	return sig
}

func zscoreRule(label string) rule {
	return func(cfg AlertConfig, baseline BaselineData, current CurrentData, window TimeWindow) signal {
		limit := factor(cfg.Thresholds, defaultZScoreFactor)
		z := ZScore(current, baseline)
		if math.Abs(z) < limit {
			return signal{reason: fmt.Sprintf("%s z-score %.2f within %.2f", label, z, limit)}
		}
		direction := "above"
		if z < 0 {
			direction = "below"
		}
		return signal{
			triggered: true,
			why: fmt.Sprintf("%s averaged %.2f over the last %d days, %.1f standard deviations %s the %d-day baseline of %.2f",
				label, current.Value, window.CurrentDays, math.Abs(z), direction, window.BaselineDays, baseline.Mean),
		}
	}
}
