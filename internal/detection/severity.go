package detection

import "math"

// Classify maps a detection to a severity. Ratio bands win when both a ratio
// and bands are given and a band matches; otherwise |z| decides.
func Classify(z float64, ratio *float64, bands *SeverityBands) Severity {
	if ratio != nil && bands != nil {
		deviation := math.Abs(1 - *ratio)
		switch {
		case bands.Critical != nil && deviation >= *bands.Critical:
			return SeverityCritical
		case bands.High != nil && deviation >= *bands.High:
			return SeverityHigh
		case bands.Medium != nil && deviation >= *bands.Medium:
			return SeverityMedium
		}
	}
	az := math.Abs(z)
	switch {
	case az >= 3:
		return SeverityCritical
	case az >= 2.5:
		return SeverityHigh
	case az >= 1.5:
		return SeverityMedium
	}
	return SeverityLow
}
