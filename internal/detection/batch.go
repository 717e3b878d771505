package detection

import (
	"sort"
	"time"
)

type Summary struct {
	Total      int `json:"total"`
	Critical   int `json:"critical"`
	High       int `json:"high"`
	Medium     int `json:"medium"`
	Low        int `json:"low"`
	New        int `json:"new"`
	Persistent int `json:"persistent"`
}

type AlertBatch struct {
	GeneratedAt time.Time `json:"generated_at"`
	Product     string    `json:"product"`
	Summary     Summary   `json:"summary"`
	Alerts      []Alert   `json:"alerts"`
}

// NewBatch orders alerts by severity, highest first. An alert is new on its
// first surfacing and persistent afterwards.
func NewBatch(product string, generatedAt time.Time, alerts []Alert) AlertBatch {
	sorted := make([]Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		return sorted[i].ID < sorted[j].ID
	})
	var s Summary
	for _, a := range sorted {
		s.Total++
		switch a.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		default:
			s.Low++
		}
		if a.Detection.Occurrences <= 1 {
			s.New++
		} else {
			s.Persistent++
		}
	}
	return AlertBatch{
		GeneratedAt: generatedAt.UTC(),
		Product:     product,
		Summary:     s,
		Alerts:      sorted,
	}
}
