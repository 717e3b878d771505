package metricsource

import (
	"context"
	"sync"
	"time"

	"adwatch-backend/internal/detection"
)

// StaticSource serves fixed daily series keyed by entity ID and metric.
// Dates outside a series are absent.
type StaticSource struct {
	mu     sync.RWMutex
	series map[string]map[string]map[string]float64
	Err    error
}

func NewStaticSource() *StaticSource {
	return &StaticSource{series: map[string]map[string]map[string]float64{}}
}

func (s *StaticSource) Set(entityID, metric string, day time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMetric, ok := s.series[entityID]
	if !ok {
		byMetric = map[string]map[string]float64{}
		s.series[entityID] = byMetric
	}
	byDay, ok := byMetric[metric]
	if !ok {
		byDay = map[string]float64{}
		byMetric[metric] = byDay
	}
	byDay[day.Format(dateLayout)] = value
}

// Fill sets value for every day in [start, end].
func (s *StaticSource) Fill(entityID, metric string, start, end time.Time, value float64) {
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		s.Set(entityID, metric, d, value)
	}
}

func (s *StaticSource) FetchMetrics(ctx context.Context, entity detection.Entity, metric string, start, end time.Time) ([]float64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := s.series[entity.ID][metric]
	values := []float64{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if v, ok := byDay[d.Format(dateLayout)]; ok {
			values = append(values, v)
		}
	}
	return values, nil
}
