package metricsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adwatch-backend/internal/detection"
)

// Registry routes a fetch to the source registered for the entity's
// product, falling back to DefaultSource.
type Registry struct {
	sources map[string]detection.MetricSource
}

func NewRegistry(sources map[string]detection.MetricSource) *Registry {
	normalized := map[string]detection.MetricSource{}
	for key, src := range sources {
		normalized[strings.ToLower(key)] = src
	}
	return &Registry{sources: normalized}
}

func (r *Registry) SourceFor(product string) (detection.MetricSource, error) {
	if r == nil {
		return nil, fmt.Errorf("metric source registry not configured")
	}
	if src, ok := r.sources[strings.ToLower(product)]; ok {
		return src, nil
	}
	if src, ok := r.sources[DefaultSource]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("no metric source configured for %s", product)
}

func (r *Registry) FetchMetrics(ctx context.Context, entity detection.Entity, metric string, start, end time.Time) ([]float64, error) {
	src, err := r.SourceFor(entity.Product)
	if err != nil {
		return nil, err
	}
	return src.FetchMetrics(ctx, entity, metric, start, end)
}
