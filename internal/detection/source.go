package detection

import (
	"context"
	"time"

	"adwatch-backend/internal/storage"
)

// MetricSource returns daily samples of one metric for an entity over the
// inclusive range [start, end].
type MetricSource interface {
	FetchMetrics(ctx context.Context, entity Entity, metric string, start, end time.Time) ([]float64, error)
}

type HistoryWriter interface {
	AppendHistory(ctx context.Context, entry storage.HistoryEntry) error
}
