package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adwatch-backend/internal/detection"
)

const (
	methodFetch = "metrics.fetch"
	dateLayout  = "2006-01-02"
)

type FetchRequest struct {
	Entity detection.Entity `json:"entity"`
	Metric string           `json:"metric"`
	Start  string           `json:"start"`
	End    string           `json:"end"`
}

type FetchResult struct {
	Values []float64 `json:"values"`
}

// RemoteSource fetches samples over JSON-RPC.
type RemoteSource struct {
	Transport Transport
}

func NewRemoteSource(transport Transport) *RemoteSource {
	return &RemoteSource{Transport: transport}
}

func (s *RemoteSource) FetchMetrics(ctx context.Context, entity detection.Entity, metric string, start, end time.Time) ([]float64, error) {
	resp, err := s.Transport.Call(ctx, methodFetch, FetchRequest{
		Entity: entity,
		Metric: metric,
		Start:  start.Format(dateLayout),
		End:    end.Format(dateLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", methodFetch, err)
	}
	var result FetchResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", methodFetch, err)
	}
	return result.Values, nil
}
