package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/storage"
	"adwatch-backend/pkg/log"
)

// Detector evaluates one alert type for one entity. Detect never returns an
// error; failures come back as an untriggered Result with a reason.
type Detector interface {
	Type() AlertType
	Config() AlertConfig
	Detect(ctx context.Context, entity Entity, window TimeWindow) Result
}

// Deps are the collaborators shared by every detector.
type Deps struct {
	Source  MetricSource
	Noise   *noise.Controller
	History HistoryWriter
	Logger  log.Logger
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) logger() log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.NewNop()
}

// signal is what a rule reports about one baseline/current pair.
type signal struct {
	triggered  bool
	reason     string
	ratio      *float64
	why        string
	additional map[string]any
}

type rule func(cfg AlertConfig, baseline BaselineData, current CurrentData, window TimeWindow) signal

type profile struct {
	metric       string
	volumeMetric string
	rule         rule
	suggested    []string
}

type statDetector struct {
	cfg     AlertConfig
	profile profile
	deps    Deps
}

func (d *statDetector) Type() AlertType     { return d.cfg.Type }
func (d *statDetector) Config() AlertConfig { return d.cfg }

func (d *statDetector) Detect(ctx context.Context, entity Entity, window TimeWindow) (res Result) {
	logger := d.deps.logger().With("alert_type", d.cfg.Type, "entity", entity.ID)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(ctx, "detector panic: %v", r)
			res = Result{Reason: fmt.Sprintf("Detection error: %v", r)}
		}
	}()
	res, err := d.detect(ctx, entity, window)
	if err != nil {
		logger.Warnf(ctx, "detection failed: %v", err)
		return Result{Reason: "Detection error: " + err.Error()}
	}
	if res.Triggered {
		logger.Infof(ctx, "alert surfaced id=%s severity=%s", res.Alert.ID, res.Alert.Severity)
	}
	return res
}

func (d *statDetector) detect(ctx context.Context, entity Entity, window TimeWindow) (Result, error) {
	if d.deps.Source == nil {
		return Result{}, fmt.Errorf("no metric source configured")
	}
	now := d.deps.now()
	window = ResolveWindow(window, d.cfg.Thresholds)
	basePeriod, curPeriod := Periods(now, window)

	if d.cfg.Thresholds.MinVolume != nil && d.profile.volumeMetric != "" {
		volume, err := d.deps.Source.FetchMetrics(ctx, entity, d.profile.volumeMetric, curPeriod.Start, curPeriod.End)
		if err != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", d.profile.volumeMetric, err)
		}
		total := 0.0
		for _, v := range volume {
			total += v
		}
		if total < *d.cfg.Thresholds.MinVolume {
			return Result{Reason: fmt.Sprintf("Insufficient volume: %.0f %s observed, minimum %.0f required",
				total, d.profile.volumeMetric, *d.cfg.Thresholds.MinVolume)}, nil
		}
	}

	baseSamples, err := d.deps.Source.FetchMetrics(ctx, entity, d.profile.metric, basePeriod.Start, basePeriod.End)
	if err != nil {
		return Result{}, fmt.Errorf("fetch baseline %s: %w", d.profile.metric, err)
	}
	curSamples, err := d.deps.Source.FetchMetrics(ctx, entity, d.profile.metric, curPeriod.Start, curPeriod.End)
	if err != nil {
		return Result{}, fmt.Errorf("fetch current %s: %w", d.profile.metric, err)
	}
	baseline := EvaluateBaseline(baseSamples, basePeriod)
	current := EvaluateCurrent(curSamples, curPeriod)
	if baseline.Count == 0 {
		return Result{Reason: fmt.Sprintf("No baseline data for %s", d.profile.metric)}, nil
	}
	if current.Count == 0 {
		return Result{Reason: fmt.Sprintf("No current data for %s", d.profile.metric)}, nil
	}

	sig := d.profile.rule(d.cfg, baseline, current, window)
	if !sig.triggered {
		return Result{Reason: sig.reason}, nil
	}

	z := ZScore(current, baseline)
	severity := Classify(z, sig.ratio, d.cfg.Thresholds.SeverityBands)
	id := AlertID(d.cfg.Type, entity)

	if d.deps.Noise == nil {
		return Result{}, fmt.Errorf("no noise controller configured")
	}
	decision, err := d.deps.Noise.Evaluate(ctx, d.cfg.NoiseControl, noise.Candidate{
		AlertID:   id,
		AlertType: string(d.cfg.Type),
		Severity:  string(severity),
		At:        now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("noise control: %w", err)
	}
	if !decision.Surface {
		return Result{Reason: decision.Reason}, nil
	}

	alert := &Alert{
		ID:       id,
		Type:     d.cfg.Type,
		Severity: severity,
		Entity:   entity,
		Window:   window,
		Metrics: Metrics{
			Baseline:         baseline,
			Current:          current,
			ChangePercentage: changePercentage(current.Value, baseline.Mean),
			ChangeAbsolute:   current.Value - baseline.Mean,
			ZScore:           z,
			Additional:       sig.additional,
		},
		Why:              sig.why,
		Playbook:         d.cfg.Playbook,
		SuggestedActions: append([]string(nil), d.profile.suggested...),
		Detection: Detection{
			FirstSeen:              decision.State.FirstSeen,
			LastSeen:               decision.State.LastSeen,
			Occurrences:            decision.State.SurfacedCount,
			ConsecutiveOccurrences: decision.State.ConsecutiveOccurrences,
		},
	}
	if d.deps.History != nil {
		payload, err := json.Marshal(alert)
		if err != nil {
			return Result{}, fmt.Errorf("encode alert: %w", err)
		}
		if err := d.deps.History.AppendHistory(ctx, storage.HistoryEntry{
			AlertID:    id,
			RecordedAt: now,
			Payload:    payload,
		}); err != nil {
			return Result{}, fmt.Errorf("append history: %w", err)
		}
	}
	return Result{Triggered: true, Alert: alert}, nil
}

func changePercentage(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}
