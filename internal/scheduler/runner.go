package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"adwatch-backend/internal/bus"
	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/remediation"
	"adwatch-backend/internal/storage"
	"adwatch-backend/internal/telemetry"
	"adwatch-backend/pkg/log"
)

const maxRunHistory = 20

type Publisher interface {
	Publish(subject string, payload any) error
}

type Remediator interface {
	Remediate(ctx context.Context, alert detection.Alert, opts remediation.Options) remediation.Remediation
}

type Options struct {
	Product    string
	Window     detection.TimeWindow
	Workers    int
	JobTimeout time.Duration
	AutoRemedy bool
	RemedyOpts remediation.Options
	Publisher  Publisher
	Remediator Remediator
	States     storage.AlertStore
	Metrics    *telemetry.Metrics
	Logger     log.Logger
	Now        func() time.Time
}

// Runner evaluates every enabled detector against every entity on a bounded
// worker pool.
type Runner struct {
	mu       sync.Mutex
	registry *detection.Registry
	entities []detection.Entity
	opts     Options
	runs     []RunInfo
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
}

type JobInfo struct {
	AlertType detection.AlertType `json:"alertType"`
	EntityID  string              `json:"entityId"`
	Product   string              `json:"product"`
}

type RunInfo struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"startedAt"`
	FinishedAt   time.Time         `json:"finishedAt"`
	Checks       int               `json:"checks"`
	Errors       int               `json:"errors"`
	Summary      detection.Summary `json:"summary"`
	Remediations int               `json:"remediations"`
}

type job struct {
	detector detection.Detector
	entity   detection.Entity
}

func NewRunner(registry *detection.Registry, entities []detection.Entity, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Publisher == nil {
		opts.Publisher = bus.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		registry: registry,
		entities: append([]detection.Entity(nil), entities...),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Runner) ListJobs() []JobInfo {
	jobs := []JobInfo{}
	for _, d := range r.registry.Detectors() {
		for _, e := range r.entities {
			jobs = append(jobs, JobInfo{AlertType: d.Type(), EntityID: e.ID, Product: e.Product})
		}
	}
	return jobs
}

// Runs returns recent runs, newest first.
func (r *Runner) Runs() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunInfo, len(r.runs))
	for i, run := range r.runs {
		out[len(r.runs)-1-i] = run
	}
	return out
}

// Start runs immediately and then every interval until Stop. A
// non-positive interval runs once and does not repeat.
func (r *Runner) Start(interval time.Duration) {
	if interval <= 0 {
		r.opts.Logger.Warnf(r.ctx, "run interval %s is not positive, running once", interval)
		go r.tick()
		return
	}
	go func() {
		r.tick()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.tick()
			case <-r.ctx.Done():
				return
			}
		}
	}()
}

func (r *Runner) Stop() {
	r.cancel()
}

// Trigger starts a run in the background unless one is in progress.
func (r *Runner) Trigger() bool {
	r.mu.Lock()
	busy := r.running
	r.mu.Unlock()
	if busy {
		return false
	}
	go r.tick()
	return true
}

func (r *Runner) tick() {
	if _, _, err := r.RunOnce(r.ctx); err != nil {
		r.opts.Logger.Warnf(r.ctx, "detection run skipped: %v", err)
	}
}

var ErrBusy = errors.New("a run is already in progress")

// RunOnce evaluates all jobs and returns the resulting batch.
func (r *Runner) RunOnce(ctx context.Context) (detection.AlertBatch, RunInfo, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return detection.AlertBatch{}, RunInfo{}, ErrBusy
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	info := RunInfo{ID: uuid.NewString(), StartedAt: r.opts.Now().UTC()}
	logger := r.opts.Logger.With("run_id", info.ID)
	ctx = log.WithContext(ctx, logger)
	logger.Infof(ctx, "detection run started")

	alerts, checks, errs := r.detectAll(ctx)
	info.Checks, info.Errors = checks, errs

	batch := detection.NewBatch(r.opts.Product, r.opts.Now(), alerts)
	info.Summary = batch.Summary
	for _, a := range batch.Alerts {
		if err := r.opts.Publisher.Publish(bus.SubjectAlertSurfaced, a); err != nil {
			logger.Warnf(ctx, "publish alert %s: %v", a.ID, err)
		}
	}
	if err := r.opts.Publisher.Publish(bus.SubjectAlertBatch, batch); err != nil {
		logger.Warnf(ctx, "publish batch: %v", err)
	}

	if r.opts.AutoRemedy && r.opts.Remediator != nil {
		for _, a := range batch.Alerts {
			rem := r.opts.Remediator.Remediate(ctx, a, r.opts.RemedyOpts)
			info.Remediations++
			r.observeRemediation(rem)
			if err := r.opts.Publisher.Publish(bus.SubjectRemediationComplete, rem); err != nil {
				logger.Warnf(ctx, "publish remediation %s: %v", a.ID, err)
			}
		}
	}
	r.refreshOpenGauge(ctx)

	info.FinishedAt = r.opts.Now().UTC()
	if m := r.opts.Metrics; m != nil {
		m.RunDuration.Observe(info.FinishedAt.Sub(info.StartedAt).Seconds())
	}
	r.mu.Lock()
	r.runs = append(r.runs, info)
	if len(r.runs) > maxRunHistory {
		r.runs = r.runs[len(r.runs)-maxRunHistory:]
	}
	r.mu.Unlock()
	logger.Infof(ctx, "detection run finished checks=%d alerts=%d errors=%d", checks, batch.Summary.Total, errs)
	return batch, info, nil
}

func (r *Runner) detectAll(ctx context.Context) ([]detection.Alert, int, int) {
	queue := make(chan job)
	var (
		mu     sync.Mutex
		alerts []detection.Alert
		checks int
		errs   int
		wg     sync.WaitGroup
	)
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				res := r.execute(ctx, j)
				mu.Lock()
				checks++
				if res.Triggered {
					alerts = append(alerts, *res.Alert)
				} else if strings.HasPrefix(res.Reason, "Detection error:") {
					errs++
				}
				mu.Unlock()
			}
		}()
	}
enqueue:
	for _, d := range r.registry.Detectors() {
		for _, e := range r.entities {
			select {
			case queue <- job{detector: d, entity: e}:
			case <-ctx.Done():
				break enqueue
			}
		}
	}
	close(queue)
	wg.Wait()
	return alerts, checks, errs
}

func (r *Runner) execute(ctx context.Context, j job) detection.Result {
	if r.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.JobTimeout)
		defer cancel()
	}
	res := j.detector.Detect(ctx, j.entity, r.opts.Window)
	if m := r.opts.Metrics; m != nil {
		outcome := telemetry.OutcomeQuiet
		switch {
		case res.Triggered:
			outcome = telemetry.OutcomeTriggered
			m.Surfaced.WithLabelValues(string(res.Alert.Type), string(res.Alert.Severity)).Inc()
		case strings.HasPrefix(res.Reason, "Detection error:"):
			outcome = telemetry.OutcomeError
		}
		m.Detections.WithLabelValues(string(j.detector.Type()), outcome).Inc()
	}
	return res
}

func (r *Runner) observeRemediation(rem remediation.Remediation) {
	m := r.opts.Metrics
	if m == nil {
		return
	}
	result := "passed"
	if !rem.GuardrailsPassed {
		result = "blocked"
	}
	m.Remediations.WithLabelValues(rem.Playbook, result).Inc()
}

func (r *Runner) refreshOpenGauge(ctx context.Context) {
	if r.opts.Metrics == nil || r.opts.States == nil {
		return
	}
	states, err := r.opts.States.ListStates(ctx, storage.StateFilter{Status: storage.StatusOpen})
	if err != nil {
		r.opts.Logger.Warnf(ctx, "count open alerts: %v", err)
		return
	}
	r.opts.Metrics.OpenAlerts.Set(float64(len(states)))
}
