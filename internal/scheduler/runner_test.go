package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"adwatch-backend/internal/bus"
	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/metricsource"
	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/remediation"
	"adwatch-backend/internal/storage"
	"adwatch-backend/internal/telemetry"
	"adwatch-backend/pkg/log"
)

var (
	now0   = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	window = detection.TimeWindow{BaselineDays: 28, CurrentDays: 7}
)

type event struct {
	subject string
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(subject string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{subject: subject, payload: payload})
	return nil
}

func (r *recorder) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.subject == subject {
			n++
		}
	}
	return n
}

type fixture struct {
	runner  *Runner
	store   *storage.MemoryStore
	events  *recorder
	metrics *telemetry.Metrics
	logs    *observer.ObservedLogs
}

func entity(id, keyword string) detection.Entity {
	return detection.Entity{ID: id, Type: detection.EntityKeyword, Product: "shoes", Market: "us", Campaign: "Brand", AdGroup: "Exact", Keyword: keyword}
}

func newFixture(t *testing.T, auto bool) fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	src := metricsource.NewStaticSource()
	base, cur := detection.Periods(now0, window)

	// kw-1 doubles its CPC, kw-2 is flat.
	src.Fill("kw-1", "cpc", base.Start, base.End, 1.0)
	src.Fill("kw-1", "cpc", cur.Start, cur.End, 2.0)
	src.Fill("kw-1", "clicks", cur.Start, cur.End, 20)
	src.Fill("kw-2", "cpc", base.Start, base.End, 1.0)
	src.Fill("kw-2", "cpc", cur.Start, cur.End, 1.0)
	src.Fill("kw-2", "clicks", cur.Start, cur.End, 20)

	core, logs := observer.New(zapcore.InfoLevel)
	logger := log.New(core)
	deps := detection.Deps{Source: src, Noise: noise.NewController(store), History: store, Logger: logger, Now: func() time.Time { return now0 }}
	reg, err := detection.NewRegistry([]detection.AlertConfig{{
		Type:         detection.AlertCPCJump,
		Enabled:      true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1},
	}}, deps)
	require.NoError(t, err)

	orch := remediation.NewOrchestrator(
		remediation.NewPlaybookRegistry(remediation.BuiltinPlaybooks()...),
		remediation.NewEvaluator(remediation.Policies(remediation.DefaultGuardrails())...),
		remediation.WithHistory(store),
	)
	events := &recorder{}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	r := NewRunner(reg, []detection.Entity{entity("kw-1", "running shoes"), entity("kw-2", "trail shoes")}, Options{
		Product:    "shoes",
		Window:     window,
		Workers:    4,
		JobTimeout: time.Second,
		AutoRemedy: auto,
		RemedyOpts: remediation.Options{DryRun: true},
		Publisher:  events,
		Remediator: orch,
		States:     store,
		Metrics:    metrics,
		Logger:     logger,
		Now:        func() time.Time { return now0 },
	})
	return fixture{runner: r, store: store, events: events, metrics: metrics, logs: logs}
}

func TestRunOnceSurfacesAndPublishes(t *testing.T) {
	f := newFixture(t, false)

	batch, info, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Alerts, 1)
	assert.Equal(t, "kw-1", batch.Alerts[0].Entity.ID)
	assert.Equal(t, "shoes", batch.Product)
	assert.Equal(t, 1, batch.Summary.Total)
	assert.Equal(t, 1, batch.Summary.New)

	assert.Equal(t, 2, info.Checks)
	assert.Equal(t, 0, info.Errors)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 0, info.Remediations)

	assert.Equal(t, 1, f.events.count(bus.SubjectAlertSurfaced))
	assert.Equal(t, 1, f.events.count(bus.SubjectAlertBatch))
	assert.Equal(t, 0, f.events.count(bus.SubjectRemediationComplete))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Detections.WithLabelValues("cpc_jump", telemetry.OutcomeTriggered)))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Detections.WithLabelValues("cpc_jump", telemetry.OutcomeQuiet)))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OpenAlerts))
}

func TestRunOnceTagsDetectorLogsWithRunID(t *testing.T) {
	f := newFixture(t, false)

	_, info, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	surfaced := f.logs.FilterMessageSnippet("alert surfaced").All()
	require.Len(t, surfaced, 1)
	fields := surfaced[0].ContextMap()
	assert.Equal(t, info.ID, fields["run_id"])
	assert.Equal(t, "kw-1", fields["entity"])
}

func TestStartWithoutIntervalRunsOnce(t *testing.T) {
	f := newFixture(t, false)
	f.runner.Start(0)
	defer f.runner.Stop()

	require.Eventually(t, func() bool { return len(f.runner.Runs()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.runner.Runs(), 1)
}

func TestRunOnceAutoRemediates(t *testing.T) {
	f := newFixture(t, true)

	_, info, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, info.Remediations)
	assert.Equal(t, 1, f.events.count(bus.SubjectRemediationComplete))
	// dry run never reaches the remediation log
	assert.Empty(t, f.store.Remediations())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Remediations.WithLabelValues("pb_cpc_jump", "passed")))
}

func TestRunOnceRepeatCountsPersistent(t *testing.T) {
	f := newFixture(t, false)

	_, _, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	batch, _, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, batch.Alerts, 1)
	assert.Equal(t, 0, batch.Summary.New)
	assert.Equal(t, 1, batch.Summary.Persistent)

	runs := f.runner.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].Summary.New)
	assert.Equal(t, 1, runs[1].Summary.New)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, false)

	jobs := f.runner.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobInfo{AlertType: detection.AlertCPCJump, EntityID: "kw-1", Product: "shoes"}, jobs[0])
}

func TestRunOnceCancelledContext(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, info, err := f.runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Checks, 2)
	assert.LessOrEqual(t, len(batch.Alerts), 1)
}
