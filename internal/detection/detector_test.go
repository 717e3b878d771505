package detection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/storage"
)

var now0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type series struct {
	baseline []float64
	current  []float64
}

// fakeSource serves baseline samples for ranges that end before the current
// window and current samples otherwise.
type fakeSource struct {
	mu           sync.Mutex
	currentStart time.Time
	data         map[string]series
	err          error
	calls        []string
}

func newFakeSource(now time.Time, window TimeWindow) *fakeSource {
	_, cur := Periods(now, window)
	return &fakeSource{currentStart: cur.Start, data: map[string]series{}}
}

func (s *fakeSource) FetchMetrics(ctx context.Context, entity Entity, metric string, start, end time.Time) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, metric)
	if s.err != nil {
		return nil, s.err
	}
	d := s.data[metric]
	if end.Before(s.currentStart) {
		return d.baseline, nil
	}
	return d.current, nil
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var keyword = Entity{ID: "kw-1", Type: EntityKeyword, Product: "shoes", Market: "us", Campaign: "Brand", AdGroup: "Exact", Keyword: "running shoes"}

var window = TimeWindow{BaselineDays: 28, CurrentDays: 7}

func cpcSource() *fakeSource {
	src := newFakeSource(now0, window)
	src.data["cpc"] = series{baseline: repeat(1.0, 28), current: repeat(2.0, 7)}
	src.data["clicks"] = series{current: repeat(20, 7)}
	return src
}

func setup(t *testing.T, cfg AlertConfig, src MetricSource) (Detector, *storage.MemoryStore, *clock) {
	t.Helper()
	store := storage.NewMemoryStore()
	clk := &clock{t: now0}
	d, err := NewDetector(cfg, Deps{
		Source:  src,
		Noise:   noise.NewController(store),
		History: store,
		Now:     clk.now,
	})
	require.NoError(t, err)
	return d, store, clk
}

func TestConsecutiveDebounceThroughDetector(t *testing.T) {
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 3}}
	d, store, clk := setup(t, cfg, cpcSource())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := d.Detect(ctx, keyword, window)
		assert.False(t, res.Triggered)
		assert.NotEmpty(t, res.Reason)
		clk.t = clk.t.Add(time.Hour)
	}
	res := d.Detect(ctx, keyword, window)
	require.True(t, res.Triggered, res.Reason)

	state, err := store.GetState(ctx, AlertID(AlertCPCJump, keyword))
	require.NoError(t, err)
	assert.Equal(t, 3, state.ConsecutiveOccurrences)
	assert.Equal(t, storage.StatusOpen, state.Status)
	assert.Equal(t, 3, res.Alert.Detection.ConsecutiveOccurrences)
	assert.Equal(t, 1, res.Alert.Detection.Occurrences)
	assert.Equal(t, now0, res.Alert.Detection.FirstSeen)
}

func TestCooldownThroughDetector(t *testing.T) {
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyCooldown, CooldownHours: 24}}
	d, _, clk := setup(t, cfg, cpcSource())
	ctx := context.Background()

	assert.True(t, d.Detect(ctx, keyword, window).Triggered)

	clk.t = now0.Add(time.Hour)
	res := d.Detect(ctx, keyword, window)
	assert.False(t, res.Triggered)
	assert.Contains(t, res.Reason, "cooldown")

	clk.t = now0.Add(25 * time.Hour)
	assert.True(t, d.Detect(ctx, keyword, window).Triggered)
}

func TestSurfacedAlertContents(t *testing.T) {
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true, Playbook: "pb_custom",
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1},
		Thresholds:   Thresholds{SeverityBands: &SeverityBands{Critical: ptr(0.9), High: ptr(0.5)}}}
	d, store, _ := setup(t, cfg, cpcSource())

	res := d.Detect(context.Background(), keyword, TimeWindow{})
	require.True(t, res.Triggered, res.Reason)
	a := res.Alert
	assert.Equal(t, "35375684049204cf", a.ID)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, window, a.Window)
	assert.Equal(t, "pb_custom", a.Playbook)
	assert.InDelta(t, 100.0, a.Metrics.ChangePercentage, 1e-9)
	assert.InDelta(t, 1.0, a.Metrics.ChangeAbsolute, 1e-9)
	assert.Equal(t, 28, a.Metrics.Baseline.Count)
	assert.Equal(t, 7, a.Metrics.Current.Count)
	assert.Contains(t, a.Why, "CPC")
	assert.NotEmpty(t, a.SuggestedActions)

	history := store.History()
	require.Len(t, history, 1)
	var stored Alert
	require.NoError(t, json.Unmarshal(history[0].Payload, &stored))
	assert.Equal(t, a.ID, stored.ID)
}

func TestMinimumVolumeGate(t *testing.T) {
	src := newFakeSource(now0, window)
	src.data["cpc"] = series{baseline: repeat(1.0, 28), current: repeat(50.0, 7)}
	src.data["clicks"] = series{current: []float64{4, 3, 3}}
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true,
		Thresholds:   Thresholds{MinVolume: ptr(50)},
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, store, _ := setup(t, cfg, src)
	ctx := context.Background()

	res := d.Detect(ctx, keyword, window)
	assert.False(t, res.Triggered)
	assert.Contains(t, res.Reason, "10")
	assert.Contains(t, res.Reason, "50")

	// noise control was never consulted
	_, err := store.GetState(ctx, AlertID(AlertCPCJump, keyword))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSourceErrorBecomesReason(t *testing.T) {
	src := cpcSource()
	src.err = errors.New("warehouse unreachable")
	d, _, _ := setup(t, AlertConfig{Type: AlertCPCJump, Enabled: true}, src)

	res := d.Detect(context.Background(), keyword, window)
	assert.False(t, res.Triggered)
	assert.Equal(t, "Detection error: fetch baseline cpc: warehouse unreachable", res.Reason)
}

type panicSource struct{}

func (panicSource) FetchMetrics(context.Context, Entity, string, time.Time, time.Time) ([]float64, error) {
	panic("boom")
}

func TestPanicBecomesReason(t *testing.T) {
	d, _, _ := setup(t, AlertConfig{Type: AlertCTRDrop, Enabled: true}, panicSource{})
	res := d.Detect(context.Background(), keyword, window)
	assert.False(t, res.Triggered)
	assert.Equal(t, "Detection error: boom", res.Reason)
}

func TestRepeatedDetectionUpdatesOneRow(t *testing.T) {
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, store, _ := setup(t, cfg, cpcSource())
	ctx := context.Background()

	first := d.Detect(ctx, keyword, window)
	second := d.Detect(ctx, keyword, window)
	require.True(t, first.Triggered)
	require.True(t, second.Triggered)
	assert.Equal(t, first.Alert.ID, second.Alert.ID)

	states, err := store.ListStates(ctx, storage.StateFilter{})
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 2, states[0].ConsecutiveOccurrences)
	assert.Equal(t, 2, states[0].SurfacedCount)
}

func TestConcurrentDetectionsDoNotDoubleCount(t *testing.T) {
	cfg := AlertConfig{Type: AlertCPCJump, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, store, _ := setup(t, cfg, cpcSource())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Detect(ctx, keyword, window)
		}()
	}
	wg.Wait()
	state, err := store.GetState(ctx, AlertID(AlertCPCJump, keyword))
	require.NoError(t, err)
	assert.Equal(t, 10, state.ConsecutiveOccurrences)
}

func TestRatioBelowThresholdDoesNotTrigger(t *testing.T) {
	src := cpcSource()
	src.data["cpc"] = series{baseline: repeat(1.0, 28), current: repeat(1.2, 7)}
	d, store, _ := setup(t, AlertConfig{Type: AlertCPCJump, Enabled: true}, src)

	res := d.Detect(context.Background(), keyword, window)
	assert.False(t, res.Triggered)
	assert.Contains(t, res.Reason, "below threshold")
	assert.Empty(t, store.History())
}

func TestCTRDropDetector(t *testing.T) {
	src := newFakeSource(now0, window)
	src.data["ctr"] = series{baseline: repeat(0.05, 28), current: repeat(0.02, 7)}
	cfg := AlertConfig{Type: AlertCTRDrop, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, _, _ := setup(t, cfg, src)

	res := d.Detect(context.Background(), keyword, window)
	require.True(t, res.Triggered, res.Reason)
	assert.InDelta(t, -60.0, res.Alert.Metrics.ChangePercentage, 1e-6)
}

func TestQualityScoreIssues(t *testing.T) {
	src := newFakeSource(now0, window)
	src.data["quality_score"] = series{baseline: repeat(7, 28), current: repeat(4, 7)}
	cfg := AlertConfig{Type: AlertQualityScore, Enabled: true,
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, _, _ := setup(t, cfg, src)

	res := d.Detect(context.Background(), keyword, window)
	require.True(t, res.Triggered, res.Reason)
	issues, ok := res.Alert.Metrics.Additional["issues"].([]string)
	require.True(t, ok)
	assert.Len(t, issues, 2)

	src.data["quality_score"] = series{baseline: repeat(7, 28), current: repeat(6.5, 7)}
	res = d.Detect(context.Background(), keyword, window)
	assert.False(t, res.Triggered)
}

func TestZScoreDetector(t *testing.T) {
	src := newFakeSource(now0, window)
	base := make([]float64, 0, 28)
	for i := 0; i < 14; i++ {
		base = append(base, 90, 110)
	}
	src.data["impressions"] = series{baseline: base, current: repeat(140, 7)}
	cfg := AlertConfig{Type: AlertZScore, Enabled: true, Metric: "impressions",
		NoiseControl: noise.Policy{Strategy: noise.StrategyConsecutive, ConsecutiveChecks: 1}}
	d, _, _ := setup(t, cfg, src)

	res := d.Detect(context.Background(), keyword, window)
	require.True(t, res.Triggered, res.Reason)
	assert.InDelta(t, 4.0, res.Alert.Metrics.ZScore, 1e-9)
	assert.Equal(t, SeverityCritical, res.Alert.Severity)
}

func TestZScoreDetectorRequiresMetric(t *testing.T) {
	_, err := NewDetector(AlertConfig{Type: AlertZScore}, Deps{})
	assert.Error(t, err)
}

func TestRegistrySkipsDisabled(t *testing.T) {
	reg, err := NewRegistry([]AlertConfig{
		{Type: AlertCTRDrop, Enabled: true},
		{Type: AlertCPCJump, Enabled: true},
		{Type: AlertSpendSpike, Enabled: false},
	}, Deps{})
	require.NoError(t, err)
	ds := reg.Detectors()
	require.Len(t, ds, 2)
	assert.Equal(t, AlertCPCJump, ds[0].Type())
	_, ok := reg.Get(AlertSpendSpike)
	assert.False(t, ok)

	_, err = NewRegistry([]AlertConfig{{Type: "bogus", Enabled: true}}, Deps{})
	assert.Error(t, err)
}
