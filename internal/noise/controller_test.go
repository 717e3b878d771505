package noise

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adwatch-backend/internal/storage"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func candidate(at time.Time, severity string) Candidate {
	return Candidate{AlertID: "a1", AlertType: "cpc_jump", Severity: severity, At: at}
}

func TestConsecutiveDebounce(t *testing.T) {
	ctx := context.Background()
	ctrl := NewController(storage.NewMemoryStore())
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 3}

	first, err := ctrl.Evaluate(ctx, policy, candidate(t0, "high"))
	require.NoError(t, err)
	assert.False(t, first.Surface)
	assert.Contains(t, first.Reason, "1/3")

	second, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(time.Hour), "high"))
	require.NoError(t, err)
	assert.False(t, second.Surface)

	third, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(2*time.Hour), "high"))
	require.NoError(t, err)
	assert.True(t, third.Surface)
	assert.Equal(t, 3, third.State.ConsecutiveOccurrences)
	assert.Equal(t, 1, third.State.SurfacedCount)

	fourth, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(3*time.Hour), "high"))
	require.NoError(t, err)
	assert.True(t, fourth.Surface)
	assert.Equal(t, 4, fourth.State.ConsecutiveOccurrences)
}

func TestCooldownSuppression(t *testing.T) {
	ctx := context.Background()
	ctrl := NewController(storage.NewMemoryStore())
	policy := Policy{Strategy: StrategyCooldown, CooldownHours: 24}

	d, err := ctrl.Evaluate(ctx, policy, candidate(t0, "medium"))
	require.NoError(t, err)
	assert.True(t, d.Surface)

	d, err = ctrl.Evaluate(ctx, policy, candidate(t0.Add(time.Hour), "medium"))
	require.NoError(t, err)
	assert.False(t, d.Surface)
	assert.Contains(t, d.Reason, "cooldown")

	d, err = ctrl.Evaluate(ctx, policy, candidate(t0.Add(25*time.Hour), "medium"))
	require.NoError(t, err)
	assert.True(t, d.Surface)
	assert.Equal(t, 2, d.State.SurfacedCount)
	assert.Equal(t, 3, d.State.ConsecutiveOccurrences)
}

func TestBothAppliesConsecutiveBeforeCooldown(t *testing.T) {
	ctx := context.Background()
	ctrl := NewController(storage.NewMemoryStore())
	policy := Policy{Strategy: StrategyBoth, ConsecutiveChecks: 2, CooldownHours: 1}

	d, err := ctrl.Evaluate(ctx, policy, candidate(t0, "low"))
	require.NoError(t, err)
	assert.False(t, d.Surface)
	assert.Contains(t, d.Reason, "consecutive")

	d, err = ctrl.Evaluate(ctx, policy, candidate(t0.Add(10*time.Minute), "low"))
	require.NoError(t, err)
	assert.False(t, d.Surface)
	assert.Contains(t, d.Reason, "cooldown")

	d, err = ctrl.Evaluate(ctx, policy, candidate(t0.Add(2*time.Hour), "low"))
	require.NoError(t, err)
	assert.True(t, d.Surface)
}

func TestReopenClosedAlertAndLatestSeverityWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ctrl := NewController(store)
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}

	_, err := ctrl.Evaluate(ctx, policy, candidate(t0, "critical"))
	require.NoError(t, err)
	_, err = NewStatusManager(store, func() time.Time { return t0 }).Close(ctx, "a1", "fixed")
	require.NoError(t, err)

	d, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(time.Hour), "low"))
	require.NoError(t, err)
	assert.True(t, d.Surface)
	assert.Equal(t, storage.StatusOpen, d.State.Status)
	assert.Equal(t, "low", d.State.Severity)
	assert.Equal(t, "fixed", d.State.Notes)
}

func TestAcknowledgedAlertKeepsStatusOnSurface(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ctrl := NewController(store)
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}

	_, err := ctrl.Evaluate(ctx, policy, candidate(t0, "high"))
	require.NoError(t, err)
	_, err = NewStatusManager(store, nil).Acknowledge(ctx, "a1", "")
	require.NoError(t, err)

	d, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(time.Hour), "high"))
	require.NoError(t, err)
	assert.True(t, d.Surface)
	assert.Equal(t, storage.StatusAck, d.State.Status)
}

func TestSnoozeIsCheckedLazily(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ctrl := NewController(store)
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}

	_, err := ctrl.Evaluate(ctx, policy, candidate(t0, "high"))
	require.NoError(t, err)
	_, err = NewStatusManager(store, func() time.Time { return t0 }).Snooze(ctx, "a1", t0.Add(12*time.Hour), "")
	require.NoError(t, err)

	d, err := ctrl.Evaluate(ctx, policy, candidate(t0.Add(time.Hour), "high"))
	require.NoError(t, err)
	assert.False(t, d.Surface)
	assert.Contains(t, d.Reason, "Snoozed")
	assert.Equal(t, storage.StatusSnoozed, d.State.Status)

	d, err = ctrl.Evaluate(ctx, policy, candidate(t0.Add(13*time.Hour), "high"))
	require.NoError(t, err)
	assert.True(t, d.Surface)
	assert.Equal(t, storage.StatusOpen, d.State.Status)
	assert.Nil(t, d.State.SnoozeUntil)
}

func TestRepeatedEvaluationKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ctrl := NewController(store)
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}

	_, err := ctrl.Evaluate(ctx, policy, candidate(t0, "high"))
	require.NoError(t, err)
	_, err = ctrl.Evaluate(ctx, policy, candidate(t0, "high"))
	require.NoError(t, err)

	states, err := store.ListStates(ctx, storage.StateFilter{})
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, 2, states[0].ConsecutiveOccurrences)
}

func TestConcurrentEvaluationReleasesLocks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ctrl := NewController(store)
	policy := Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("a%d", i%20)
			_, err := ctrl.Evaluate(ctx, policy, Candidate{AlertID: id, AlertType: "cpc_jump", Severity: "high", At: t0})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, ctrl.locks.size())
	for i := 0; i < 20; i++ {
		state, err := store.GetState(ctx, fmt.Sprintf("a%d", i))
		require.NoError(t, err)
		assert.Equal(t, 10, state.ConsecutiveOccurrences)
	}
}
