package noise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adwatch-backend/internal/storage"
)

func seeded(t *testing.T) (*storage.MemoryStore, *StatusManager) {
	t.Helper()
	store := storage.NewMemoryStore()
	_, err := NewController(store).Evaluate(context.Background(),
		Policy{Strategy: StrategyConsecutive, ConsecutiveChecks: 1}, candidate(t0, "high"))
	require.NoError(t, err)
	return store, NewStatusManager(store, func() time.Time { return t0 })
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, mgr := seeded(t)

	st, err := mgr.Acknowledge(ctx, "a1", "looking")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusAck, st.Status)

	st, err = mgr.Acknowledge(ctx, "a1", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusAck, st.Status)
	assert.Equal(t, "looking", st.Notes)

	st, err = mgr.Unacknowledge(ctx, "a1", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOpen, st.Status)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	_, mgr := seeded(t)

	_, err := mgr.Unacknowledge(ctx, "a1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = mgr.Snooze(ctx, "a1", t0.Add(-time.Hour), "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = mgr.Close(ctx, "a1", "")
	require.NoError(t, err)
	_, err = mgr.Acknowledge(ctx, "a1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionOnUnknownAlert(t *testing.T) {
	_, mgr := seeded(t)
	_, err := mgr.Close(context.Background(), "missing", "")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(storage.StatusOpen, storage.StatusAck))
	assert.True(t, CanTransition(storage.StatusAck, storage.StatusSnoozed))
	assert.True(t, CanTransition(storage.StatusSnoozed, storage.StatusClosed))
	assert.False(t, CanTransition(storage.StatusClosed, storage.StatusOpen))
	assert.False(t, CanTransition(storage.StatusSnoozed, storage.StatusAck))
}
