package noise

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adwatch-backend/internal/storage"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the operator-driven moves. closed -> open happens only
// through a surfaced detection and is not reachable from here.
var transitions = map[storage.Status][]storage.Status{
	storage.StatusOpen:    {storage.StatusAck, storage.StatusSnoozed, storage.StatusClosed},
	storage.StatusAck:     {storage.StatusAck, storage.StatusOpen, storage.StatusSnoozed, storage.StatusClosed},
	storage.StatusSnoozed: {storage.StatusClosed},
	storage.StatusClosed:  {storage.StatusClosed},
}

func CanTransition(from, to storage.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusManager applies operator actions to persisted alert state.
type StatusManager struct {
	store storage.AlertStore
	now   func() time.Time
}

func NewStatusManager(store storage.AlertStore, now func() time.Time) *StatusManager {
	if now == nil {
		now = time.Now
	}
	return &StatusManager{store: store, now: now}
}

func (m *StatusManager) Acknowledge(ctx context.Context, alertID, note string) (storage.AlertState, error) {
	return m.move(ctx, alertID, storage.StatusAck, note, nil)
}

func (m *StatusManager) Unacknowledge(ctx context.Context, alertID, note string) (storage.AlertState, error) {
	return m.transition(ctx, alertID, note, func(st *storage.AlertState) error {
		if st.Status != storage.StatusAck {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.Status, storage.StatusOpen)
		}
		st.Status = storage.StatusOpen
		return nil
	})
}

func (m *StatusManager) Snooze(ctx context.Context, alertID string, until time.Time, note string) (storage.AlertState, error) {
	if !until.After(m.now()) {
		return storage.AlertState{}, fmt.Errorf("%w: snooze_until must be in the future", ErrInvalidTransition)
	}
	return m.move(ctx, alertID, storage.StatusSnoozed, note, &until)
}

func (m *StatusManager) Close(ctx context.Context, alertID, note string) (storage.AlertState, error) {
	return m.move(ctx, alertID, storage.StatusClosed, note, nil)
}

func (m *StatusManager) move(ctx context.Context, alertID string, to storage.Status, note string, snoozeUntil *time.Time) (storage.AlertState, error) {
	return m.transition(ctx, alertID, note, func(st *storage.AlertState) error {
		if !CanTransition(st.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.Status, to)
		}
		st.Status = to
		st.SnoozeUntil = snoozeUntil
		return nil
	})
}

func (m *StatusManager) transition(ctx context.Context, alertID, note string, apply func(*storage.AlertState) error) (storage.AlertState, error) {
	return m.store.UpsertState(ctx, alertID, func(current *storage.AlertState) (storage.AlertState, error) {
		if current == nil {
			return storage.AlertState{}, storage.ErrNotFound
		}
		next := *current
		if err := apply(&next); err != nil {
			return storage.AlertState{}, err
		}
		if note != "" {
			next.Notes = note
		}
		next.UpdatedAt = m.now()
		return next, nil
	})
}
