package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// MutateFunc computes the next state from the current one. current is nil when
// no row exists yet. Returning an error aborts the write.
type MutateFunc func(current *AlertState) (AlertState, error)

// AlertStore persists alert state and the append-only alert and remediation
// logs. UpsertState must run read, mutate and write as one atomic step per
// alert ID.
type AlertStore interface {
	GetState(ctx context.Context, alertID string) (AlertState, error)
	UpsertState(ctx context.Context, alertID string, mutate MutateFunc) (AlertState, error)
	ListStates(ctx context.Context, filter StateFilter) ([]AlertState, error)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	LatestAlert(ctx context.Context, alertID string) (HistoryEntry, error)
	AppendRemediation(ctx context.Context, rec RemediationRecord) error
	Close() error
}
