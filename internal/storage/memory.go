package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process. It is used by tests and by the
// one-shot CLI when no database is configured.
type MemoryStore struct {
	mu           sync.Mutex
	states       map[string]AlertState
	history      []HistoryEntry
	remediations []RemediationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]AlertState{}}
}

func (s *MemoryStore) GetState(ctx context.Context, alertID string) (AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[alertID]
	if !ok {
		return AlertState{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) UpsertState(ctx context.Context, alertID string, mutate MutateFunc) (AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *AlertState
	if existing, ok := s.states[alertID]; ok {
		copied := existing
		current = &copied
	}
	next, err := mutate(current)
	if err != nil {
		return AlertState{}, err
	}
	next.AlertID = alertID
	s.states[alertID] = next
	return next, nil
}

func (s *MemoryStore) ListStates(ctx context.Context, filter StateFilter) ([]AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := []AlertState{}
	for _, state := range s.states {
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		results = append(results, state)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].LastSeen.After(results[j].LastSeen)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

func (s *MemoryStore) LatestAlert(ctx context.Context, alertID string) (HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].AlertID == alertID {
			return s.history[i], nil
		}
	}
	return HistoryEntry{}, ErrNotFound
}

func (s *MemoryStore) AppendRemediation(ctx context.Context, rec RemediationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remediations = append(s.remediations, rec)
	return nil
}

// History returns a copy of the alert log.
func (s *MemoryStore) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// Remediations returns a copy of the remediation log.
func (s *MemoryStore) Remediations() []RemediationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RemediationRecord(nil), s.remediations...)
}

func (s *MemoryStore) Close() error {
	return nil
}
