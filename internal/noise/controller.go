package noise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adwatch-backend/internal/storage"
)

type Strategy string

const (
	StrategyConsecutive Strategy = "consecutive"
	StrategyCooldown    Strategy = "cooldown"
	StrategyBoth        Strategy = "both"
)

// Policy is the noise_control block of an alert config.
type Policy struct {
	Strategy          Strategy `json:"strategy" yaml:"strategy"`
	ConsecutiveChecks int      `json:"consecutive_checks" yaml:"consecutive_checks"`
	CooldownHours     float64  `json:"cooldown_hours" yaml:"cooldown_hours"`
}

func (p Policy) usesConsecutive() bool {
	return p.Strategy == StrategyConsecutive || p.Strategy == StrategyBoth
}

func (p Policy) usesCooldown() bool {
	return p.Strategy == StrategyCooldown || p.Strategy == StrategyBoth
}

func (p Policy) cooldown() time.Duration {
	return time.Duration(p.CooldownHours * float64(time.Hour))
}

// Candidate is one detection that passed the detector's own checks.
type Candidate struct {
	AlertID   string
	AlertType string
	Severity  string
	At        time.Time
}

type Decision struct {
	Surface bool
	Reason  string
	State   storage.AlertState
}

// Controller decides whether a candidate detection is surfaced. Every
// candidate, surfaced or not, advances the persisted counter and last_seen.
type Controller struct {
	store storage.AlertStore
	locks keyedMutex
}

func NewController(store storage.AlertStore) *Controller {
	return &Controller{store: store}
}

// keyedMutex serializes work per alert id. An entry lives only while some
// goroutine holds or waits for it, so ids seen once do not accumulate.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (c *Controller) Evaluate(ctx context.Context, policy Policy, cand Candidate) (Decision, error) {
	unlock := c.locks.lock(cand.AlertID)
	defer unlock()

	var decision Decision
	state, err := c.store.UpsertState(ctx, cand.AlertID, func(current *storage.AlertState) (storage.AlertState, error) {
		decision = Decision{}
		next, prevLastSeen, existed := advance(current, cand)
		decision.Surface, decision.Reason = decide(policy, next, prevLastSeen, existed, cand.At)
		if decision.Surface && next.Status == storage.StatusSnoozed {
			if next.SnoozeUntil != nil && cand.At.Before(*next.SnoozeUntil) {
				decision.Surface = false
				decision.Reason = fmt.Sprintf("Snoozed until %s", next.SnoozeUntil.UTC().Format(time.RFC3339))
			} else {
				next.Status = storage.StatusOpen
				next.SnoozeUntil = nil
			}
		}
		if decision.Surface {
			if next.Status == storage.StatusClosed {
				next.Status = storage.StatusOpen
			}
			next.Severity = cand.Severity
			next.SurfacedCount++
		}
		return next, nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("update alert state %s: %w", cand.AlertID, err)
	}
	decision.State = state
	return decision, nil
}

func advance(current *storage.AlertState, cand Candidate) (storage.AlertState, time.Time, bool) {
	if current == nil {
		return storage.AlertState{
			AlertID:                cand.AlertID,
			AlertType:              cand.AlertType,
			Status:                 storage.StatusOpen,
			Severity:               cand.Severity,
			FirstSeen:              cand.At,
			LastSeen:               cand.At,
			ConsecutiveOccurrences: 1,
			UpdatedAt:              cand.At,
		}, time.Time{}, false
	}
	next := *current
	prev := next.LastSeen
	next.ConsecutiveOccurrences++
	next.LastSeen = cand.At
	next.UpdatedAt = cand.At
	return next, prev, true
}

func decide(policy Policy, next storage.AlertState, prevLastSeen time.Time, existed bool, at time.Time) (bool, string) {
	if policy.usesConsecutive() && next.ConsecutiveOccurrences < policy.ConsecutiveChecks {
		return false, fmt.Sprintf("Waiting for consecutive detections (%d/%d)", next.ConsecutiveOccurrences, policy.ConsecutiveChecks)
	}
	if policy.usesCooldown() && existed {
		if elapsed := at.Sub(prevLastSeen); elapsed < policy.cooldown() {
			return false, fmt.Sprintf("In cooldown: last seen %s ago, cooldown %gh", elapsed.Round(time.Minute), policy.CooldownHours)
		}
	}
	return true, ""
}
