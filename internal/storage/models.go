package storage

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusOpen    Status = "open"
	StatusAck     Status = "ack"
	StatusSnoozed Status = "snoozed"
	StatusClosed  Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAck, StatusSnoozed, StatusClosed:
		return true
	}
	return false
}

// AlertState is the persisted noise-control record for one alert ID. Rows are
// never deleted; they move to closed and reopen on the next surfaced detection.
type AlertState struct {
	AlertID                string     `json:"alert_id"`
	AlertType              string     `json:"alert_type"`
	Status                 Status     `json:"status"`
	Severity               string     `json:"severity"`
	FirstSeen              time.Time  `json:"first_seen"`
	LastSeen               time.Time  `json:"last_seen"`
	ConsecutiveOccurrences int        `json:"consecutive_occurrences"`
	SurfacedCount          int        `json:"surfaced_count"`
	SnoozeUntil            *time.Time `json:"snooze_until,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type HistoryEntry struct {
	AlertID    string          `json:"alert_id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Payload    json.RawMessage `json:"payload"`
}

type RemediationRecord struct {
	ID               string          `json:"id"`
	AlertID          string          `json:"alert_id"`
	Playbook         string          `json:"playbook"`
	Actions          []string        `json:"actions"`
	GuardrailsPassed bool            `json:"guardrails_passed"`
	RecordedAt       time.Time       `json:"recorded_at"`
	Payload          json.RawMessage `json:"payload"`
}

type StateFilter struct {
	Status Status
	Limit  int
}
