package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS alert_states (
	alert_id TEXT PRIMARY KEY,
	alert_type TEXT NOT NULL,
	status TEXT NOT NULL,
	severity TEXT NOT NULL,
	first_seen TEXT NOT NULL,
	last_seen TEXT NOT NULL,
	consecutive_occurrences INTEGER NOT NULL,
	surfaced_count INTEGER NOT NULL,
	snooze_until TEXT NULL,
	notes TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_history_alert_idx ON alert_history (alert_id, id);
CREATE TABLE IF NOT EXISTS remediation_log (
	id TEXT PRIMARY KEY,
	alert_id TEXT NOT NULL,
	playbook TEXT NOT NULL,
	actions TEXT NOT NULL,
	guardrails_passed INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	payload TEXT NOT NULL
);`

// SQLiteStore is a single-node AlertStore. Writes go through one connection
// and an in-process mutex, which gives UpsertState its atomicity.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteState(row rowScanner) (AlertState, error) {
	var st AlertState
	var status, firstSeen, lastSeen, updatedAt string
	var snooze sql.NullString
	if err := row.Scan(&st.AlertID, &st.AlertType, &status, &st.Severity, &firstSeen, &lastSeen,
		&st.ConsecutiveOccurrences, &st.SurfacedCount, &snooze, &st.Notes, &updatedAt); err != nil {
		return AlertState{}, err
	}
	st.Status = Status(status)
	var err error
	if st.FirstSeen, err = parseStoredTime(firstSeen); err != nil {
		return AlertState{}, err
	}
	if st.LastSeen, err = parseStoredTime(lastSeen); err != nil {
		return AlertState{}, err
	}
	if st.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return AlertState{}, err
	}
	if snooze.Valid {
		until, err := parseStoredTime(snooze.String)
		if err != nil {
			return AlertState{}, err
		}
		st.SnoozeUntil = &until
	}
	return st, nil
}

func (s *SQLiteStore) GetState(ctx context.Context, alertID string) (AlertState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM alert_states WHERE alert_id=?`, alertID)
	st, err := scanSQLiteState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AlertState{}, ErrNotFound
	}
	return st, err
}

func (s *SQLiteStore) UpsertState(ctx context.Context, alertID string, mutate MutateFunc) (AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AlertState{}, fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback()

	var current *AlertState
	st, err := scanSQLiteState(tx.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM alert_states WHERE alert_id=?`, alertID))
	switch {
	case err == nil:
		current = &st
	case errors.Is(err, sql.ErrNoRows):
	default:
		return AlertState{}, fmt.Errorf("read alert state: %w", err)
	}
	next, err := mutate(current)
	if err != nil {
		return AlertState{}, err
	}
	next.AlertID = alertID
	var snooze any
	if next.SnoozeUntil != nil {
		snooze = formatTime(*next.SnoozeUntil)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_states (`+stateColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		next.AlertID, next.AlertType, string(next.Status), next.Severity, formatTime(next.FirstSeen), formatTime(next.LastSeen),
		next.ConsecutiveOccurrences, next.SurfacedCount, snooze, next.Notes, formatTime(next.UpdatedAt))
	if err != nil {
		return AlertState{}, fmt.Errorf("write alert state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return AlertState{}, fmt.Errorf("commit alert state: %w", err)
	}
	return next, nil
}

func (s *SQLiteStore) ListStates(ctx context.Context, filter StateFilter) ([]AlertState, error) {
	query := `SELECT ` + stateColumns + ` FROM alert_states`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status=?`
		args = append(args, string(filter.Status))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertState{}
	for rows.Next() {
		st, err := scanSQLiteState(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].LastSeen.After(results[j].LastSeen)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO alert_history (alert_id, recorded_at, payload) VALUES (?,?,?)`,
		entry.AlertID, formatTime(entry.RecordedAt), string(entry.Payload))
	return err
}

func (s *SQLiteStore) LatestAlert(ctx context.Context, alertID string) (HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_id, recorded_at, payload FROM alert_history
		WHERE alert_id=? ORDER BY id DESC LIMIT 1`, alertID)
	var entry HistoryEntry
	var recordedAt, payload string
	if err := row.Scan(&entry.AlertID, &recordedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HistoryEntry{}, ErrNotFound
		}
		return HistoryEntry{}, err
	}
	ts, err := parseStoredTime(recordedAt)
	if err != nil {
		return HistoryEntry{}, err
	}
	entry.RecordedAt = ts
	entry.Payload = json.RawMessage(payload)
	return entry, nil
}

func (s *SQLiteStore) AppendRemediation(ctx context.Context, rec RemediationRecord) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remediation_log (id, alert_id, playbook, actions, guardrails_passed, recorded_at, payload)
		VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.AlertID, rec.Playbook, string(actions), rec.GuardrailsPassed, formatTime(rec.RecordedAt), string(rec.Payload))
	return err
}
