package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

const stateColumns = `alert_id, alert_type, status, severity, first_seen, last_seen,
	consecutive_occurrences, surfaced_count, snooze_until, notes, updated_at`

func scanState(row pgx.Row) (AlertState, error) {
	var st AlertState
	var status string
	if err := row.Scan(&st.AlertID, &st.AlertType, &status, &st.Severity, &st.FirstSeen, &st.LastSeen,
		&st.ConsecutiveOccurrences, &st.SurfacedCount, &st.SnoozeUntil, &st.Notes, &st.UpdatedAt); err != nil {
		return AlertState{}, err
	}
	st.Status = Status(status)
	return st, nil
}

func (s *PostgresStore) GetState(ctx context.Context, alertID string) (AlertState, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM alert_states WHERE alert_id=$1`, alertID)
	st, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AlertState{}, ErrNotFound
	}
	return st, err
}

// UpsertState serializes writers on the alert ID with a transaction-scoped
// advisory lock, so a missing row cannot be created twice.
func (s *PostgresStore) UpsertState(ctx context.Context, alertID string, mutate MutateFunc) (AlertState, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return AlertState{}, fmt.Errorf("begin state tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, alertID); err != nil {
		return AlertState{}, fmt.Errorf("lock alert %s: %w", alertID, err)
	}
	var current *AlertState
	st, err := scanState(tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM alert_states WHERE alert_id=$1 FOR UPDATE`, alertID))
	switch {
	case err == nil:
		current = &st
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return AlertState{}, fmt.Errorf("read alert state: %w", err)
	}

	next, err := mutate(current)
	if err != nil {
		return AlertState{}, err
	}
	next.AlertID = alertID
	_, err = tx.Exec(ctx, `
		INSERT INTO alert_states (`+stateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (alert_id) DO UPDATE SET
			alert_type=EXCLUDED.alert_type, status=EXCLUDED.status, severity=EXCLUDED.severity,
			first_seen=EXCLUDED.first_seen, last_seen=EXCLUDED.last_seen,
			consecutive_occurrences=EXCLUDED.consecutive_occurrences, surfaced_count=EXCLUDED.surfaced_count,
			snooze_until=EXCLUDED.snooze_until, notes=EXCLUDED.notes, updated_at=EXCLUDED.updated_at`,
		next.AlertID, next.AlertType, string(next.Status), next.Severity, next.FirstSeen, next.LastSeen,
		next.ConsecutiveOccurrences, next.SurfacedCount, next.SnoozeUntil, next.Notes, next.UpdatedAt)
	if err != nil {
		return AlertState{}, fmt.Errorf("write alert state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return AlertState{}, fmt.Errorf("commit alert state: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) ListStates(ctx context.Context, filter StateFilter) ([]AlertState, error) {
	query := `SELECT ` + stateColumns + ` FROM alert_states`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY last_seen DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertState{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO alert_history (alert_id, recorded_at, payload) VALUES ($1,$2,$3)`,
		entry.AlertID, entry.RecordedAt, []byte(entry.Payload))
	return err
}

func (s *PostgresStore) LatestAlert(ctx context.Context, alertID string) (HistoryEntry, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT alert_id, recorded_at, payload FROM alert_history
		WHERE alert_id=$1 ORDER BY recorded_at DESC, id DESC LIMIT 1`, alertID)
	var entry HistoryEntry
	var payload []byte
	if err := row.Scan(&entry.AlertID, &entry.RecordedAt, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HistoryEntry{}, ErrNotFound
		}
		return HistoryEntry{}, err
	}
	entry.Payload = payload
	return entry, nil
}

func (s *PostgresStore) AppendRemediation(ctx context.Context, rec RemediationRecord) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO remediation_log (id, alert_id, playbook, actions, guardrails_passed, recorded_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.AlertID, rec.Playbook, rec.Actions, rec.GuardrailsPassed, rec.RecordedAt, []byte(rec.Payload))
	return err
}
