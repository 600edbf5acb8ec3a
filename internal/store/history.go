package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotswap/internal/logging"
)

// Cycle statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Diagnostic is one stored compiler finding.
type Diagnostic struct {
	Unit     string
	Severity string
	Code     string
	Line     int
	Message  string
}

// Cycle is one recorded reload cycle.
type Cycle struct {
	ID          string
	Trigger     string // manual, watch, run
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	Units       []string
	Migrated    int
	Stale       int
	Replaced    int
	Warnings    []string
	Error       string
	Diagnostics []Diagnostic
}

// Duration is the cycle's wall time.
func (c Cycle) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}

// RecordCycle stores a cycle and its diagnostics.
func (s *Store) RecordCycle(ctx context.Context, c Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	units, err := json.Marshal(c.Units)
	if err != nil {
		return fmt.Errorf("failed to encode units: %w", err)
	}
	warnings, err := json.Marshal(c.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}
	trigger := c.Trigger
	if trigger == "" {
		trigger = "manual"
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cycles (id, trigger_kind, started_at, finished_at, status, units_json,
				migrated, stale, replaced, warnings_json, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, trigger, c.StartedAt.UTC(), c.FinishedAt.UTC(), c.Status, string(units),
			c.Migrated, c.Stale, c.Replaced, string(warnings), c.Error)
		if err != nil {
			return fmt.Errorf("failed to insert cycle: %w", err)
		}
		for _, d := range c.Diagnostics {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO diagnostics (cycle_id, unit, severity, code, line, message)
				VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, d.Unit, d.Severity, d.Code, d.Line, d.Message)
			if err != nil {
				return fmt.Errorf("failed to insert diagnostic: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryStore).Debug("recorded cycle %s (%s)", c.ID, c.Status)
	return nil
}

// Recent returns up to limit cycles, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, started_at, finished_at, status, units_json,
			migrated, stale, replaced, warnings_json, error
		FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Diagnostics, err = s.diagnostics(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Get returns one cycle by id.
func (s *Store) Get(ctx context.Context, id string) (*Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger_kind, started_at, finished_at, status, units_json,
			migrated, stale, replaced, warnings_json, error
		FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if c.Diagnostics, err = s.diagnostics(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// Prune deletes all but the newest keep cycles.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycles: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) diagnostics(ctx context.Context, cycleID string) ([]Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, severity, code, line, message
		FROM diagnostics WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Unit, &d.Severity, &d.Code, &d.Line, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCycle(row scanner) (Cycle, error) {
	var (
		c        Cycle
		units    sql.NullString
		warnings sql.NullString
		errText  sql.NullString
	)
	err := row.Scan(&c.ID, &c.Trigger, &c.StartedAt, &c.FinishedAt, &c.Status, &units,
		&c.Migrated, &c.Stale, &c.Replaced, &warnings, &errText)
	if err != nil {
		return Cycle{}, err
	}
	if units.Valid && units.String != "" {
		if err := json.Unmarshal([]byte(units.String), &c.Units); err != nil {
			return Cycle{}, fmt.Errorf("failed to decode units: %w", err)
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &c.Warnings); err != nil {
			return Cycle{}, fmt.Errorf("failed to decode warnings: %w", err)
		}
	}
	c.Error = errText.String
	return c, nil
}
