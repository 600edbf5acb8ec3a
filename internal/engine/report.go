package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotswap/internal/compiler"
	"hotswap/internal/store"
	"hotswap/internal/unit"
)

// Triggers recorded with each cycle.
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
	TriggerRun    = "run"
)

// Report describes one reload cycle.
type Report struct {
	ID         string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time

	Results  []*compiler.Result
	Units    []*unit.Unit
	Migrated int
	Stale    int
	Replaced int
	Warnings []error
	Err      error
}

// OK reports whether the cycle installed its units.
func (r *Report) OK() bool {
	return r.Err == nil
}

// Duration is the cycle's wall time.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) warn(err error) {
	r.Warnings = append(r.Warnings, err)
}

// Summary renders a one-line account of the cycle.
func (r *Report) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("cycle %s failed: %v", shortID(r.ID), r.Err)
	}
	return fmt.Sprintf("cycle %s: %d unit(s), migrated %d, stale %d, replaced %d, %d warning(s) in %v",
		shortID(r.ID), len(r.Units), r.Migrated, r.Stale, r.Replaced, len(r.Warnings), r.Duration().Round(time.Millisecond))
}

// Status maps the outcome to a stored status.
func (r *Report) Status() string {
	switch {
	case r.Err == nil:
		return store.StatusOK
	case errors.Is(r.Err, ErrReloadInProgress):
		return store.StatusRejected
	case errors.Is(r.Err, context.Canceled), errors.Is(r.Err, context.DeadlineExceeded):
		return store.StatusCancelled
	default:
		return store.StatusFailed
	}
}

// Cycle converts the report into its stored form.
func (r *Report) Cycle() store.Cycle {
	c := store.Cycle{
		ID:         r.ID,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status(),
		Migrated:   r.Migrated,
		Stale:      r.Stale,
		Replaced:   r.Replaced,
	}
	for _, u := range r.Units {
		c.Units = append(c.Units, u.Name)
	}
	for _, w := range r.Warnings {
		c.Warnings = append(c.Warnings, w.Error())
	}
	if r.Err != nil {
		c.Error = r.Err.Error()
	}
	for _, res := range r.Results {
		if res == nil {
			continue
		}
		for _, d := range res.Diagnostics {
			c.Diagnostics = append(c.Diagnostics, store.Diagnostic{
				Unit:     res.Source.Name,
				Severity: d.Severity.String(),
				Code:     d.Code,
				Line:     d.Line,
				Message:  d.Message,
			})
		}
	}
	return c
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
