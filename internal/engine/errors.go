package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrReloadInProgress is returned under the reject policy when a cycle
	// is already running.
	ErrReloadInProgress = errors.New("reload already in progress")
	// ErrNoSources is returned when a reload names no sources.
	ErrNoSources = errors.New("no sources to reload")
	// ErrNotTracked is returned for an unknown host-owned object name.
	ErrNotTracked = errors.New("object not tracked")
)

// TypeResolutionWarning reports a live instance that stays on its old type
// because no replacement could be resolved or installed.
type TypeResolutionWarning struct {
	Key      string
	TypeName string
	Detail   string
}

func (w *TypeResolutionWarning) Error() string {
	return fmt.Sprintf("instance %s (%s) kept on previous version: %s", w.Key, w.TypeName, w.Detail)
}

// ReplacementWarning reports a host-owned object that was not replaced.
// RolledBack is set when the object was re-attached on its old type after a
// failed attach.
type ReplacementWarning struct {
	Object     string
	TypeName   string
	Detail     string
	RolledBack bool
}

func (w *ReplacementWarning) Error() string {
	msg := fmt.Sprintf("host object %s (%s) not replaced: %s", w.Object, w.TypeName, w.Detail)
	if w.RolledBack {
		msg += " (rolled back)"
	}
	return msg
}
