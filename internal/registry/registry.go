// Package registry holds the live instances the engine migrates on reload,
// keyed by a caller-chosen string, together with the snapshots taken for the
// cycle in progress.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"hotswap/internal/logging"
	"hotswap/internal/state"
	"hotswap/internal/unit"
)

var (
	// ErrNilInstance is returned when registering an absent instance.
	ErrNilInstance = errors.New("instance is nil")
	// ErrTypeNotFound is returned when a type name does not resolve.
	ErrTypeNotFound = errors.New("type not found")
	// ErrEmptyKey is returned for a blank registry key.
	ErrEmptyKey = errors.New("empty key")
)

// Error is a registration failure. The registry is unchanged.
type Error struct {
	Op       string
	Key      string
	TypeName string
	Err      error
}

func (e *Error) Error() string {
	if e.TypeName != "" {
		return fmt.Sprintf("registry %s %q (type %s): %v", e.Op, e.Key, e.TypeName, e.Err)
	}
	return fmt.Sprintf("registry %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Lookup resolves a type name to its current descriptor.
type Lookup func(typeName string) (*unit.TypeDescriptor, bool)

// Info describes one registered instance.
type Info struct {
	Key     string
	Type    string // unit-qualified
	ID      string
	Dynamic bool
}

// Registry is a keyed store of live instances. Safe for concurrent use; the
// engine additionally routes mutations through the host scheduler.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*unit.Instance
	snapshots map[string]state.FieldSnapshot
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries:   make(map[string]*unit.Instance),
		snapshots: make(map[string]state.FieldSnapshot),
	}
}

// Register stores inst under key, replacing any previous instance.
func (r *Registry) Register(key string, inst *unit.Instance) error {
	if key == "" {
		return r.fail(&Error{Op: "register", Key: key, Err: ErrEmptyKey})
	}
	if inst == nil || !inst.Value.IsValid() {
		return r.fail(&Error{Op: "register", Key: key, Err: ErrNilInstance})
	}

	r.mu.Lock()
	r.entries[key] = inst
	r.mu.Unlock()

	logging.Get(logging.CategoryRegistry).Debug("registered %s as %s", key, inst)
	return nil
}

// RegisterValue wraps a compiled-in value and registers it.
func (r *Registry) RegisterValue(key string, v interface{}) (*unit.Instance, error) {
	if v == nil {
		return nil, r.fail(&Error{Op: "register", Key: key, Err: ErrNilInstance})
	}
	inst, err := unit.Wrap(v)
	if err != nil {
		return nil, r.fail(&Error{Op: "register", Key: key, Err: err})
	}
	if err := r.Register(key, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateAndRegister constructs a new instance of typeName and registers it.
func (r *Registry) CreateAndRegister(key, typeName string, lookup Lookup) (*unit.Instance, error) {
	t, ok := lookup(typeName)
	if !ok {
		return nil, r.fail(&Error{Op: "create", Key: key, TypeName: typeName, Err: ErrTypeNotFound})
	}
	inst, err := t.New()
	if err != nil {
		return nil, r.fail(&Error{Op: "create", Key: key, TypeName: typeName, Err: err})
	}
	if err := r.Register(key, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *Registry) fail(err *Error) error {
	logging.Get(logging.CategoryRegistry).Error("%v", err)
	return err
}

// Get returns the instance registered under key.
func (r *Registry) Get(key string) (*unit.Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.entries[key]
	return inst, ok
}

// Remove drops key and its snapshot.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	delete(r.snapshots, key)
	return ok
}

// Swap replaces old with new under key only if key still holds old.
func (r *Registry) Swap(key string, old, new *unit.Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[key]; !ok || cur != old {
		return false
	}
	r.entries[key] = new
	return true
}

// Clear drops every entry and snapshot.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*unit.Instance)
	r.snapshots = make(map[string]state.FieldSnapshot)
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StoreSnapshot records the snapshot for its owner key.
func (r *Registry) StoreSnapshot(snap state.FieldSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snap.OwnerKey] = snap
}

// Snapshot returns the stored snapshot for key.
func (r *Registry) Snapshot(key string) (state.FieldSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshots[key]
	return s, ok
}

// Snapshots returns every stored snapshot ordered by key.
func (r *Registry) Snapshots() []state.FieldSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]state.FieldSnapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerKey < out[j].OwnerKey })
	return out
}

// ClearSnapshots drops all stored snapshots, keeping entries.
func (r *Registry) ClearSnapshots() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = make(map[string]state.FieldSnapshot)
}

// Info lists registered instances with their unit-qualified types, by key.
func (r *Registry) Info() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for k, inst := range r.entries {
		out = append(out, Info{
			Key:     k,
			Type:    inst.Type.QualifiedName(),
			ID:      inst.ID,
			Dynamic: inst.Type.Dynamic,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
