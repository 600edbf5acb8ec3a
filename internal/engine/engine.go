// Package engine runs reload cycles: it compiles new source, registers the
// resulting types, migrates registered instances onto them and replaces
// components on host-owned objects.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"hotswap/internal/compiler"
	"hotswap/internal/logging"
	"hotswap/internal/registry"
	"hotswap/internal/resolver"
	"hotswap/internal/state"
	"hotswap/internal/store"
	"hotswap/internal/unit"
	"hotswap/pkg/host"
)

// Policy decides what a reload does while another cycle is running.
type Policy string

const (
	PolicyQueue  Policy = "queue"  // wait for the running cycle
	PolicyReject Policy = "reject" // fail with ErrReloadInProgress
)

// Recorder persists finished cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, c store.Cycle) error
}

// Options configures an Engine.
type Options struct {
	Policy    Policy
	Compiler  compiler.Options
	Scheduler host.Scheduler // defaults to host.Inline
	History   Recorder       // optional
}

type hostedObject struct {
	name      string
	container host.Container
	typeName  string
}

// Engine owns the type table and instance registry. Reload cycles are
// serialized; everything else is safe for concurrent use.
type Engine struct {
	opts     Options
	gate     *semaphore.Weighted
	resolver *resolver.Resolver
	compiler *compiler.Compiler
	table    *unit.Table
	registry *registry.Registry
	sched    host.Scheduler

	mu     sync.RWMutex
	hosted map[string]*hostedObject
}

// New creates an engine that compiles against res.
func New(res *resolver.Resolver, opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyQueue
	}
	if opts.Scheduler == nil {
		opts.Scheduler = host.Inline{}
	}
	return &Engine{
		opts:     opts,
		gate:     semaphore.NewWeighted(1),
		resolver: res,
		compiler: compiler.New(res, opts.Compiler),
		table:    unit.NewTable(),
		registry: registry.New(),
		sched:    opts.Scheduler,
		hosted:   make(map[string]*hostedObject),
	}
}

// Registry returns the instance registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Table returns the type table.
func (e *Engine) Table() *unit.Table { return e.table }

// Resolver returns the reference resolver.
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

// AddStatic makes compiled-in types resolvable by name.
func (e *Engine) AddStatic(u *unit.Unit) {
	e.table.Add(u)
	logging.Engine("registered static unit %s: %v", u.Name, u.TypeNames())
}

// Lookup resolves a type name to its current version.
func (e *Engine) Lookup(typeName string) (*unit.TypeDescriptor, bool) {
	return e.table.Resolve(typeName)
}

// TrackHosted registers a host-owned object whose component of typeName is
// replaced on reload. A unit-qualified typeName is tracked by its simple name,
// since components are matched by simple name and always move to the latest
// version.
func (e *Engine) TrackHosted(name string, c host.Container, typeName string) {
	if i := strings.LastIndex(typeName, "."); i >= 0 {
		typeName = typeName[i+1:]
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hosted[name] = &hostedObject{name: name, container: c, typeName: typeName}
}

// Untrack stops replacing components on a host-owned object.
func (e *Engine) Untrack(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.hosted, name)
}

func (e *Engine) hostedObjects() []*hostedObject {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*hostedObject, 0, len(e.hosted))
	for _, h := range e.hosted {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Check compiles sources without installing them.
func (e *Engine) Check(ctx context.Context, srcs ...compiler.Source) ([]*compiler.Result, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}
	return e.compiler.CompileAll(ctx, srcs)
}

// Reload runs one cycle over srcs.
func (e *Engine) Reload(ctx context.Context, srcs ...compiler.Source) (*Report, error) {
	return e.ReloadFrom(ctx, TriggerManual, srcs...)
}

// ReloadFrom runs one cycle and records trigger with it. A compile failure
// leaves the table, registry and host objects untouched.
func (e *Engine) ReloadFrom(ctx context.Context, trigger string, srcs ...compiler.Source) (*Report, error) {
	rep := &Report{ID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now()}
	if len(srcs) == 0 {
		return e.finish(ctx, rep, ErrNoSources)
	}
	if err := e.acquire(ctx); err != nil {
		return e.finish(ctx, rep, err)
	}
	defer e.gate.Release(1)

	logging.Engine("cycle %s started (%s, %d source(s))", shortID(rep.ID), trigger, len(srcs))

	captured, snapOK := e.snapshot(ctx, rep)
	defer e.registry.ClearSnapshots()

	results, err := e.compiler.CompileAll(ctx, srcs)
	rep.Results = results
	if err != nil {
		return e.finish(ctx, rep, err)
	}

	for _, res := range results {
		e.table.Add(res.Unit)
		rep.Units = append(rep.Units, res.Unit)
	}

	if snapOK {
		e.migrate(ctx, rep, captured)
	}
	e.replaceHosted(ctx, rep)

	return e.finish(ctx, rep, nil)
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.opts.Policy == PolicyReject {
		if !e.gate.TryAcquire(1) {
			return ErrReloadInProgress
		}
		return nil
	}
	return e.gate.Acquire(ctx, 1)
}

func (e *Engine) finish(ctx context.Context, rep *Report, err error) (*Report, error) {
	rep.Err = err
	rep.FinishedAt = time.Now()
	if err != nil {
		logging.Get(logging.CategoryEngine).Warn("%s", rep.Summary())
	} else {
		logging.Engine("%s", rep.Summary())
	}
	if e.opts.History != nil {
		if herr := e.opts.History.RecordCycle(context.WithoutCancel(ctx), rep.Cycle()); herr != nil {
			logging.Get(logging.CategoryStore).Error("failed to record cycle %s: %v", shortID(rep.ID), herr)
		}
	}
	return rep, err
}

// snapshot captures every registered instance on the host goroutine. On
// failure no instance is migrated in this cycle.
func (e *Engine) snapshot(ctx context.Context, rep *Report) (map[string]*unit.Instance, bool) {
	captured := make(map[string]*unit.Instance)
	var warnings []error
	err := e.sched.Do(ctx, func() {
		for _, key := range e.registry.Keys() {
			inst, ok := e.registry.Get(key)
			if !ok {
				continue
			}
			snap, fieldWarnings := state.Capture(key, inst)
			for _, w := range fieldWarnings {
				warnings = append(warnings, w)
			}
			e.registry.StoreSnapshot(snap)
			captured[key] = inst
		}
	})
	rep.Warnings = append(rep.Warnings, warnings...)
	if err != nil {
		e.registry.ClearSnapshots()
		logging.MigrationWarn("snapshot failed, skipping migration this cycle: %v", err)
		rep.warn(fmt.Errorf("snapshot failed, migration skipped: %w", err))
		return nil, false
	}
	logging.Get(logging.CategoryMigration).Debug("captured %d instance(s)", len(captured))
	return captured, true
}

// latestIn finds typeName among units; the last unit of the batch wins.
func latestIn(units []*unit.Unit, typeName string) *unit.TypeDescriptor {
	var found *unit.TypeDescriptor
	for _, u := range units {
		if t, ok := u.Lookup(typeName); ok {
			found = t
		}
	}
	return found
}

// migrate moves every snapshotted instance onto its type in the new units.
func (e *Engine) migrate(ctx context.Context, rep *Report, captured map[string]*unit.Instance) {
	for _, snap := range e.registry.Snapshots() {
		stale := func(detail string) {
			rep.Stale++
			w := &TypeResolutionWarning{Key: snap.OwnerKey, TypeName: snap.TypeName, Detail: detail}
			rep.warn(w)
			logging.MigrationWarn("%v", w)
		}

		newType := latestIn(rep.Units, snap.TypeName)
		if newType == nil {
			stale("no matching type in reloaded units")
			continue
		}

		inst, res, err := state.Migrate(snap, newType)
		if err != nil {
			stale(fmt.Sprintf("construct %s: %v", newType, err))
			continue
		}

		var swapped bool
		if err := e.sched.Do(ctx, func() {
			swapped = e.registry.Swap(snap.OwnerKey, captured[snap.OwnerKey], inst)
		}); err != nil {
			stale(fmt.Sprintf("swap: %v", err))
			continue
		}
		if !swapped {
			stale("instance changed during reload")
			continue
		}

		for _, w := range res.Warnings {
			rep.warn(w)
			logging.MigrationWarn("%v", w)
		}
		rep.Migrated++
		logging.Migration("%s migrated to %s (%d field(s) restored)", snap.OwnerKey, newType, res.Restored)
	}
}

// replaceHosted swaps each tracked object's component onto the latest
// version of its type.
func (e *Engine) replaceHosted(ctx context.Context, rep *Report) {
	for _, h := range e.hostedObjects() {
		newType, ok := e.table.Resolve(h.typeName)
		if !ok {
			w := &ReplacementWarning{Object: h.name, TypeName: h.typeName, Detail: "type not found"}
			rep.warn(w)
			logging.Get(logging.CategoryHost).Warn("%v", w)
			continue
		}

		var (
			replaced bool
			warnings []error
		)
		if err := e.sched.Do(ctx, func() {
			replaced, warnings = replaceComponent(h, newType)
		}); err != nil {
			warnings = append(warnings, &ReplacementWarning{Object: h.name, TypeName: h.typeName, Detail: err.Error()})
		}
		for _, w := range warnings {
			rep.warn(w)
			logging.Get(logging.CategoryHost).Warn("%v", w)
		}
		if replaced {
			rep.Replaced++
			logging.Host("%s: component %s replaced by %s", h.name, h.typeName, newType)
		}
	}
}

// replaceComponent runs on the host goroutine.
func replaceComponent(h *hostedObject, newType *unit.TypeDescriptor) (bool, []error) {
	old, ok := host.FindComponent(h.container, h.typeName)
	if !ok {
		return false, []error{&ReplacementWarning{Object: h.name, TypeName: h.typeName, Detail: "component not found on " + h.container.ID()}}
	}
	if old.Type == newType {
		return false, nil
	}

	var warnings []error
	snap, fieldWarnings := state.Capture(h.name, old)
	for _, w := range fieldWarnings {
		warnings = append(warnings, w)
	}

	if err := h.container.Detach(old); err != nil {
		return false, append(warnings, &ReplacementWarning{Object: h.name, TypeName: h.typeName, Detail: fmt.Sprintf("detach: %v", err)})
	}

	inst, err := h.container.Attach(newType)
	if err != nil {
		w := &ReplacementWarning{Object: h.name, TypeName: h.typeName, Detail: fmt.Sprintf("attach %s: %v", newType, err)}
		if back, rerr := h.container.Attach(old.Type); rerr == nil {
			state.Restore(snap, back)
			w.RolledBack = true
		}
		return false, append(warnings, w)
	}

	res := state.Restore(snap, inst)
	for _, fw := range res.Warnings {
		warnings = append(warnings, fw)
	}
	return true, warnings
}
