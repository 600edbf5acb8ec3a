package engine

import (
	"context"
	"fmt"

	"hotswap/internal/invoke"
	"hotswap/internal/registry"
	"hotswap/internal/unit"
	"hotswap/pkg/host"
)

// Invoke calls a method on the instance registered under key. When key is
// not registered and typeName is given, an instance of the current version of
// typeName is created and registered first.
func (e *Engine) Invoke(ctx context.Context, key, typeName string, req invoke.Request) (*invoke.Result, error) {
	var (
		res  *invoke.Result
		ierr error
	)
	err := e.sched.Do(ctx, func() {
		inst, ok := e.registry.Get(key)
		if !ok {
			if typeName == "" {
				ierr = fmt.Errorf("%s: %w", key, registry.ErrNilInstance)
				return
			}
			var err error
			if inst, err = e.registry.CreateAndRegister(key, typeName, e.table.Resolve); err != nil {
				ierr = err
				return
			}
		}
		res, ierr = invoke.Invoke(inst, req)
	})
	if err != nil {
		return nil, err
	}
	return res, ierr
}

// InvokeHosted calls a method on the tracked component of a host-owned object.
func (e *Engine) InvokeHosted(ctx context.Context, name string, req invoke.Request) (*invoke.Result, error) {
	e.mu.RLock()
	h, ok := e.hosted[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotTracked)
	}

	var (
		res  *invoke.Result
		ierr error
	)
	err := e.sched.Do(ctx, func() {
		comp, ok := host.FindComponent(h.container, h.typeName)
		if !ok {
			ierr = fmt.Errorf("%s on %s: %w", h.typeName, h.container.ID(), host.ErrComponentNotFound)
			return
		}
		res, ierr = invoke.Invoke(comp, req)
	})
	if err != nil {
		return nil, err
	}
	return res, ierr
}

// Component returns the current component of a tracked host-owned object.
// The lookup runs on the host scheduler.
func (e *Engine) Component(ctx context.Context, name string) (*unit.Instance, bool) {
	e.mu.RLock()
	h, ok := e.hosted[name]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var (
		comp  *unit.Instance
		found bool
	)
	if err := e.sched.Do(ctx, func() {
		comp, found = host.FindComponent(h.container, h.typeName)
	}); err != nil {
		return nil, false
	}
	return comp, found
}
