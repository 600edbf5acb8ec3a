// Package session drives a configured hotswap project: it compiles the
// configured units, sets up tracked objects, runs their calls after each
// reload and, when asked, reloads on file changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"hotswap/internal/compiler"
	"hotswap/internal/config"
	"hotswap/internal/engine"
	"hotswap/internal/invoke"
	"hotswap/internal/logging"
	"hotswap/internal/resolver"
	"hotswap/internal/store"
	"hotswap/internal/watch"
	"hotswap/pkg/host"
)

// CallOutcome is the result of one configured call.
type CallOutcome struct {
	Object string
	Call   string
	Values []interface{}
	Err    error
}

// Session owns the engine and the host objects of one project.
type Session struct {
	cfg     *config.Config
	engine  *engine.Engine
	loop    *host.Loop
	scene   *host.Scene
	history *store.Store

	mu      sync.Mutex
	tracked map[string]bool
}

// New builds a session from cfg. The history store is opened when enabled.
func New(cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		loop:    host.NewLoop(),
		scene:   host.NewScene(),
		tracked: make(map[string]bool),
	}

	opts := engine.Options{
		Policy: engine.Policy(cfg.Reload.Policy),
		Compiler: compiler.Options{
			WarningsAsErrors: cfg.Compiler.WarningsAsErrors,
			Timeout:          cfg.GetCompileTimeout(),
			Parallelism:      cfg.Compiler.Parallelism,
		},
		Scheduler: s.loop,
	}
	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			s.loop.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		s.history = st
		opts.History = st
	}

	s.engine = engine.New(resolver.New(cfg.Compiler.AllowedPackages), opts)
	logging.Boot("session %s ready: %d unit(s), %d object(s)", cfg.Name, len(cfg.Units), len(cfg.Objects))
	return s, nil
}

// Engine returns the session's engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Scene returns the containers of host-owned objects.
func (s *Session) Scene() *host.Scene { return s.scene }

// History returns the history store, nil when disabled.
func (s *Session) History() *store.Store { return s.history }

// Close stops the host loop and closes the history store.
func (s *Session) Close() error {
	s.loop.Close()
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// Sources loads the configured units. With paths given, only units at those
// paths are loaded.
func (s *Session) Sources(paths ...string) ([]compiler.Source, error) {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			want[abs] = true
		}
	}

	var srcs []compiler.Source
	for _, u := range s.cfg.Units {
		if len(want) > 0 {
			abs, err := filepath.Abs(u.Path)
			if err != nil || !want[abs] {
				continue
			}
		}
		src, err := compiler.LoadFile(u.Path)
		if err != nil {
			return nil, err
		}
		src.Name = u.UnitName()
		srcs = append(srcs, src)
	}
	return srcs, nil
}

// Reload compiles the configured units (or those at paths) in one cycle and
// attaches any host-owned objects that are not yet set up.
func (s *Session) Reload(ctx context.Context, trigger string, paths ...string) (*engine.Report, error) {
	srcs, err := s.Sources(paths...)
	if err != nil {
		return nil, err
	}
	rep, err := s.engine.ReloadFrom(ctx, trigger, srcs...)
	if err != nil {
		return rep, err
	}
	if err := s.setupHosted(ctx); err != nil {
		logging.Get(logging.CategoryHost).Warn("host setup incomplete: %v", err)
		rep.Warnings = append(rep.Warnings, err)
	}
	return rep, nil
}

// setupHosted attaches a component for each host-owned object whose type is
// now resolvable and starts tracking it.
func (s *Session) setupHosted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, obj := range s.cfg.Objects {
		if !obj.IsHostOwned() || s.tracked[obj.ObjectKey()] {
			continue
		}
		typ, ok := s.engine.Lookup(obj.Type)
		if !ok {
			errs = append(errs, fmt.Errorf("object %s: type %s not found", obj.ObjectKey(), obj.Type))
			continue
		}
		node := s.scene.Node(obj.Container)
		var attachErr error
		if err := s.loop.Do(ctx, func() {
			if _, found := host.FindComponent(node, typ.Name); !found {
				_, attachErr = node.Attach(typ)
			}
		}); err != nil {
			attachErr = err
		}
		if attachErr != nil {
			errs = append(errs, fmt.Errorf("object %s: %w", obj.ObjectKey(), attachErr))
			continue
		}
		s.engine.TrackHosted(obj.ObjectKey(), node, typ.Name)
		s.tracked[obj.ObjectKey()] = true
		logging.Host("tracking %s: %s on %s", obj.ObjectKey(), obj.Type, obj.Container)
	}
	return errors.Join(errs...)
}

// RunCalls executes every configured call in order. Failures are reported
// per call and do not stop the run.
func (s *Session) RunCalls(ctx context.Context) []CallOutcome {
	var out []CallOutcome
	for _, obj := range s.cfg.Objects {
		for _, c := range obj.Calls {
			req, err := Request(c)
			if err != nil {
				out = append(out, CallOutcome{Object: obj.ObjectKey(), Call: c.Method, Err: err})
				continue
			}
			out = append(out, s.call(ctx, obj, req))
		}
	}
	return out
}

// Call invokes req on the object under key. A key that is not configured is
// treated as a managed instance, created from typeName when not registered.
func (s *Session) Call(ctx context.Context, key, typeName string, req invoke.Request) CallOutcome {
	for _, obj := range s.cfg.Objects {
		if obj.ObjectKey() == key {
			return s.call(ctx, obj, req)
		}
	}
	return s.call(ctx, config.ObjectConfig{Key: key, Type: typeName}, req)
}

func (s *Session) call(ctx context.Context, obj config.ObjectConfig, req invoke.Request) CallOutcome {
	oc := CallOutcome{Object: obj.ObjectKey(), Call: req.String()}
	var (
		res *invoke.Result
		err error
	)
	if obj.IsHostOwned() {
		res, err = s.engine.InvokeHosted(ctx, obj.ObjectKey(), req)
	} else {
		res, err = s.engine.Invoke(ctx, obj.ObjectKey(), obj.Type, req)
	}
	if res != nil {
		oc.Values = res.Values
	}
	oc.Err = err
	return oc
}

// Request converts a configured call.
func Request(c config.CallConfig) (invoke.Request, error) {
	req := invoke.Request{Method: c.Method}
	for _, p := range c.Params {
		k, err := invoke.ParseKind(p.Kind)
		if err != nil {
			return invoke.Request{}, fmt.Errorf("call %s: %w", c.Method, err)
		}
		req.Params = append(req.Params, invoke.Param{Name: p.Name, Kind: k, Value: p.Value})
	}
	return req, nil
}

// ReportFunc receives the outcome of a watch-triggered cycle.
type ReportFunc func(rep *engine.Report, err error, calls []CallOutcome)

// Watch reloads changed units until ctx is done. After each successful
// cycle the configured calls run again.
func (s *Session) Watch(ctx context.Context, onReport ReportFunc) error {
	paths := make([]string, 0, len(s.cfg.Units))
	for _, u := range s.cfg.Units {
		paths = append(paths, u.Path)
	}

	w, err := watch.New(paths, s.cfg.GetDebounce(), func(ctx context.Context, changed []string) {
		rep, err := s.Reload(ctx, engine.TriggerWatch, changed...)
		var calls []CallOutcome
		if err == nil {
			calls = s.RunCalls(ctx)
		}
		if onReport != nil {
			onReport(rep, err, calls)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}
