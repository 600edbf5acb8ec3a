package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hotswap/internal/engine"
	"hotswap/internal/invoke"
	"hotswap/internal/logging"
	"hotswap/internal/session"
)

var (
	watchFlag bool
	callType  string
)

// runCmd compiles the configured units and runs the configured calls
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compile units, set up objects and run their calls",
	Long: `Compiles every unit in one reload cycle, creates or attaches the configured
objects and runs their calls in order.

With --watch the process stays up: saving a unit starts a new cycle for the
changed files, live objects are migrated to the new types and the calls run
again.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

// checkCmd compiles without installing anything
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile units and report diagnostics without reloading",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

// callCmd runs one reload cycle and a single ad hoc call
var callCmd = &cobra.Command{
	Use:   "call <object> <method> [name:kind=value ...]",
	Short: "Reload units and call one method on an object",
	Long: `Compiles the configured units, sets up the configured objects and calls one
method. Parameters are written name:kind=value (the name is optional) with
kind one of string, int, float, bool, vector3. Vector values are x,y,z.

Example:
  hotswap call mover Move by:vector3=1,0,0
  hotswap call extra Heal int=10 --type Player`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCall,
}

func runSession(cmd *cobra.Command, args []string) error {
	if watchFlag {
		cfg.Watch.Enabled = true
	}
	d := timeout
	if cfg.Watch.Enabled {
		d = 0
	}
	ctx, cancel := signalContext(d)
	defer cancel()

	s, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	rep, err := s.Reload(ctx, engine.TriggerRun)
	if rep != nil {
		fmt.Fprint(out, renderReport(rep))
	}
	if err != nil {
		return err
	}
	fmt.Fprint(out, renderCalls(s.RunCalls(ctx)))

	if !cfg.Watch.Enabled {
		return nil
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("watching %d unit(s), ctrl-c to stop", len(cfg.Units))))
	err = s.Watch(ctx, func(rep *engine.Report, err error, calls []session.CallOutcome) {
		if rep != nil {
			fmt.Fprint(out, renderReport(rep))
		} else if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
		fmt.Fprint(out, renderCalls(calls))
	})
	logging.Boot("watch stopped")
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(timeout)
	defer cancel()

	checkCfg := *cfg
	checkCfg.Store.Enabled = false
	s, err := session.New(&checkCfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srcs, err := s.Sources()
	if err != nil {
		return err
	}
	results, err := s.Engine().Check(ctx, srcs...)
	fmt.Fprint(cmd.OutOrStdout(), renderDiagnostics(results))
	if err != nil {
		return fmt.Errorf("check failed")
	}
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	req := invoke.Request{Method: args[1]}
	for _, a := range args[2:] {
		p, err := invoke.ParseParam(a)
		if err != nil {
			return err
		}
		req.Params = append(req.Params, p)
	}

	ctx, cancel := signalContext(timeout)
	defer cancel()

	s, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	rep, err := s.Reload(ctx, engine.TriggerManual)
	if err != nil {
		if rep != nil {
			fmt.Fprint(out, renderReport(rep))
		}
		return err
	}

	oc := s.Call(ctx, args[0], callType, req)
	fmt.Fprint(out, renderCalls([]session.CallOutcome{oc}))
	return oc.Err
}
