package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"hotswap/internal/config"
	"hotswap/internal/store"
)

var (
	historyLimit int
	historyPrune int
	initForce    bool
)

// historyCmd lists recorded reload cycles
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded reload cycles",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// historyShowCmd shows one cycle with its diagnostics
var historyShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show one cycle with its diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

// initCmd writes a starter config and unit
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter hotswap.yaml and example unit",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func openHistory() (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, fmt.Errorf("history store is disabled (store.enabled: false)")
	}
	return store.Open(cfg.Store.Path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if historyPrune > 0 {
		n, err := st.Prune(ctx, historyPrune)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d cycle(s)\n", n)
	}

	cycles, err := st.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderHistory(cycles))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderCycle(*c))
	return nil
}

const exampleUnit = `package game

import "hotswap/pkg/host"

type Mover struct {
	Name string
	Pos  host.Vector3
}

func NewMover() *Mover { return &Mover{Name: "mover"} }

func (m *Mover) Move(by host.Vector3) host.Vector3 {
	m.Pos = m.Pos.Add(by)
	return m.Pos
}
`

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	c := config.DefaultConfig()
	c.Units = []config.UnitConfig{{Path: "units/mover.go"}}
	c.Objects = []config.ObjectConfig{{
		Key:  "mover",
		Type: "Mover",
		Calls: []config.CallConfig{{
			Method: "Move",
			Params: []config.ParamConfig{{Name: "by", Kind: "vector3", Value: []float64{1, 0, 0}}},
		}},
	}}
	if err := c.Save(configPath); err != nil {
		return err
	}

	unitPath := filepath.Join(filepath.Dir(configPath), c.Units[0].Path)
	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(unitPath, []byte(exampleUnit), 0644); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, okStyle.Render("initialized"), configPath)
	fmt.Fprintln(out, mutedStyle.Render("next: hotswap run --watch"))
	return nil
}
