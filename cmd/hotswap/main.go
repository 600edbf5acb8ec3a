// Package main implements the hotswap CLI: a host process that compiles the
// units named in hotswap.yaml, keeps the configured objects alive across
// reloads and exercises their methods.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hotswap/internal/config"
	"hotswap/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	// Loaded by PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hotswap",
	Short: "hotswap - live code replacement for Go units",
	Long: `hotswap compiles Go source units at runtime, swaps them into a running
host and migrates the state of live objects onto the new type versions.

Units, tracked objects and the calls to run on them are listed in
hotswap.yaml. Start with 'hotswap init'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init writes the config; nothing to load yet
		if cmd.Name() == "init" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
			opts.DebugMode = true
		}
		if err := logging.Initialize(opts); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hotswap.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for one-shot commands")

	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Reload units when their files change")
	callCmd.Flags().StringVar(&callType, "type", "", "Type to create when the object is not configured")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of cycles to show")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Keep only the newest N cycles")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")

	historyCmd.AddCommand(historyShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM, and after d when d > 0.
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}
