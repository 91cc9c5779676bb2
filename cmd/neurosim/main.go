package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/neurosim/internal/config"
	"github.com/nvandessel/neurosim/internal/constants"
	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neurosim",
		Short: "Spiking network training demo",
		Long: `neurosim simulates a small spiking neural network that learns an input
pattern through reinforcement, or loses it through connection degradation.

Run a scripted experiment headless, serve the live view in a browser, or
drive the network from an agent over MCP.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.neurosim/config.yaml)")
	rootCmd.PersistentFlags().String("regime", "", "Plasticity regime: reinforcement or degradation")
	rootCmd.PersistentFlags().String("seed", "", "Random seed (0 picks one from the clock)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newMCPCmd(),
		newGraphCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "neurosim version %s (commit: %s, built: %s)\n", version, commit, date)
			}
		},
	}
}

// loadConfig resolves configuration for a command: the --config file or the
// default locations, then environment, then global flags.
func loadConfig(cmd *cobra.Command) (*config.NeurosimConfig, error) {
	var (
		cfg *config.NeurosimConfig
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("regime"); v != "" {
		cfg.Simulation.Regime = v
	}
	if v, _ := cmd.Flags().GetString("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --seed %q: %w", v, err)
		}
		cfg.Simulation.Seed = seed
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the operational logger. Logs go to stderr so stdout
// stays clean for JSON output and the MCP stdio transport.
func newLogger(cmd *cobra.Command, cfg *config.NeurosimConfig) *slog.Logger {
	var w io.Writer = cmd.ErrOrStderr()
	return logging.NewLogger(cfg.Logging.Level, w)
}

// newEngine builds an engine from cfg. The transition log lives in the
// config directory and is only written at debug or trace level.
func newEngine(cfg *config.NeurosimConfig, logger *slog.Logger) (*engine.Engine, *logging.TransitionLogger, error) {
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}

	var transitions *logging.TransitionLogger
	if dir, err := config.Dir(); err == nil {
		transitions = logging.NewTransitionLogger(filepath.Join(dir, constants.LogDir), cfg.Logging.Level)
	}

	eng, err := engine.New(ecfg, logger, transitions)
	if err != nil {
		transitions.Close()
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, transitions, nil
}

// signalContext returns a context cancelled on the first shutdown signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		stopSignals(sigCh)
	}()
	return ctx, cancel
}
