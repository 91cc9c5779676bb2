package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/neurosim/internal/config"
	"github.com/nvandessel/neurosim/internal/mcp"
	"github.com/nvandessel/neurosim/internal/pathutil"
	"github.com/nvandessel/neurosim/internal/ratelimit"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the network to an agent over MCP (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing the engine as tools.

By default the network only moves when the agent calls neurosim_advance.
With --realtime the engine runs from the wall clock and neurosim_advance is
disabled.

Tool calls are recorded to ~/.neurosim/audit.jsonl. neurosim_export writes
Arrow files under ~/.neurosim/exports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			realtime, _ := cmd.Flags().GetBool("realtime")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			eng, transitions, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer transitions.Close()

			auditDir, err := config.Dir()
			if err != nil {
				logger.Warn("audit log disabled", "error", err)
				auditDir = ""
			}

			exportRoot, err := pathutil.ExportRoot()
			if err != nil {
				logger.Warn("export tool disabled", "error", err)
				exportRoot = ""
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:       "neurosim",
				Version:    version,
				Engine:     eng,
				Limiters:   ratelimit.NewCommandLimiters(cfg.Server.CommandRate, cfg.Server.CommandBurst),
				AuditDir:   auditDir,
				Realtime:   realtime,
				ExportRoot: exportRoot,
				Logger:     logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger.Info("mcp server starting", "regime", eng.Regime(), "seed", eng.Seed(), "realtime", realtime)

			g, gctx := errgroup.WithContext(ctx)
			if realtime {
				g.Go(func() error {
					eng.Start(gctx)
					<-eng.Done()
					return nil
				})
			}
			g.Go(func() error {
				err := server.Run(gctx)
				// The client closing stdin ends the session; stop the engine too.
				cancel()
				return err
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("realtime", false, "Drive the engine from the wall clock")
	return cmd
}
