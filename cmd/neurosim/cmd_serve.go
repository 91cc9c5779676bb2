package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/neurosim/internal/ratelimit"
	"github.com/nvandessel/neurosim/internal/recording"
	"github.com/nvandessel/neurosim/internal/topology"
	"github.com/nvandessel/neurosim/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the network in real time and serve the live view",
		Long: `Drive the network from the wall clock and serve the live page.

The page polls /api/snapshot and sends commands to /api/command. Commands
are rate limited per client; see server.command_rate in the config.
Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			pattern, _ := cmd.Flags().GetString("pattern")
			record, _ := cmd.Flags().GetBool("record")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("record") {
				cfg.Recording.Enabled = record
			}

			logger := newLogger(cmd, cfg)
			eng, transitions, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer transitions.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if cfg.Recording.Enabled {
				path, err := cfg.RecordingPath()
				if err != nil {
					return err
				}
				rec, err := recording.Open(path, cfg.Recording.SampleEvery)
				if err != nil {
					return fmt.Errorf("failed to open recording: %w", err)
				}
				defer rec.Close()
				runID, err := rec.BeginRun(ctx, string(eng.Regime()), eng.Seed(), eng.Labels())
				if err != nil {
					return err
				}
				eng.AddObserver(rec)
				logger.Info("recording run", "run_id", runID, "path", path)
				defer func() {
					// ctx is cancelled by now; the final update gets its own.
					endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer endCancel()
					if err := rec.EndRun(endCtx); err != nil {
						logger.Warn("failed to finish recording", "error", err)
					}
				}()
			}

			if pattern != "" {
				p, err := topology.ParsePattern(pattern)
				if err != nil {
					return err
				}
				if res := eng.SelectPattern(p); !res.Accepted {
					return fmt.Errorf("cannot start pattern %s: %s", p, res.Reason)
				}
			}

			srv := visualization.NewServer(eng, visualization.Options{
				Addr:     cfg.Server.Addr,
				Limiters: ratelimit.NewCommandLimiters(cfg.Server.CommandRate, cfg.Server.CommandBurst),
				Logger:   logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if !eng.Start(gctx) {
					return fmt.Errorf("engine already running")
				}
				<-eng.Done()
				return nil
			})
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			g.Go(func() error {
				url, err := waitForURL(gctx, srv, 3*time.Second)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "neurosim running at %s\n", url)
				fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
				if !noOpen {
					if err := visualization.OpenBrowser(url); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
					}
				}
				return nil
			})

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default server.addr, an OS-assigned localhost port)")
	cmd.Flags().Bool("no-open", false, "Don't open a browser")
	cmd.Flags().String("pattern", "", "Start training this pattern immediately")
	cmd.Flags().Bool("record", false, "Record the session to the SQLite log (overrides recording.enabled)")
	return cmd
}

// waitForURL polls until srv is listening. It returns ctx's error if the
// server stops first.
func waitForURL(ctx context.Context, srv *visualization.Server, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if url := srv.URL(); url != "" {
			return url, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("server failed to start")
}
