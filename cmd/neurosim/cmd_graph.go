package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/topology"
	"github.com/nvandessel/neurosim/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the network",
		Long: `Output the network in DOT (Graphviz), JSON, or static HTML format.

With --train the network first trains for that much virtual time, so edge
widths show learned strengths.

Examples:
  neurosim graph | dot -Tsvg > net.svg
  neurosim graph --train 15s --pattern B --format json
  neurosim graph --regime degradation --train 30s --format html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			train, _ := cmd.Flags().GetDuration("train")
			pattern, _ := cmd.Flags().GetString("pattern")

			f, err := visualization.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, transitions, err := newEngine(cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer transitions.Close()

			snap, err := trainedSnapshot(eng, pattern, train)
			if err != nil {
				return err
			}

			switch f {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(snap))

			case visualization.FormatJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(visualization.RenderJSON(snap)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}

			case visualization.FormatHTML:
				html, err := visualization.RenderHTML(snap, "")
				if err != nil {
					return fmt.Errorf("render HTML: %w", err)
				}
				outPath := output
				if outPath == "" {
					outPath = filepath.Join(os.TempDir(), "neurosim-graph.html")
				}
				if err := os.WriteFile(outPath, html, 0644); err != nil {
					return fmt.Errorf("write HTML file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

				if !noOpen {
					if err := visualization.OpenBrowser(outPath); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Duration("train", 0, "Virtual time to train before rendering")
	cmd.Flags().String("pattern", "A", "Pattern to train with --train")
	return cmd
}

// trainedSnapshot trains eng on pattern for d of virtual time and returns
// the resulting snapshot. A zero d renders the untrained network.
func trainedSnapshot(eng *engine.Engine, pattern string, d time.Duration) (engine.Snapshot, error) {
	if d <= 0 {
		return eng.Snapshot(), nil
	}
	p, err := topology.ParsePattern(pattern)
	if err != nil {
		return engine.Snapshot{}, err
	}
	if res := eng.SelectPattern(p); !res.Accepted {
		return engine.Snapshot{}, fmt.Errorf("cannot train pattern %s: %s", pattern, res.Reason)
	}
	eng.Advance(d)
	return eng.Snapshot(), nil
}
