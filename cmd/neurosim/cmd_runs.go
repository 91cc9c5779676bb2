package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/neurosim/internal/recording"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or summarize one",
		Long: `Read the SQLite run log written by 'run --record' and 'serve --record'.

Without arguments, lists runs newest first. With a run ID, prints what the
run recorded and, with --spikes, the spike times of one neuron.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			label, _ := cmd.Flags().GetString("spikes")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cfg.RecordingPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return fmt.Errorf("no recording at %s (run with --record first)", path)
			}

			rec, err := recording.Open(path, cfg.Recording.SampleEvery)
			if err != nil {
				return fmt.Errorf("failed to open recording: %w", err)
			}
			defer rec.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := rec.Runs(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]any{"runs": runs, "count": len(runs)})
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return nil
				}
				for _, r := range runs {
					status := "running"
					if r.EndedAt != nil {
						status = "took " + r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
					}
					fmt.Fprintf(out, "%s  %-13s seed=%-20d %8s steps  %s (%s)\n",
						r.ID, r.Regime, r.Seed, humanize.Comma(r.Steps), humanize.Time(r.StartedAt), status)
				}
				return nil
			}

			runID := args[0]
			sum, err := rec.Summarize(ctx, runID)
			if err != nil {
				return err
			}

			var times []float64
			if label != "" {
				if times, err = rec.SpikeTimes(ctx, runID, label); err != nil {
					return err
				}
			}

			if jsonOut {
				result := map[string]any{"summary": sum}
				if label != "" {
					result["label"] = label
					result["spike_times"] = times
				}
				return json.NewEncoder(out).Encode(result)
			}

			fmt.Fprintf(out, "Run %s\n", sum.RunID)
			fmt.Fprintf(out, "  Steps:       %s\n", humanize.Comma(sum.Steps))
			fmt.Fprintf(out, "  Spikes:      %s\n", humanize.Comma(sum.Spikes))
			fmt.Fprintf(out, "  Samples:     %s\n", humanize.Comma(sum.Samples))
			fmt.Fprintf(out, "  Transitions: %d (%d rejected)\n", sum.Transitions, sum.Rejected)
			if label != "" {
				fmt.Fprintf(out, "  %s spikes:  %d\n", label, len(times))
				for _, t := range times {
					fmt.Fprintf(out, "    %.3fs\n", t)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("spikes", "", "Print spike times for this neuron label (e.g. Out, H3)")
	return cmd
}
