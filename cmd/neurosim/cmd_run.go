package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/neurosim/internal/config"
	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/export"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/pathutil"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/recording"
	"github.com/nvandessel/neurosim/internal/topology"
)

// scriptAction is one scheduled command of a headless run.
type scriptAction struct {
	At      time.Duration
	Command mode.Command
	Pattern topology.PatternID
}

// parseAction parses "<time>=<command>", where command is select:<pattern>,
// a bare pattern name, analyze, exit_analyze or reset.
// Examples: "0s=A", "12s=select:B", "20s=analyze".
func parseAction(s string) (scriptAction, error) {
	at, rest, ok := strings.Cut(s, "=")
	if !ok {
		return scriptAction{}, fmt.Errorf("action %q: want <time>=<command>", s)
	}
	d, err := time.ParseDuration(strings.TrimSpace(at))
	if err != nil {
		return scriptAction{}, fmt.Errorf("action %q: %w", s, err)
	}
	if d < 0 {
		return scriptAction{}, fmt.Errorf("action %q: negative time", s)
	}

	rest = strings.TrimSpace(rest)
	name, arg, hasArg := strings.Cut(rest, ":")
	if p, perr := topology.ParsePattern(rest); perr == nil && rest != "" {
		return scriptAction{At: d, Command: mode.CommandSelectPattern, Pattern: p}, nil
	}

	cmd, err := mode.ParseCommand(name)
	if err != nil {
		if strings.EqualFold(name, "select") {
			cmd = mode.CommandSelectPattern
		} else {
			return scriptAction{}, fmt.Errorf("action %q: %w", s, err)
		}
	}
	a := scriptAction{At: d, Command: cmd}
	if cmd == mode.CommandSelectPattern {
		if !hasArg {
			return scriptAction{}, fmt.Errorf("action %q: select needs a pattern", s)
		}
		if a.Pattern, err = topology.ParsePattern(arg); err != nil {
			return scriptAction{}, fmt.Errorf("action %q: %w", s, err)
		}
	} else if hasArg {
		return scriptAction{}, fmt.Errorf("action %q: %s takes no argument", s, cmd)
	}
	return a, nil
}

// spikeCounter tallies spikes per neuron for the run summary.
type spikeCounter struct {
	counts []int64
	output []float64
	outIdx int
}

func (c *spikeCounter) ObserveStep(rep engine.StepReport) {
	for _, ev := range rep.Spikes {
		if int(ev.Neuron) < len(c.counts) {
			c.counts[ev.Neuron]++
		}
		if int(ev.Neuron) == c.outIdx {
			c.output = append(c.output, ev.Time)
		}
	}
}

func (c *spikeCounter) ObserveTransition(mode.Result, float64) {}

func (c *spikeCounter) total() int64 {
	var n int64
	for _, v := range c.counts {
		n += v
	}
	return n
}

// runReport is the JSON form of a headless run.
type runReport struct {
	RunID         string             `json:"run_id,omitempty"`
	Regime        string             `json:"regime"`
	Seed          uint64             `json:"seed"`
	Duration      string             `json:"duration"`
	Steps         int64              `json:"steps"`
	WallMs        int64              `json:"wall_ms"`
	Mode          string             `json:"mode"`
	GateOpen      bool               `json:"gate_open"`
	TotalSpikes   int64              `json:"total_spikes"`
	SpikesByLabel map[string]int64   `json:"spikes_by_label"`
	OutputSpikes  []float64          `json:"output_spikes"`
	TotalStrength float64            `json:"total_strength"`
	Commands      []mode.Result      `json:"commands"`
	Recording     *recording.Summary `json:"recording,omitempty"`
	RecordingPath string             `json:"recording_path,omitempty"`
	Exported      map[string]string  `json:"exported,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scripted experiment in virtual time",
		Long: `Run the network headless for a fixed amount of simulated time.

Actions are <time>=<command> pairs applied when the virtual clock reaches
<time>. A bare pattern name selects that pattern.

Examples:
  neurosim run --duration 30s                       # train A for 30s
  neurosim run --at 0s=A --at 16s=B --at 25s=analyze
  neurosim run --regime degradation --duration 60s --record
  neurosim run --export ./out                       # write Arrow traces`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			duration, _ := cmd.Flags().GetDuration("duration")
			pattern, _ := cmd.Flags().GetString("pattern")
			rawActions, _ := cmd.Flags().GetStringArray("at")
			record, _ := cmd.Flags().GetBool("record")
			exportDir, _ := cmd.Flags().GetString("export")

			if duration <= 0 {
				return fmt.Errorf("--duration must be positive")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("record") {
				cfg.Recording.Enabled = record
			}

			actions, err := buildScript(cfg, pattern, rawActions)
			if err != nil {
				return err
			}
			if exportDir, err = pathutil.ExpandHome(exportDir); err != nil {
				return err
			}

			return runHeadless(cmd.Context(), cmd.OutOrStdout(), cmd, cfg, duration, actions, exportDir, jsonOut)
		},
	}

	cmd.Flags().Duration("duration", 20*time.Second, "Simulated time to run")
	cmd.Flags().String("pattern", "", "Pattern selected at 0s (default A, or none in the degradation regime)")
	cmd.Flags().StringArray("at", nil, "Scheduled action <time>=<command> (repeatable)")
	cmd.Flags().Bool("record", false, "Record the run to the SQLite log (overrides recording.enabled)")
	cmd.Flags().String("export", "", "Directory to write Arrow trace and spike files")
	return cmd
}

// buildScript returns the sorted actions. Without an explicit action at 0s,
// the initial pattern is selected at 0s.
func buildScript(cfg *config.NeurosimConfig, pattern string, raw []string) ([]scriptAction, error) {
	actions := make([]scriptAction, 0, len(raw)+1)
	for _, s := range raw {
		a, err := parseAction(s)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	hasStart := false
	for _, a := range actions {
		if a.At == 0 && a.Command == mode.CommandSelectPattern {
			hasStart = true
		}
	}
	if !hasStart {
		initial := topology.PatternA
		if regime, _ := plasticity.ParseRegime(cfg.Simulation.Regime); regime == plasticity.RegimeDegradation {
			initial = topology.PatternNone
		}
		if pattern != "" {
			p, err := topology.ParsePattern(pattern)
			if err != nil {
				return nil, err
			}
			initial = p
		}
		actions = append(actions, scriptAction{Command: mode.CommandSelectPattern, Pattern: initial})
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At < actions[j].At })
	return actions, nil
}

func runHeadless(ctx context.Context, out io.Writer, cmd *cobra.Command, cfg *config.NeurosimConfig, duration time.Duration, actions []scriptAction, exportDir string, jsonOut bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cmd, cfg)

	eng, transitions, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer transitions.Close()

	labels := eng.Labels()
	counter := &spikeCounter{counts: make([]int64, len(labels)), outIdx: -1}
	for i, l := range labels {
		if l == "Out" {
			counter.outIdx = i
		}
	}
	eng.AddObserver(counter)

	report := runReport{
		Regime:        string(eng.Regime()),
		Seed:          eng.Seed(),
		Duration:      duration.String(),
		SpikesByLabel: make(map[string]int64, len(labels)),
		OutputSpikes:  []float64{},
	}

	var rec *recording.Recorder
	if cfg.Recording.Enabled {
		path, err := cfg.RecordingPath()
		if err != nil {
			return err
		}
		rec, err = recording.Open(path, cfg.Recording.SampleEvery)
		if err != nil {
			return fmt.Errorf("failed to open recording: %w", err)
		}
		defer rec.Close()
		report.RunID, err = rec.BeginRun(ctx, report.Regime, report.Seed, labels)
		if err != nil {
			return err
		}
		report.RecordingPath = path
		eng.AddObserver(rec)
	}

	start := time.Now()
	var now time.Duration
	for {
		for len(actions) > 0 && actions[0].At <= now {
			a := actions[0]
			actions = actions[1:]
			res := eng.Do(a.Command, a.Pattern)
			report.Commands = append(report.Commands, res)
		}
		if now >= duration {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Advance in one-second slices so cancellation stays responsive.
		target := min(now+time.Second, duration)
		if len(actions) > 0 && actions[0].At < target {
			target = actions[0].At
		}
		eng.Advance(target - now)
		now = target
	}
	report.WallMs = time.Since(start).Milliseconds()

	snap := eng.Snapshot()
	report.Steps = snap.Steps
	report.Mode = snap.ModeLabel
	report.GateOpen = snap.GateOpen
	report.TotalStrength = snap.TotalStrength
	report.TotalSpikes = counter.total()
	report.OutputSpikes = append(report.OutputSpikes, counter.output...)
	for i, l := range labels {
		report.SpikesByLabel[l] = counter.counts[i]
	}

	if rec != nil {
		if err := rec.EndRun(ctx); err != nil {
			return fmt.Errorf("failed to finish recording: %w", err)
		}
		sum, err := rec.Summarize(ctx, report.RunID)
		if err != nil {
			return err
		}
		report.Recording = &sum
	}

	if exportDir != "" {
		tracesPath, spikesPath, err := export.WriteDir(exportDir, eng)
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}
		report.Exported = map[string]string{"traces": tracesPath, "spikes": spikesPath}
	}

	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printRunReport(out, report)
	return nil
}

func printRunReport(w io.Writer, r runReport) {
	if r.RunID != "" {
		fmt.Fprintf(w, "Run %s (%s, seed %d)\n", r.RunID, r.Regime, r.Seed)
	} else {
		fmt.Fprintf(w, "Run (%s, seed %d)\n", r.Regime, r.Seed)
	}
	fmt.Fprintf(w, "  Simulated %s in %s steps (took %s)\n",
		r.Duration, humanize.Comma(r.Steps), (time.Duration(r.WallMs) * time.Millisecond).String())

	gate := "open"
	if !r.GateOpen {
		gate = "closed"
	}
	fmt.Fprintf(w, "  Final mode: %s, gate %s\n", r.Mode, gate)

	for _, res := range r.Commands {
		if res.Accepted {
			fmt.Fprintf(w, "  %-14s %s -> %s\n", res.Command, res.From, res.To)
		} else {
			fmt.Fprintf(w, "  %-14s rejected: %s\n", res.Command, res.Reason)
		}
	}

	fmt.Fprintf(w, "  Spikes: %s total\n", humanize.Comma(r.TotalSpikes))
	if len(r.OutputSpikes) == 0 {
		fmt.Fprintf(w, "  Output: silent\n")
	} else {
		times := make([]string, len(r.OutputSpikes))
		for i, t := range r.OutputSpikes {
			times[i] = fmt.Sprintf("%.2fs", t)
		}
		fmt.Fprintf(w, "  Output: %d spike(s) at %s\n", len(r.OutputSpikes), strings.Join(times, ", "))
	}
	fmt.Fprintf(w, "  Total strength: %.3f\n", r.TotalStrength)

	if r.Recording != nil {
		size := ""
		if info, err := os.Stat(r.RecordingPath); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Fprintf(w, "  Recorded to %s%s: %s spikes, %s samples, %d transitions\n",
			r.RecordingPath, size,
			humanize.Comma(r.Recording.Spikes), humanize.Comma(r.Recording.Samples), r.Recording.Transitions)
	}
	if r.Exported != nil {
		fmt.Fprintf(w, "  Exported %s and %s\n", r.Exported["traces"], r.Exported["spikes"])
	}
}
