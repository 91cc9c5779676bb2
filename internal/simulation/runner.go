package simulation

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/recording"
)

// Runner executes scenarios against a real engine and SQLite recording.
type Runner struct {
	t        *testing.T
	recorder *recording.Recorder
}

// NewRunner creates a runner with an isolated recording database and a
// sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	rec, err := recording.Open(filepath.Join(tmpDir, "neurosim.db"), 10)
	if err != nil {
		t.Fatalf("NewRunner: failed to open recording: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	return &Runner{t: t, recorder: rec}
}

// stepCollector keeps every step report for assertions.
type stepCollector struct {
	steps []engine.StepReport
}

func (c *stepCollector) ObserveStep(rep engine.StepReport) {
	c.steps = append(c.steps, rep)
}

func (c *stepCollector) ObserveTransition(mode.Result, float64) {}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(sc Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	cfg := engine.DefaultConfig()
	if sc.Config != nil {
		cfg = *sc.Config
	}
	if sc.Regime != "" {
		cfg.Regime = sc.Regime
	}
	cfg.Seed = sc.Seed
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	eng, err := engine.New(cfg, nil, nil)
	if err != nil {
		r.t.Fatalf("%s: engine.New: %v", sc.Name, err)
	}

	runID, err := r.recorder.BeginRun(ctx, string(cfg.Regime), cfg.Seed, eng.Labels())
	if err != nil {
		r.t.Fatalf("%s: BeginRun: %v", sc.Name, err)
	}
	collector := &stepCollector{}
	eng.AddObserver(r.recorder)
	eng.AddObserver(collector)

	frameEvery := sc.FrameEvery
	if frameEvery <= 0 {
		frameEvery = cfg.Step
	}

	actions := append([]Action(nil), sc.Actions...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At < actions[j].At })

	result := SimulationResult{Engine: eng, Recorder: r.recorder, RunID: runID}
	var now, nextFrame time.Duration
	nextFrame = frameEvery
	for {
		for len(actions) > 0 && actions[0].At <= now {
			a := actions[0]
			actions = actions[1:]
			res := eng.Do(a.Command, a.Pattern)
			result.Commands = append(result.Commands, CommandResult{Action: a, Result: res})
		}
		if now >= sc.Duration {
			break
		}

		target := min(nextFrame, sc.Duration)
		if len(actions) > 0 && actions[0].At < target {
			target = actions[0].At
		}
		eng.Advance(target - now)
		now = target

		if now == nextFrame {
			result.Frames = append(result.Frames, Frame{At: now, Snapshot: eng.Snapshot()})
			nextFrame += frameEvery
		}
	}

	if err := r.recorder.EndRun(ctx); err != nil {
		r.t.Fatalf("%s: EndRun: %v", sc.Name, err)
	}
	result.Steps = collector.steps
	return result
}
