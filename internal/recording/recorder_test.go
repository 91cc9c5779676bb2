package recording

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/topology"
)

func openTestRecorder(t *testing.T, sampleEvery int) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "runs", "neurosim.db"), sampleEvery)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorder_StepsAndTransitions(t *testing.T) {
	ctx := context.Background()
	r := openTestRecorder(t, 2)

	id, err := r.BeginRun(ctx, "reinforcement", 42, []string{"I1", "I2", "H1"})
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	training := mode.State{Kind: mode.Training, Pattern: topology.PatternA}
	r.ObserveTransition(mode.Result{Command: mode.CommandSelectPattern, Accepted: true, From: mode.State{}, To: training}, 0)
	r.ObserveTransition(mode.Result{Command: mode.CommandExitAnalyze, Reason: "not analyzing", From: training, To: training}, 0.1)

	for step := int64(1); step <= 4; step++ {
		rep := engine.StepReport{
			Step:       step,
			Session:    float64(step) * 0.1,
			Potentials: []float64{-70, -70, -55},
		}
		if step == 3 {
			rep.Spikes = []spikes.Event{{Neuron: 2, Time: 0.3, PhaseTime: 0.3}}
		}
		r.ObserveStep(rep)
	}

	if err := r.EndRun(ctx); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	sum, err := r.Summarize(ctx, id)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := Summary{RunID: id, Steps: 4, Spikes: 1, Samples: 6, Transitions: 2, Rejected: 1}
	if sum != want {
		t.Errorf("Summary = %+v, want %+v", sum, want)
	}

	times, err := r.SpikeTimes(ctx, id, "H1")
	if err != nil {
		t.Fatalf("SpikeTimes: %v", err)
	}
	if len(times) != 1 || times[0] != 0.3 {
		t.Errorf("SpikeTimes = %v, want [0.3]", times)
	}
}

func TestRecorder_IgnoresObservationsWithoutRun(t *testing.T) {
	r := openTestRecorder(t, 1)
	r.ObserveStep(engine.StepReport{Step: 1, Potentials: []float64{-70}})
	r.ObserveTransition(mode.Result{Command: mode.CommandReset, Accepted: true}, 0)

	if err := r.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
	if err := r.EndRun(context.Background()); !errors.Is(err, ErrNoRun) {
		t.Errorf("EndRun without run = %v, want ErrNoRun", err)
	}
}

func TestRecorder_RunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := openTestRecorder(t, 1)

	first, _ := r.BeginRun(ctx, "reinforcement", 1, nil)
	if err := r.EndRun(ctx); err != nil {
		t.Fatalf("EndRun: %v", err)
	}
	second, _ := r.BeginRun(ctx, "degradation", 2, nil)

	runs, err := r.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("order = [%s %s], want [%s %s]", runs[0].ID, runs[1].ID, second, first)
	}
	if runs[1].EndedAt == nil || runs[0].EndedAt != nil {
		t.Error("only the first run should have an end time")
	}
	if runs[0].Regime != "degradation" || runs[0].Seed != 2 {
		t.Errorf("runs[0] = %+v", runs[0])
	}
}

func TestOpen_ReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "neurosim.db")

	r, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.BeginRun(ctx, "reinforcement", 7, nil); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	r.Close()

	r2, err := Open(path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()
	runs, err := r2.Runs(ctx)
	if err != nil || len(runs) != 1 {
		t.Errorf("Runs after reopen = %v, %v; want 1 run", runs, err)
	}
}

func TestSummarize_UnknownRun(t *testing.T) {
	r := openTestRecorder(t, 1)
	if _, err := r.Summarize(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}
