package simulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/simulation"
	"github.com/nvandessel/neurosim/internal/topology"
)

// TestRangeInvariants drives both regimes through every transition and
// checks potentials, strengths and degradation after every step.
func TestRangeInvariants(t *testing.T) {
	tests := []struct {
		name    string
		regime  plasticity.Regime
		actions []simulation.Action
	}{
		{
			name:   "reinforcement",
			regime: plasticity.RegimeReinforcement,
			actions: []simulation.Action{
				simulation.Select(0, topology.PatternA),
				simulation.Select(8*time.Second, topology.PatternB),
				simulation.Analyze(12 * time.Second),
				simulation.ExitAnalyze(14 * time.Second),
				simulation.Reset(30 * time.Second),
				simulation.Select(31*time.Second, topology.PatternA),
			},
		},
		{
			name:   "degradation",
			regime: plasticity.RegimeDegradation,
			actions: []simulation.Action{
				simulation.Select(0, topology.PatternNone),
				simulation.Analyze(10 * time.Second),
				simulation.ExitAnalyze(11 * time.Second),
				simulation.Select(20*time.Second, topology.PatternA),
				simulation.Reset(32 * time.Second),
				simulation.Select(33*time.Second, topology.PatternNone),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := simulation.NewRunner(t)
			result := r.Run(simulation.Scenario{
				Name:     tt.name,
				Regime:   tt.regime,
				Seed:     11,
				Actions:  tt.actions,
				Duration: 45 * time.Second,
			})

			simulation.AssertAccepted(t, result, true, true, true, true, true, true)
			simulation.AssertRangeInvariants(t, result)
			simulation.AssertSpikesIncreasing(t, result)
		})
	}
}

// TestRecordingMatchesSteps checks that the SQLite log holds every spike the
// engine reported.
func TestRecordingMatchesSteps(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:     "recording",
		Regime:   plasticity.RegimeDegradation,
		Seed:     5,
		Actions:  []simulation.Action{simulation.Select(0, topology.PatternNone)},
		Duration: 20 * time.Second,
	})

	var want int64
	for _, rep := range result.Steps {
		want += int64(len(rep.Spikes))
	}

	sum, err := result.Recorder.Summarize(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Spikes != want {
		t.Errorf("recorded spikes = %d, engine reported %d", sum.Spikes, want)
	}
	if sum.Steps != int64(len(result.Steps)) {
		t.Errorf("recorded steps = %d, want %d", sum.Steps, len(result.Steps))
	}
	if sum.Transitions != 1 {
		t.Errorf("recorded transitions = %d, want 1", sum.Transitions)
	}
	if want == 0 {
		t.Error("a 20s degradation run should produce spikes")
	}
}
