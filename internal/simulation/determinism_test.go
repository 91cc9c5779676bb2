package simulation_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/nvandessel/neurosim/internal/simulation"
	"github.com/nvandessel/neurosim/internal/topology"
)

// TestFixedSeedIsReproducible runs the same scenario twice and expects
// identical step reports and snapshots.
func TestFixedSeedIsReproducible(t *testing.T) {
	scenario := simulation.Scenario{
		Name: "determinism",
		Seed: 2024,
		Actions: []simulation.Action{
			simulation.Select(0, topology.PatternA),
			simulation.Select(6*time.Second, topology.PatternB),
			simulation.Analyze(9 * time.Second),
			simulation.ExitAnalyze(10 * time.Second),
		},
		Duration:   20 * time.Second,
		FrameEvery: 500 * time.Millisecond,
	}

	a := simulation.NewRunner(t).Run(scenario)
	b := simulation.NewRunner(t).Run(scenario)

	if len(a.Steps) == 0 {
		t.Fatal("no steps ran")
	}
	if !reflect.DeepEqual(a.Steps, b.Steps) {
		t.Error("step reports differ between runs with the same seed")
	}
	if len(a.Frames) != len(b.Frames) {
		t.Fatalf("frame counts differ: %d vs %d", len(a.Frames), len(b.Frames))
	}
	for i := range a.Frames {
		if !reflect.DeepEqual(a.Frames[i], b.Frames[i]) {
			t.Fatalf("frame %d at %v differs", i, a.Frames[i].At)
		}
	}
}

// TestDifferentSeedsDiverge guards against the seed being ignored.
func TestDifferentSeedsDiverge(t *testing.T) {
	run := func(seed uint64) simulation.SimulationResult {
		return simulation.NewRunner(t).Run(simulation.Scenario{
			Name:     "divergence",
			Seed:     seed,
			Actions:  []simulation.Action{simulation.Select(0, topology.PatternA)},
			Duration: 5 * time.Second,
		})
	}

	if reflect.DeepEqual(run(1).Final().Neurons, run(2).Final().Neurons) {
		t.Error("different seeds produced identical potentials")
	}
}
