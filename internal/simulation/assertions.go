package simulation

import (
	"testing"

	"github.com/nvandessel/neurosim/internal/topology"
)

// AssertRangeInvariants checks every frame: potentials within the membrane
// bounds, strength and degradation within [0,1], and a constant connection
// count.
func AssertRangeInvariants(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, f := range result.Frames {
		s := f.Snapshot
		if len(s.Connections) != topology.ConnectionCount {
			t.Errorf("AssertRangeInvariants: at %v: %d connections, want %d", f.At, len(s.Connections), topology.ConnectionCount)
		}
		for _, n := range s.Neurons {
			if n.Potential < topology.MinPotential || n.Potential > topology.MaxPotential {
				t.Errorf("AssertRangeInvariants: at %v: %s potential %.4f out of range", f.At, n.Label, n.Potential)
			}
		}
		for _, c := range s.Connections {
			if c.Strength < 0 || c.Strength > 1 {
				t.Errorf("AssertRangeInvariants: at %v: %s->%s strength %.6f out of [0,1]", f.At, c.SourceLabel, c.TargetLabel, c.Strength)
			}
			if c.Degradation < 0 || c.Degradation > 1 {
				t.Errorf("AssertRangeInvariants: at %v: %s->%s degradation %.6f out of [0,1]", f.At, c.SourceLabel, c.TargetLabel, c.Degradation)
			}
			if c.Effective < 0 || c.Effective > 1 {
				t.Errorf("AssertRangeInvariants: at %v: %s->%s effective %.6f out of [0,1]", f.At, c.SourceLabel, c.TargetLabel, c.Effective)
			}
		}
	}
}

// AssertSpikesIncreasing checks that every neuron's spike times strictly
// increase between resets.
func AssertSpikesIncreasing(t *testing.T, result SimulationResult) {
	t.Helper()
	last := map[topology.NeuronID]float64{}
	prevStep := int64(0)
	for _, rep := range result.Steps {
		if rep.Step <= prevStep {
			// Step counter restarted: the engine was reset.
			last = map[topology.NeuronID]float64{}
		}
		prevStep = rep.Step
		for _, ev := range rep.Spikes {
			if prev, ok := last[ev.Neuron]; ok && ev.Time <= prev {
				t.Errorf("AssertSpikesIncreasing: neuron %d spike at %.4f not after %.4f", ev.Neuron, ev.Time, prev)
			}
			last[ev.Neuron] = ev.Time
		}
	}
}

// AssertOutputSpikes checks the number of Output spikes and that each
// phase-relative time lies in [lo, hi].
func AssertOutputSpikes(t *testing.T, result SimulationResult, want int, lo, hi float64) {
	t.Helper()
	out := result.SpikesOf("Out")
	if len(out) != want {
		t.Errorf("AssertOutputSpikes: got %d Output spikes, want %d (%v)", len(out), want, out)
		return
	}
	for _, ev := range out {
		if ev.PhaseTime < lo || ev.PhaseTime > hi {
			t.Errorf("AssertOutputSpikes: Output spike at phase time %.4f outside [%.2f, %.2f]", ev.PhaseTime, lo, hi)
		}
	}
}

// AssertAccepted checks each command's acceptance against want, in order.
func AssertAccepted(t *testing.T, result SimulationResult, want ...bool) {
	t.Helper()
	if len(result.Commands) != len(want) {
		t.Fatalf("AssertAccepted: %d commands ran, want %d", len(result.Commands), len(want))
	}
	for i, c := range result.Commands {
		if c.Result.Accepted != want[i] {
			t.Errorf("AssertAccepted: command %d (%s) accepted = %v, want %v (reason %q)",
				i, c.Action.Command, c.Result.Accepted, want[i], c.Result.Reason)
		}
	}
}
