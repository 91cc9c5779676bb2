package membrane

import (
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/neurosim/internal/topology"
)

func TestRamp(t *testing.T) {
	tests := []struct {
		t, duration, want float64
	}{
		{0, 16, 0},
		{8, 16, 0.5},
		{16, 16, 1},
		{40, 16, 1},
		{-1, 16, 0},
		{3, 0, 1},
	}
	for _, tt := range tests {
		if got := Ramp(tt.t, tt.duration); got != tt.want {
			t.Errorf("Ramp(%v, %v) = %v, want %v", tt.t, tt.duration, got, tt.want)
		}
	}
}

func TestStep_InactiveInputsHeldAtRest(t *testing.T) {
	net := topology.New(topology.DefaultStrength)
	d := New(DefaultParams())
	rng := rand.New(rand.NewPCG(1, 1))
	pattern, _ := topology.LookupPattern(topology.PatternA)

	net.Neurons[1].Potential = -60 // I2 is inactive under A
	for step := 1; step <= 100; step++ {
		d.Step(net, pattern, float64(step)*0.1, nil, rng)
	}

	for _, id := range []topology.NeuronID{1, 3, 5} {
		if got := net.Neurons[id].Potential; got != topology.RestingPotential {
			t.Errorf("%s potential = %f, want rest", net.Neurons[id].Label, got)
		}
	}
}

func TestStep_StaysInRange(t *testing.T) {
	net := topology.New(topology.DefaultStrength)
	params := DefaultParams()
	params.Noise = 40 // large noise to hit both bounds
	d := New(params)
	rng := rand.New(rand.NewPCG(2, 2))
	pattern, _ := topology.LookupPattern(topology.PatternNone)

	for step := 1; step <= 500; step++ {
		d.Step(net, pattern, float64(step)*0.1, nil, rng)
		for _, nr := range net.Neurons {
			if nr.Potential < topology.MinPotential || nr.Potential > topology.MaxPotential {
				t.Fatalf("step %d: %s potential %f out of range", step, nr.Label, nr.Potential)
			}
		}
	}
}

func TestStep_OutputDepolarizesMost(t *testing.T) {
	net := topology.New(topology.DefaultStrength)
	d := New(DefaultParams())
	rng := rand.New(rand.NewPCG(3, 3))
	pattern, _ := topology.LookupPattern(topology.PatternA)

	for step := 1; step <= 600; step++ {
		d.Step(net, pattern, 16, nil, rng)
	}

	out := net.Neurons[net.OutputID()].Potential
	for _, id := range net.Hidden() {
		if net.Neurons[id].Potential >= out {
			t.Errorf("%s at %f should sit below Output at %f", net.Neurons[id].Label, net.Neurons[id].Potential, out)
		}
	}
}

func TestStep_ScaleReducesDepolarization(t *testing.T) {
	run := func(scale ScaleFunc) float64 {
		net := topology.New(topology.DefaultStrength)
		d := New(DefaultParams())
		rng := rand.New(rand.NewPCG(4, 4))
		pattern, _ := topology.LookupPattern(topology.PatternA)
		for step := 1; step <= 400; step++ {
			d.Step(net, pattern, 16, scale, rng)
		}
		h2, _ := net.ByLabel("H2")
		return net.Neurons[h2].Potential
	}

	full := run(nil)
	halved := run(func(topology.NeuronID) float64 { return 0.5 })
	if halved >= full {
		t.Errorf("scaled potential %f should be below unscaled %f", halved, full)
	}
}

func TestStep_Deterministic(t *testing.T) {
	run := func() []float64 {
		net := topology.New(topology.DefaultStrength)
		d := New(DefaultParams())
		rng := rand.New(rand.NewPCG(42, 42))
		pattern, _ := topology.LookupPattern(topology.PatternB)
		for step := 1; step <= 50; step++ {
			d.Step(net, pattern, float64(step)*0.1, nil, rng)
		}
		out := make([]float64, len(net.Neurons))
		for i, nr := range net.Neurons {
			out[i] = nr.Potential
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("neuron %d: %f != %f", i, a[i], b[i])
		}
	}
}
