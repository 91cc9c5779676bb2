// Package membrane updates neuron potentials once per simulation step.
//
// Each active neuron relaxes toward a target that rises with the training
// ramp, plus a type-specific fluctuation. Inactive Input neurons are held at
// rest. The result is always clamped to the physiological range.
package membrane

import (
	"math"
	"math/rand/v2"

	"github.com/nvandessel/neurosim/internal/topology"
)

// Params holds the qualitative constants of the potential update.
type Params struct {
	RampDuration   float64 // seconds for the ramp to reach 1
	Smoothing      float64 // fraction of the gap to target closed per step
	Noise          float64 // peak-to-peak step noise, mV
	InputNoise     float64 // half-width of the Input fluctuation, mV
	LateRampStart  float64 // seconds; Output gets an extra push after this
	LateRampSlope  float64 // mV per second past LateRampStart
	Depolarization map[topology.NeuronType]float64
}

// DefaultParams returns the stock dynamics.
func DefaultParams() Params {
	return Params{
		RampDuration:  16,
		Smoothing:     0.02,
		Noise:         0.6,
		InputNoise:    1,
		LateRampStart: 12,
		LateRampSlope: 1.5,
		Depolarization: map[topology.NeuronType]float64{
			topology.Input:            14,
			topology.ExcitatoryHidden: 22,
			topology.InhibitoryHidden: 16,
			topology.Output:           32,
		},
	}
}

// Ramp returns clamp(t/duration, 0, 1).
func Ramp(t, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, t/duration))
}

// ScaleFunc returns the depolarization multiplier for a neuron. A nil
// ScaleFunc means 1 for every neuron.
type ScaleFunc func(id topology.NeuronID) float64

// Dynamics applies Params to a network.
type Dynamics struct {
	params Params
}

// New returns dynamics using p.
func New(p Params) *Dynamics {
	return &Dynamics{params: p}
}

// Params returns the configured constants.
func (d *Dynamics) Params() Params {
	return d.params
}

// Step advances every potential in net for phase-relative time elapsed.
// Random draws happen in neuron order so a seeded rng gives a fixed
// sequence.
func (d *Dynamics) Step(net *topology.Network, pattern topology.Pattern, elapsed float64, scale ScaleFunc, rng *rand.Rand) {
	p := Ramp(elapsed, d.params.RampDuration)

	for i := range net.Neurons {
		nr := &net.Neurons[i]
		if nr.Type == topology.Input && !pattern.Includes(nr.ID) {
			nr.Potential = topology.RestingPotential
			continue
		}

		s := 1.0
		if scale != nil {
			s = scale(nr.ID)
		}
		target := topology.RestingPotential + d.params.Depolarization[nr.Type]*p*s
		fluct := d.fluctuation(nr.Type, p, elapsed, rng)
		noise := (rng.Float64() - 0.5) * d.params.Noise

		v := nr.Potential + (target+fluct-nr.Potential)*d.params.Smoothing + noise
		nr.Potential = topology.ClampPotential(v)
	}
}

func (d *Dynamics) fluctuation(typ topology.NeuronType, p, elapsed float64, rng *rand.Rand) float64 {
	u := rng.Float64()
	switch typ {
	case topology.Input:
		return (u*2 - 1) * d.params.InputNoise
	case topology.ExcitatoryHidden:
		return p * (u*4 - 1)
	case topology.InhibitoryHidden:
		return -p * (u*4 - 1)
	case topology.Output:
		f := p * p * (u*4 - 1)
		if elapsed > d.params.LateRampStart {
			f += (elapsed - d.params.LateRampStart) * d.params.LateRampSlope
		}
		return f
	}
	return 0
}
