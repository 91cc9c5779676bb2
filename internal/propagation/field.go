// Package propagation moves signals along connections between spikes.
//
// Signals are what the view animates as particles, and their in-flight
// count per connection is the activity that drives reinforcement.
package propagation

import (
	"math/rand/v2"

	"github.com/nvandessel/neurosim/internal/topology"
)

// Params tunes signal traffic per fast tick.
type Params struct {
	MaxSignals      int
	InputLaunchProb float64 // per active input per tick
	HiddenFireProb  float64 // per tick, one random hidden neuron
	MinSpeed        float64 // progress per tick
	MaxSpeed        float64
}

// DefaultParams returns the stock traffic levels.
func DefaultParams() Params {
	return Params{
		MaxSignals:      20,
		InputLaunchProb: 0.3,
		HiddenFireProb:  0.1,
		MinSpeed:        0.02,
		MaxSpeed:        0.03,
	}
}

// Signal is one traversal in flight. Progress runs from 0 at the source to
// 1 at the target.
type Signal struct {
	Connection int               `json:"connection"`
	Source     topology.NeuronID `json:"source"`
	Target     topology.NeuronID `json:"target"`
	Progress   float64           `json:"progress"`
	Speed      float64           `json:"speed"`
}

// Field holds every in-flight signal.
type Field struct {
	params  Params
	signals []Signal
	arrived int
}

// New returns an empty field.
func New(p Params) *Field {
	if p.MaxSignals < 1 {
		p.MaxSignals = 1
	}
	return &Field{params: p}
}

// Tick advances existing signals, drops arrivals, then launches new ones
// from the active inputs and a random hidden neuron.
func (f *Field) Tick(net *topology.Network, pattern topology.Pattern, rng *rand.Rand) {
	kept := f.signals[:0]
	for _, s := range f.signals {
		s.Progress += s.Speed
		if s.Progress >= 1 {
			f.arrived++
			continue
		}
		kept = append(kept, s)
	}
	f.signals = kept

	for _, in := range pattern.Active {
		if rng.Float64() < f.params.InputLaunchProb {
			f.LaunchFrom(net, in, rng)
		}
	}

	if rng.Float64() < f.params.HiddenFireProb {
		hidden := net.Hidden()
		f.LaunchFrom(net, hidden[rng.IntN(len(hidden))], rng)
	}
}

// LaunchFrom starts a signal on every outgoing connection of id until the
// in-flight cap is reached.
func (f *Field) LaunchFrom(net *topology.Network, id topology.NeuronID, rng *rand.Rand) {
	for _, idx := range net.Outgoing(id) {
		if len(f.signals) >= f.params.MaxSignals {
			return
		}
		c := net.Connections[idx]
		f.signals = append(f.signals, Signal{
			Connection: idx,
			Source:     c.Source,
			Target:     c.Target,
			Speed:      f.params.MinSpeed + rng.Float64()*(f.params.MaxSpeed-f.params.MinSpeed),
		})
	}
}

// Activity writes the in-flight signal count per connection into dst,
// which must have one slot per connection.
func (f *Field) Activity(dst []int) {
	for i := range dst {
		dst[i] = 0
	}
	for _, s := range f.signals {
		if s.Connection < len(dst) {
			dst[s.Connection]++
		}
	}
}

// DropInactive removes signals leaving Input neurons outside pattern.
func (f *Field) DropInactive(net *topology.Network, pattern topology.Pattern) {
	kept := f.signals[:0]
	for _, s := range f.signals {
		if net.Neurons[s.Source].Type == topology.Input && !pattern.Includes(s.Source) {
			continue
		}
		kept = append(kept, s)
	}
	f.signals = kept
}

// Clear removes every signal.
func (f *Field) Clear() {
	f.signals = f.signals[:0]
	f.arrived = 0
}

// Len returns the number of in-flight signals.
func (f *Field) Len() int {
	return len(f.signals)
}

// Arrived returns how many signals reached their target since the last
// Clear.
func (f *Field) Arrived() int {
	return f.arrived
}

// Signals returns a copy of the in-flight signals.
func (f *Field) Signals() []Signal {
	out := make([]Signal, len(f.signals))
	copy(out, f.signals)
	return out
}
