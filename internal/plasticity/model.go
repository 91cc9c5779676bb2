// Package plasticity implements the two synaptic regimes.
//
// Reinforcement strengthens connections that carry signal traffic and lets
// idle ones decay. Degradation leaves nominal strength alone and instead
// drives a per-connection degradation level through four phases, with a
// resilient minority that resists damage.
package plasticity

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/nvandessel/neurosim/internal/topology"
)

// Regime selects a Model variant.
type Regime string

const (
	RegimeReinforcement Regime = "reinforcement"
	RegimeDegradation   Regime = "degradation"
)

// ParseRegime accepts the regime names case-insensitively.
func ParseRegime(s string) (Regime, error) {
	switch Regime(strings.ToLower(strings.TrimSpace(s))) {
	case RegimeReinforcement, "":
		return RegimeReinforcement, nil
	case RegimeDegradation:
		return RegimeDegradation, nil
	default:
		return "", fmt.Errorf("unknown regime %q (valid: reinforcement, degradation)", s)
	}
}

// StepInput is what a model sees on each step.
type StepInput struct {
	Elapsed  float64 // seconds since phase start
	Ramp     float64 // training ramp in [0,1]
	Dt       float64 // step length, seconds
	Activity []int   // in-flight signals per connection index
}

// Model is a plasticity regime bound to one network.
type Model interface {
	// Regime names the variant.
	Regime() Regime
	// InitialStrength is the nominal strength of a fresh network.
	InitialStrength() float64
	// Begin runs when training starts from Idle.
	Begin(net *topology.Network, rng *rand.Rand)
	// Step updates connection values once.
	Step(net *topology.Network, in StepInput, rng *rand.Rand)
	// Effective returns the strength a connection actually transmits.
	Effective(c topology.Connection) float64
	// DepolarizationScale returns the membrane target multiplier for id.
	DepolarizationScale(net *topology.Network, id topology.NeuronID) float64
	// OutputGate reports whether the network is strong enough for the
	// Output neuron to fire.
	OutputGate(net *topology.Network) bool
	// AllowsPatternNone reports whether every input may be active at once.
	AllowsPatternNone() bool
}

// Params bundles the constants for both variants.
type Params struct {
	Reinforcement ReinforcementParams
	Degradation   DegradationParams
}

// DefaultParams returns stock constants for both variants.
func DefaultParams() Params {
	return Params{
		Reinforcement: DefaultReinforcementParams(),
		Degradation:   DefaultDegradationParams(),
	}
}

// New returns the model for regime r.
func New(r Regime, p Params) (Model, error) {
	switch r {
	case RegimeReinforcement:
		return NewReinforcement(p.Reinforcement), nil
	case RegimeDegradation:
		return NewDegradation(p.Degradation), nil
	default:
		return nil, fmt.Errorf("unknown regime %q", r)
	}
}

// MeanDegradation averages degradation over the connection indices.
func MeanDegradation(net *topology.Network, conns []int) float64 {
	if len(conns) == 0 {
		return 0
	}
	var sum float64
	for _, idx := range conns {
		sum += net.Connections[idx].Degradation
	}
	return sum / float64(len(conns))
}
