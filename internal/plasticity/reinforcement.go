package plasticity

import (
	"math/rand/v2"

	"github.com/nvandessel/neurosim/internal/topology"
)

// ReinforcementParams tunes activity-driven strengthening.
type ReinforcementParams struct {
	Rate          float64 // gain per in-flight signal per step, scaled by ramp
	Decay         float64 // loss per step for connections with no traffic
	GateThreshold float64 // total strength needed for Output to fire
}

// DefaultReinforcementParams returns the stock tuning.
func DefaultReinforcementParams() ReinforcementParams {
	return ReinforcementParams{
		Rate:          0.01,
		Decay:         0.001,
		GateThreshold: 0.5,
	}
}

// Reinforcement is the healthy learning regime.
type Reinforcement struct {
	params ReinforcementParams
}

// NewReinforcement returns a reinforcement model.
func NewReinforcement(p ReinforcementParams) *Reinforcement {
	return &Reinforcement{params: p}
}

func (r *Reinforcement) Regime() Regime           { return RegimeReinforcement }
func (r *Reinforcement) InitialStrength() float64 { return topology.DefaultStrength }
func (r *Reinforcement) AllowsPatternNone() bool  { return false }

// Begin is a no-op; reinforcement has no per-run setup.
func (r *Reinforcement) Begin(*topology.Network, *rand.Rand) {}

// Step strengthens active connections and decays idle ones.
func (r *Reinforcement) Step(net *topology.Network, in StepInput, _ *rand.Rand) {
	for i := range net.Connections {
		c := &net.Connections[i]
		activity := 0
		if i < len(in.Activity) {
			activity = in.Activity[i]
		}
		if activity > 0 {
			c.Strength = topology.ClampUnit(c.Strength + float64(activity)*r.params.Rate*in.Ramp)
		} else {
			c.Strength = topology.ClampUnit(c.Strength - r.params.Decay)
		}
	}
}

// Effective is the nominal strength.
func (r *Reinforcement) Effective(c topology.Connection) float64 {
	return c.Strength
}

// DepolarizationScale is 1 for every neuron.
func (r *Reinforcement) DepolarizationScale(*topology.Network, topology.NeuronID) float64 {
	return 1
}

// OutputGate requires the summed strength to exceed the threshold.
func (r *Reinforcement) OutputGate(net *topology.Network) bool {
	return net.TotalStrength() > r.params.GateThreshold
}
