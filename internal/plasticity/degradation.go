package plasticity

import (
	"math"
	"math/rand/v2"

	"github.com/nvandessel/neurosim/internal/topology"
)

// DegradationParams tunes the pathological regime.
type DegradationParams struct {
	ResilientFraction float64 // share of connections marked resilient at start
	StrengthFactor    float64 // how much degradation cuts effective strength
	ResilientBoost    float64 // multiplier on a resilient connection's strength
	ResilientCap      float64 // resilient degradation ceiling as a share of rate
	ResilientDecay    float64 // degradation shed by resilient connections per second
	ResilientDamage   float64 // max damage a resilient connection takes per step
	RecoveryProb      float64 // per-step chance of a resilient recovery
	RecoveryFactor    float64 // degradation multiplier on recovery
	ScaleFactor       float64 // how much incident degradation dampens depolarization
}

// DefaultDegradationParams returns the stock tuning.
func DefaultDegradationParams() DegradationParams {
	return DegradationParams{
		ResilientFraction: 0.3,
		StrengthFactor:    0.8,
		ResilientBoost:    1.2,
		ResilientCap:      0.35,
		ResilientDecay:    0.02,
		ResilientDamage:   0.01,
		RecoveryProb:      0.03,
		RecoveryFactor:    0.5,
		ScaleFactor:       0.6,
	}
}

// Phase names a stage of the degradation curve.
type Phase string

const (
	PhaseFormation       Phase = "formation"
	PhaseDestabilization Phase = "destabilization"
	PhaseFragility       Phase = "fragility"
	PhaseSevere          Phase = "severe"
)

// Curve is the degradation rate and instability at an instant.
type Curve struct {
	Phase       Phase
	Rate        float64
	Instability float64
}

// CurveAt evaluates the four-phase degradation curve at phase time t. The
// severe phase draws from rng; the earlier phases do not.
func CurveAt(t float64, rng *rand.Rand) Curve {
	switch {
	case t <= 4:
		return Curve{PhaseFormation, 0.1 * math.Max(t, 0) / 4, 0.05}
	case t <= 8:
		f := (t - 4) / 4
		return Curve{PhaseDestabilization, 0.1 + 0.3*f, 0.05 + 0.15*f}
	case t <= 13:
		f := (t - 8) / 5
		return Curve{PhaseFragility, 0.4 + 0.4*f, 0.3}
	default:
		return Curve{PhaseSevere, 0.8 + 0.2*rng.Float64(), 0.3 + 0.2*rng.Float64()}
	}
}

// Degradation is the pathological regime.
type Degradation struct {
	params DegradationParams
}

// NewDegradation returns a degradation model.
func NewDegradation(p DegradationParams) *Degradation {
	return &Degradation{params: p}
}

func (d *Degradation) Regime() Regime           { return RegimeDegradation }
func (d *Degradation) InitialStrength() float64 { return topology.DegradedStrength }
func (d *Degradation) AllowsPatternNone() bool  { return true }

// Begin marks a random subset of connections resilient.
func (d *Degradation) Begin(net *topology.Network, rng *rand.Rand) {
	for i := range net.Connections {
		net.Connections[i].Resilient = rng.Float64() < d.params.ResilientFraction
	}
}

// Step moves every connection's degradation along the curve.
func (d *Degradation) Step(net *topology.Network, in StepInput, rng *rand.Rand) {
	curve := CurveAt(in.Elapsed, rng)
	for i := range net.Connections {
		c := &net.Connections[i]
		if !c.Resilient {
			noise := rng.Float64()*2 - 1
			c.Degradation = topology.ClampUnit(curve.Rate + noise*curve.Instability)
			continue
		}

		deg := math.Max(0, c.Degradation-d.params.ResilientDecay*in.Dt)
		deg += rng.Float64() * d.params.ResilientDamage
		if rng.Float64() < d.params.RecoveryProb {
			deg *= d.params.RecoveryFactor
		}
		c.Degradation = topology.ClampUnit(math.Min(deg, d.params.ResilientCap*curve.Rate))
	}
}

// Effective scales nominal strength down by degradation, boosting resilient
// connections.
func (d *Degradation) Effective(c topology.Connection) float64 {
	s := c.Strength * (1 - c.Degradation*d.params.StrengthFactor)
	if c.Resilient {
		s *= d.params.ResilientBoost
	}
	return topology.ClampUnit(s)
}

// DepolarizationScale dampens a neuron by the mean degradation of the
// connections touching it: incoming for Hidden and Output, outgoing for
// Input.
func (d *Degradation) DepolarizationScale(net *topology.Network, id topology.NeuronID) float64 {
	conns := net.Incoming(id)
	if len(conns) == 0 {
		conns = net.Outgoing(id)
	}
	return 1 - MeanDegradation(net, conns)*d.params.ScaleFactor
}

// OutputGate is always open; the degraded Output fires on its own schedule.
func (d *Degradation) OutputGate(*topology.Network) bool {
	return true
}
