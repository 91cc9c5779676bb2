package engine

import (
	"fmt"
	"time"

	"github.com/nvandessel/neurosim/internal/membrane"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/propagation"
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/trace"
)

// Config holds every tunable of an Engine.
type Config struct {
	Regime plasticity.Regime
	// Seed drives every random draw. Zero picks a time-based seed.
	Seed uint64

	Step     time.Duration // full simulation step
	FastTick time.Duration // signal propagation
	SlowTick time.Duration // countdown refresh

	LockoutFactor float64

	Membrane    membrane.Params
	Plasticity  plasticity.Params
	Propagation propagation.Params
	Healthy     spikes.HealthyParams
	Degraded    spikes.DegradedParams
	Trace       trace.Options
}

// DefaultConfig returns a reinforcement engine with stock constants.
func DefaultConfig() Config {
	return Config{
		Regime:        plasticity.RegimeReinforcement,
		Step:          100 * time.Millisecond,
		FastTick:      50 * time.Millisecond,
		SlowTick:      time.Second,
		LockoutFactor: mode.DefaultLockoutFactor,
		Membrane:      membrane.DefaultParams(),
		Plasticity:    plasticity.DefaultParams(),
		Propagation:   propagation.DefaultParams(),
		Healthy:       spikes.DefaultHealthyParams(),
		Degraded:      spikes.DefaultDegradedParams(),
		Trace:         trace.DefaultOptions(),
	}
}

func (c Config) validate() error {
	if c.Step <= 0 || c.FastTick <= 0 || c.SlowTick <= 0 {
		return fmt.Errorf("tick intervals must be positive (step=%v fast=%v slow=%v)", c.Step, c.FastTick, c.SlowTick)
	}
	if c.Healthy.WindowEnd < c.Healthy.WindowStart {
		return fmt.Errorf("output window end %v before start %v", c.Healthy.WindowEnd, c.Healthy.WindowStart)
	}
	return nil
}
