package spikes

import (
	"math/rand/v2"
	"time"

	"github.com/nvandessel/neurosim/internal/topology"
)

// HealthyParams configures the single per-phase Output firing.
type HealthyParams struct {
	WindowStart float64 // seconds into the phase
	WindowEnd   float64
}

// DefaultHealthyParams returns the [13, 16] s firing window.
func DefaultHealthyParams() HealthyParams {
	return HealthyParams{WindowStart: 13, WindowEnd: 16}
}

// HealthyOutput fires the Output neuron once per training phase at a random
// instant inside the window. The firing becomes due when phase time reaches
// that instant, then waits for the gate; if the gate stays closed past the
// window the firing is forfeited for the phase.
type HealthyOutput struct {
	params HealthyParams

	fireAt   float64
	active   bool
	deferred bool
	done     bool
}

// NewHealthyOutput returns an idle scheduler.
func NewHealthyOutput(p HealthyParams) *HealthyOutput {
	return &HealthyOutput{params: p}
}

// BeginPhase picks this phase's firing instant, in seconds of phase time,
// and returns it. Any previous phase's pending firing is discarded.
func (h *HealthyOutput) BeginPhase(rng *rand.Rand) float64 {
	span := h.params.WindowEnd - h.params.WindowStart
	h.fireAt = h.params.WindowStart + rng.Float64()*span
	h.active = true
	h.deferred = false
	h.done = false
	return h.fireAt
}

// Cancel discards the current phase's firing.
func (h *HealthyOutput) Cancel() {
	h.active = false
}

// FireAt returns the chosen instant for the current phase.
func (h *HealthyOutput) FireAt() (float64, bool) {
	return h.fireAt, h.active
}

// Fired reports whether this phase's firing has happened or been forfeited.
func (h *HealthyOutput) Fired() bool {
	return h.done
}

// Check decides whether the Output fires on the step ending at phase. It
// returns the phase time to stamp the spike with: the scheduled instant when
// the gate was open at the first due step, otherwise the current phase time.
func (h *HealthyOutput) Check(phase float64, gateOpen bool) (float64, bool) {
	if !h.active || h.done || phase < h.fireAt {
		return 0, false
	}
	late := phase > h.params.WindowEnd
	if !gateOpen {
		if late {
			h.done = true
		} else {
			h.deferred = true
		}
		return 0, false
	}
	h.done = true
	if h.deferred {
		if late {
			return 0, false
		}
		return phase, true
	}
	return h.fireAt, true
}

// DegradedParams configures the recurring Output firing and the noise
// spikes of the degradation regime.
type DegradedParams struct {
	MinInterval, MaxInterval           float64
	ModerateMin, ModerateMax           float64
	SevereMin, SevereMax               float64
	ModerateThreshold, SevereThreshold float64

	NoiseLabels []string
	BurstShare  float64
	PauseShare  float64
	BurstProb   float64
	PauseProb   float64
	NormalMin   float64
	NormalMax   float64
	// NoiseBasis is the step length, in seconds, the probabilities refer to.
	NoiseBasis float64
}

// DefaultDegradedParams returns the stock degradation firing behavior.
func DefaultDegradedParams() DegradedParams {
	return DegradedParams{
		MinInterval:       3,
		MaxInterval:       10,
		ModerateMin:       4,
		ModerateMax:       12,
		SevereMin:         5,
		SevereMax:         15,
		ModerateThreshold: 0.4,
		SevereThreshold:   0.7,
		NoiseLabels:       []string{"H2", "H3", "I1", "I2"},
		BurstShare:        0.10,
		PauseShare:        0.20,
		BurstProb:         0.08,
		PauseProb:         0.005,
		NormalMin:         0.02,
		NormalMax:         0.04,
		NoiseBasis:        0.1,
	}
}

// DegradedOutput fires the Output neuron on a recurring random interval that
// widens as Hidden->Output connections degrade. It is not gated.
type DegradedOutput struct {
	params DegradedParams
	noise  []topology.NeuronID
	due    bool
}

// NewDegradedOutput resolves the noise neuron labels against net.
func NewDegradedOutput(p DegradedParams, net *topology.Network) *DegradedOutput {
	d := &DegradedOutput{params: p}
	for _, label := range p.NoiseLabels {
		if id, ok := net.ByLabel(label); ok {
			d.noise = append(d.noise, id)
		}
	}
	return d
}

// NextInterval draws the delay to the next Output firing given the mean
// degradation of connections into the Output neuron.
func (d *DegradedOutput) NextInterval(meanDegradation float64, rng *rand.Rand) time.Duration {
	lo, hi := d.params.MinInterval, d.params.MaxInterval
	switch {
	case meanDegradation > d.params.SevereThreshold:
		lo, hi = d.params.SevereMin, d.params.SevereMax
	case meanDegradation > d.params.ModerateThreshold:
		lo, hi = d.params.ModerateMin, d.params.ModerateMax
	}
	return seconds(lo + rng.Float64()*(hi-lo))
}

// MarkDue is called by the interval timer.
func (d *DegradedOutput) MarkDue() {
	d.due = true
}

// Cancel drops a due firing that has not been consumed.
func (d *DegradedOutput) Cancel() {
	d.due = false
}

// Check consumes a due firing.
func (d *DegradedOutput) Check() bool {
	if !d.due {
		return false
	}
	d.due = false
	return true
}

// Noise emits irregular spikes on the designated neurons. Each neuron draws a
// regime (burst, pause or normal) and then fires with that regime's
// probability scaled to the step length dt.
func (d *DegradedOutput) Noise(at Stamp, dt float64, rng *rand.Rand) []Event {
	scale := 1.0
	if d.params.NoiseBasis > 0 {
		scale = dt / d.params.NoiseBasis
	}
	var events []Event
	for _, id := range d.noise {
		var p float64
		r := rng.Float64()
		switch {
		case r < d.params.BurstShare:
			p = d.params.BurstProb
		case r < d.params.BurstShare+d.params.PauseShare:
			p = d.params.PauseProb
		default:
			p = d.params.NormalMin + rng.Float64()*(d.params.NormalMax-d.params.NormalMin)
		}
		if rng.Float64() < p*scale {
			events = append(events, Event{Neuron: id, Time: at.Session, PhaseTime: at.Phase})
		}
	}
	return events
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
