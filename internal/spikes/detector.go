// Package spikes turns membrane potentials into spike events and schedules
// the Output neuron's firings.
//
// Input and Hidden neurons spike on an upward threshold crossing. The Output
// neuron never spikes from its potential; it fires only through a
// HealthyOutput or DegradedOutput scheduler.
package spikes

import (
	"github.com/nvandessel/neurosim/internal/topology"
)

// Event is a single spike. Time is monotonic session time; PhaseTime is
// relative to the start of the training phase and is kept for display.
type Event struct {
	Neuron    topology.NeuronID `json:"neuron"`
	Time      float64           `json:"time"`
	PhaseTime float64           `json:"phase_time"`
}

// Stamp is the simulated time of the step being evaluated.
type Stamp struct {
	Session float64
	Phase   float64
}

// Detector remembers each neuron's previous potential so it can see
// threshold crossings.
type Detector struct {
	threshold float64
	prev      []float64
}

// NewDetector returns a detector for n neurons, all starting at rest.
func NewDetector(n int, threshold float64) *Detector {
	d := &Detector{threshold: threshold, prev: make([]float64, n)}
	d.Reset()
	return d
}

// Reset forgets previous potentials.
func (d *Detector) Reset() {
	for i := range d.prev {
		d.prev[i] = topology.RestingPotential
	}
}

// Detect compares current potentials with the previous step and returns an
// event for every Input or Hidden neuron that crossed the threshold upward.
// Previous potentials are updated for every neuron.
func (d *Detector) Detect(net *topology.Network, at Stamp) []Event {
	var events []Event
	for i := range net.Neurons {
		nr := &net.Neurons[i]
		prev := d.prev[i]
		d.prev[i] = nr.Potential
		if nr.Type == topology.Output {
			continue
		}
		if nr.Potential >= d.threshold && prev < d.threshold {
			events = append(events, Event{Neuron: nr.ID, Time: at.Session, PhaseTime: at.Phase})
		}
	}
	return events
}

// Merge combines event lists keeping at most one event per neuron per step.
// The first event for a neuron wins.
func Merge(lists ...[]Event) []Event {
	seen := make(map[topology.NeuronID]bool)
	var out []Event
	for _, l := range lists {
		for _, ev := range l {
			if seen[ev.Neuron] {
				continue
			}
			seen[ev.Neuron] = true
			out = append(out, ev)
		}
	}
	return out
}
