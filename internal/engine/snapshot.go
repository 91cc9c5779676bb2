package engine

import (
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/propagation"
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/topology"
	"github.com/nvandessel/neurosim/internal/trace"
)

// NeuronView is one neuron in a Snapshot.
type NeuronView struct {
	ID        topology.NeuronID   `json:"id"`
	Label     string              `json:"label"`
	Type      topology.NeuronType `json:"type"`
	Potential float64             `json:"potential"`
	Active    bool                `json:"active"`
	// Raster holds spike times inside the raster window.
	Raster []float64 `json:"raster"`
}

// ConnectionView is one connection in a Snapshot.
type ConnectionView struct {
	Index       int               `json:"index"`
	Source      topology.NeuronID `json:"source"`
	Target      topology.NeuronID `json:"target"`
	SourceLabel string            `json:"source_label"`
	TargetLabel string            `json:"target_label"`
	Strength    float64           `json:"strength"`
	Degradation float64           `json:"degradation"`
	Resilient   bool              `json:"resilient"`
	Effective   float64           `json:"effective"`
	Activity    int               `json:"activity"`
}

// Analysis is the frozen copy of connection values taken by Analyze.
type Analysis struct {
	Pattern     topology.PatternID `json:"pattern"`
	Elapsed     float64            `json:"elapsed"`
	Strength    []float64          `json:"strength"`
	Degradation []float64          `json:"degradation"`
	Effective   []float64          `json:"effective"`
	Resilient   []bool             `json:"resilient"`
}

// Snapshot is a point-in-time copy of the whole engine. It shares no memory
// with the Engine.
type Snapshot struct {
	Regime    plasticity.Regime `json:"regime"`
	Mode      mode.State        `json:"mode"`
	ModeLabel string            `json:"mode_label"`
	Steps     int64             `json:"steps"`
	Elapsed   float64           `json:"elapsed"`
	Session   float64           `json:"session"`
	Paused    bool              `json:"paused"`
	GateOpen  bool              `json:"gate_open"`
	// ReacquisitionMs is the remaining gate lockout, refreshed every slow tick.
	ReacquisitionMs int64                `json:"reacquisition_ms"`
	OutputCountdown float64              `json:"output_countdown"`
	TotalStrength   float64              `json:"total_strength"`
	RasterWindow    float64              `json:"raster_window"`
	Neurons         []NeuronView         `json:"neurons"`
	Connections     []ConnectionView     `json:"connections"`
	Signals         []propagation.Signal `json:"signals"`
	Analysis        *Analysis            `json:"analysis,omitempty"`
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ctrl.State()
	active, _ := st.ActivePattern()
	pattern, _ := topology.LookupPattern(active)
	running := st.Kind == mode.Training || st.Kind == mode.Analyzing

	s := Snapshot{
		Regime:          e.model.Regime(),
		Mode:            st,
		ModeLabel:       st.String(),
		Steps:           e.steps,
		Elapsed:         e.clock.Elapsed(),
		Session:         e.clock.Session(),
		Paused:          e.clock.Paused(),
		GateOpen:        e.ctrl.GateOpen(),
		ReacquisitionMs: e.reacquisition.Milliseconds(),
		OutputCountdown: e.countdown,
		TotalStrength:   e.net.TotalStrength(),
		RasterWindow:    e.traces.Window(),
		Neurons:         make([]NeuronView, len(e.net.Neurons)),
		Connections:     make([]ConnectionView, len(e.net.Connections)),
		Signals:         e.field.Signals(),
		Analysis:        e.analysis.clone(),
	}

	raster := e.traces.Raster(e.clock.Session())
	for i, nr := range e.net.Neurons {
		v := NeuronView{
			ID:        nr.ID,
			Label:     nr.Label,
			Type:      nr.Type,
			Potential: nr.Potential,
			Active:    running && (nr.Type != topology.Input || pattern.Includes(nr.ID)),
			Raster:    []float64{},
		}
		for _, ev := range raster[i] {
			v.Raster = append(v.Raster, ev.Time)
		}
		s.Neurons[i] = v
	}

	e.field.Activity(e.activity)
	for i, c := range e.net.Connections {
		s.Connections[i] = ConnectionView{
			Index:       i,
			Source:      c.Source,
			Target:      c.Target,
			SourceLabel: e.net.Neurons[c.Source].Label,
			TargetLabel: e.net.Neurons[c.Target].Label,
			Strength:    c.Strength,
			Degradation: c.Degradation,
			Resilient:   c.Resilient,
			Effective:   e.model.Effective(c),
			Activity:    e.activity[i],
		}
	}
	return s
}

// Traces returns the potential history of every neuron, by neuron index.
func (e *Engine) Traces() [][]trace.Sample {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]trace.Sample, len(e.net.Neurons))
	for i := range e.net.Neurons {
		out[i] = e.traces.Samples(topology.NeuronID(i))
	}
	return out
}

// SpikeHistory returns the buffered spike events of every neuron, by neuron
// index, oldest first.
func (e *Engine) SpikeHistory() [][]spikes.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]spikes.Event, len(e.net.Neurons))
	for i := range e.net.Neurons {
		out[i] = e.traces.Spikes(topology.NeuronID(i))
	}
	return out
}

// Labels returns neuron labels by index.
func (e *Engine) Labels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.net.Neurons))
	for i, nr := range e.net.Neurons {
		out[i] = nr.Label
	}
	return out
}

func (e *Engine) captureAnalysis() *Analysis {
	st := e.ctrl.State()
	a := &Analysis{
		Pattern:     st.ResumePattern,
		Elapsed:     st.ResumeElapsed,
		Strength:    make([]float64, len(e.net.Connections)),
		Degradation: make([]float64, len(e.net.Connections)),
		Effective:   make([]float64, len(e.net.Connections)),
		Resilient:   make([]bool, len(e.net.Connections)),
	}
	for i, c := range e.net.Connections {
		a.Strength[i] = c.Strength
		a.Degradation[i] = c.Degradation
		a.Effective[i] = e.model.Effective(c)
		a.Resilient[i] = c.Resilient
	}
	return a
}

func (a *Analysis) clone() *Analysis {
	if a == nil {
		return nil
	}
	return &Analysis{
		Pattern:     a.Pattern,
		Elapsed:     a.Elapsed,
		Strength:    append([]float64(nil), a.Strength...),
		Degradation: append([]float64(nil), a.Degradation...),
		Effective:   append([]float64(nil), a.Effective...),
		Resilient:   append([]bool(nil), a.Resilient...),
	}
}
