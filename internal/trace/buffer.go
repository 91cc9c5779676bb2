package trace

import (
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/topology"
)

// Default sizes.
const (
	DefaultSampleCapacity = 200
	DefaultSpikeCapacity  = 1000
	DefaultRasterWindow   = 20.0
)

// Sample is one potential reading.
type Sample struct {
	Time      float64 `json:"t"`
	Potential float64 `json:"v"`
}

// Options sizes a Buffer.
type Options struct {
	SampleCapacity int
	SpikeCapacity  int
	RasterWindow   float64
}

// DefaultOptions returns the stock capacities and a 20 s raster window.
func DefaultOptions() Options {
	return Options{
		SampleCapacity: DefaultSampleCapacity,
		SpikeCapacity:  DefaultSpikeCapacity,
		RasterWindow:   DefaultRasterWindow,
	}
}

// Buffer holds one sample ring and one spike ring per neuron.
type Buffer struct {
	samples []*Ring[Sample]
	spikes  []*Ring[spikes.Event]
	window  float64
}

// NewBuffer allocates rings for n neurons.
func NewBuffer(n int, opts Options) *Buffer {
	if opts.RasterWindow <= 0 {
		opts.RasterWindow = DefaultRasterWindow
	}
	b := &Buffer{
		samples: make([]*Ring[Sample], n),
		spikes:  make([]*Ring[spikes.Event], n),
		window:  opts.RasterWindow,
	}
	for i := 0; i < n; i++ {
		b.samples[i] = NewRing[Sample](opts.SampleCapacity)
		b.spikes[i] = NewRing[spikes.Event](opts.SpikeCapacity)
	}
	return b
}

// Record appends the current potential of every neuron at time t, plus the
// step's spike events.
func (b *Buffer) Record(net *topology.Network, events []spikes.Event, t float64) {
	for i := range net.Neurons {
		b.samples[i].Push(Sample{Time: t, Potential: net.Neurons[i].Potential})
	}
	for _, ev := range events {
		if int(ev.Neuron) < len(b.spikes) {
			b.spikes[ev.Neuron].Push(ev)
		}
	}
}

// Samples returns the potential history of one neuron, oldest first.
func (b *Buffer) Samples(id topology.NeuronID) []Sample {
	if int(id) >= len(b.samples) {
		return nil
	}
	return b.samples[id].Items()
}

// Spikes returns the spike history of one neuron, oldest first.
func (b *Buffer) Spikes(id topology.NeuronID) []spikes.Event {
	if int(id) >= len(b.spikes) {
		return nil
	}
	return b.spikes[id].Items()
}

// Window returns the raster window length in seconds.
func (b *Buffer) Window() float64 {
	return b.window
}

// Raster returns, per neuron, the spikes whose session time falls in the
// last window seconds before now.
func (b *Buffer) Raster(now float64) [][]spikes.Event {
	from := now - b.window
	out := make([][]spikes.Event, len(b.spikes))
	for i, r := range b.spikes {
		for _, ev := range r.Items() {
			if ev.Time >= from && ev.Time <= now {
				out[i] = append(out[i], ev)
			}
		}
	}
	return out
}

// Clear empties every ring.
func (b *Buffer) Clear() {
	for i := range b.samples {
		b.samples[i].Clear()
		b.spikes[i].Clear()
	}
}
