// Package topology defines the fixed spiking network: neurons, directed
// connections, and the input patterns used to train it.
//
// The structure is built once by New and never changes for the life of a
// Network. Reset reinitializes values without touching cardinality.
package topology

import (
	"fmt"
	"math"
)

// Network shape. Hidden neurons whose hidden index is a multiple of
// InhibitoryEvery are inhibitory.
const (
	InputCount       = 6
	HiddenCount      = 10
	OutputCount      = 1
	InhibitoryEvery  = 4
	NeuronCount      = InputCount + HiddenCount + OutputCount
	ConnectionCount  = InputCount*HiddenCount + HiddenCount*OutputCount
	SpikeHistoryCap  = 256
	DefaultStrength  = 0.0
	DegradedStrength = 0.8
)

// Membrane potential bounds and landmarks, in millivolts.
const (
	MinPotential     = -80.0
	MaxPotential     = -30.0
	RestingPotential = -70.0
	SpikeThreshold   = -50.0
)

// NeuronID indexes a neuron in Network.Neurons.
type NeuronID int

// Neuron is one simulated cell. It is owned by its Network.
type Neuron struct {
	ID        NeuronID   `json:"id"`
	Label     string     `json:"label"`
	Type      NeuronType `json:"type"`
	Potential float64    `json:"potential"`

	// spikes holds the most recent spike timestamps, oldest first.
	spikes []float64
}

// Spikes returns a copy of the neuron's bounded spike history.
func (n *Neuron) Spikes() []float64 {
	out := make([]float64, len(n.spikes))
	copy(out, n.spikes)
	return out
}

// LastSpike returns the latest spike timestamp and whether one exists.
func (n *Neuron) LastSpike() (float64, bool) {
	if len(n.spikes) == 0 {
		return 0, false
	}
	return n.spikes[len(n.spikes)-1], true
}

// RecordSpike appends t to the spike history. Timestamps must be strictly
// increasing; a timestamp at or before the last one is rejected.
func (n *Neuron) RecordSpike(t float64) bool {
	if last, ok := n.LastSpike(); ok && t <= last {
		return false
	}
	if len(n.spikes) == SpikeHistoryCap {
		copy(n.spikes, n.spikes[1:])
		n.spikes = n.spikes[:len(n.spikes)-1]
	}
	n.spikes = append(n.spikes, t)
	return true
}

// Connection is a directed synapse, Input->Hidden or Hidden->Output.
// Degradation and Resilient are only meaningful under the degradation regime.
type Connection struct {
	Source      NeuronID `json:"source"`
	Target      NeuronID `json:"target"`
	Strength    float64  `json:"strength"`
	Degradation float64  `json:"degradation"`
	Resilient   bool     `json:"resilient"`
}

type edgeKey struct {
	source, target NeuronID
}

// Network is the fixed topology plus its mutable per-neuron and
// per-connection values.
type Network struct {
	Neurons     []Neuron
	Connections []Connection

	index    map[edgeKey]int
	incoming [][]int
	outgoing [][]int
	initial  float64
}

// New builds the network with every connection at initialStrength.
func New(initialStrength float64) *Network {
	n := &Network{
		Neurons:     make([]Neuron, 0, NeuronCount),
		Connections: make([]Connection, 0, ConnectionCount),
		index:       make(map[edgeKey]int, ConnectionCount),
		incoming:    make([][]int, NeuronCount),
		outgoing:    make([][]int, NeuronCount),
		initial:     ClampUnit(initialStrength),
	}

	for i := 0; i < InputCount; i++ {
		n.addNeuron(fmt.Sprintf("I%d", i+1), Input)
	}
	for i := 0; i < HiddenCount; i++ {
		typ := ExcitatoryHidden
		if i%InhibitoryEvery == 0 {
			typ = InhibitoryHidden
		}
		n.addNeuron(fmt.Sprintf("H%d", i+1), typ)
	}
	n.addNeuron("Out", Output)

	for _, in := range n.Inputs() {
		for _, h := range n.Hidden() {
			n.connect(in, h)
		}
	}
	for _, h := range n.Hidden() {
		n.connect(h, n.OutputID())
	}
	return n
}

func (n *Network) addNeuron(label string, typ NeuronType) {
	n.Neurons = append(n.Neurons, Neuron{
		ID:        NeuronID(len(n.Neurons)),
		Label:     label,
		Type:      typ,
		Potential: RestingPotential,
	})
}

func (n *Network) connect(src, dst NeuronID) {
	idx := len(n.Connections)
	n.Connections = append(n.Connections, Connection{Source: src, Target: dst, Strength: n.initial})
	n.index[edgeKey{src, dst}] = idx
	n.outgoing[src] = append(n.outgoing[src], idx)
	n.incoming[dst] = append(n.incoming[dst], idx)
}

// Reset returns every neuron to rest with an empty spike history and every
// connection to the initial strength with no degradation or resilience.
func (n *Network) Reset() {
	for i := range n.Neurons {
		n.Neurons[i].Potential = RestingPotential
		n.Neurons[i].spikes = nil
	}
	for i := range n.Connections {
		c := &n.Connections[i]
		c.Strength = n.initial
		c.Degradation = 0
		c.Resilient = false
	}
}

// InitialStrength is the strength every connection starts and resets to.
func (n *Network) InitialStrength() float64 {
	return n.initial
}

// ConnectionIndex returns the arena index of the src->dst connection.
func (n *Network) ConnectionIndex(src, dst NeuronID) (int, bool) {
	idx, ok := n.index[edgeKey{src, dst}]
	return idx, ok
}

// Incoming returns connection indices targeting id. Callers must not modify
// the returned slice.
func (n *Network) Incoming(id NeuronID) []int {
	return n.incoming[id]
}

// Outgoing returns connection indices leaving id. Callers must not modify
// the returned slice.
func (n *Network) Outgoing(id NeuronID) []int {
	return n.outgoing[id]
}

// Inputs returns the Input neuron IDs in order.
func (n *Network) Inputs() []NeuronID {
	return idRange(0, InputCount)
}

// Hidden returns the Hidden neuron IDs in order.
func (n *Network) Hidden() []NeuronID {
	return idRange(InputCount, InputCount+HiddenCount)
}

// OutputID returns the single Output neuron.
func (n *Network) OutputID() NeuronID {
	return NeuronID(InputCount + HiddenCount)
}

// ByLabel finds a neuron by its display label, e.g. "H3".
func (n *Network) ByLabel(label string) (NeuronID, bool) {
	for _, nr := range n.Neurons {
		if nr.Label == label {
			return nr.ID, true
		}
	}
	return 0, false
}

// TotalStrength sums nominal strength over all connections.
func (n *Network) TotalStrength() float64 {
	var sum float64
	for _, c := range n.Connections {
		sum += c.Strength
	}
	return sum
}

func idRange(from, to int) []NeuronID {
	ids := make([]NeuronID, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, NeuronID(i))
	}
	return ids
}

// ClampPotential restricts v to [MinPotential, MaxPotential]. NaN and
// infinities collapse to the resting potential.
func ClampPotential(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return RestingPotential
	}
	return clamp(v, MinPotential, MaxPotential)
}

// ClampUnit restricts v to [0, 1]. NaN and infinities collapse to 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
