package topology

import (
	"fmt"
	"strings"
)

// NeuronType classifies a neuron's role in the network.
type NeuronType int

const (
	Input NeuronType = iota
	ExcitatoryHidden
	InhibitoryHidden
	Output
)

// String returns the display name used in snapshots and logs.
func (t NeuronType) String() string {
	switch t {
	case Input:
		return "Input"
	case ExcitatoryHidden:
		return "Excitatory"
	case InhibitoryHidden:
		return "Inhibitory"
	case Output:
		return "Output"
	default:
		return fmt.Sprintf("NeuronType(%d)", int(t))
	}
}

// IsHidden reports whether t is one of the hidden types.
func (t NeuronType) IsHidden() bool {
	return t == ExcitatoryHidden || t == InhibitoryHidden
}

// MarshalText encodes the type by name.
func (t NeuronType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name produced by MarshalText.
func (t *NeuronType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Input":
		*t = Input
	case "Excitatory":
		*t = ExcitatoryHidden
	case "Inhibitory":
		*t = InhibitoryHidden
	case "Output":
		*t = Output
	default:
		return fmt.Errorf("unknown neuron type %q", string(b))
	}
	return nil
}

// PatternID names a training pattern. PatternNone selects every input.
type PatternID string

const (
	PatternNone PatternID = ""
	PatternA    PatternID = "A"
	PatternB    PatternID = "B"
)

// String returns "A", "B" or "None".
func (p PatternID) String() string {
	if p == PatternNone {
		return "None"
	}
	return string(p)
}

// ParsePattern accepts "A", "B", "none" or "" (case-insensitive).
func ParsePattern(s string) (PatternID, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return PatternA, nil
	case "B":
		return PatternB, nil
	case "", "NONE":
		return PatternNone, nil
	default:
		return PatternNone, fmt.Errorf("unknown pattern %q (valid: A, B, none)", s)
	}
}

// Pattern is the static set of Input neurons considered active.
type Pattern struct {
	ID     PatternID
	Active []NeuronID
}

var patterns = map[PatternID]Pattern{
	PatternA:    {ID: PatternA, Active: []NeuronID{0, 2, 4}},
	PatternB:    {ID: PatternB, Active: []NeuronID{1, 3, 5}},
	PatternNone: {ID: PatternNone, Active: []NeuronID{0, 1, 2, 3, 4, 5}},
}

// LookupPattern returns the definition for id.
func LookupPattern(id PatternID) (Pattern, bool) {
	p, ok := patterns[id]
	if !ok {
		return Pattern{}, false
	}
	active := make([]NeuronID, len(p.Active))
	copy(active, p.Active)
	return Pattern{ID: p.ID, Active: active}, true
}

// Includes reports whether id is an active input under p.
func (p Pattern) Includes(id NeuronID) bool {
	for _, a := range p.Active {
		if a == id {
			return true
		}
	}
	return false
}
