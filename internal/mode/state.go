// Package mode implements the training state machine.
//
// The controller owns the simulation clock and the reinforcement gate. It
// accepts every command in every state; commands that do not apply are
// rejected with a reason and leave the state untouched.
package mode

import (
	"fmt"
	"strings"

	"github.com/nvandessel/neurosim/internal/topology"
)

// Kind tags the active state.
type Kind int

const (
	Idle Kind = iota
	Training
	Analyzing
	Resetting
)

// String returns the state name.
func (k Kind) String() string {
	switch k {
	case Idle:
		return "Idle"
	case Training:
		return "Training"
	case Analyzing:
		return "Analyzing"
	case Resetting:
		return "Resetting"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{Idle, Training, Analyzing, Resetting} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown mode kind %q", string(b))
}

// State is the tagged mode. Pattern is set while Training; ResumePattern
// and ResumeElapsed are set while Analyzing.
type State struct {
	Kind          Kind               `json:"kind"`
	Pattern       topology.PatternID `json:"pattern,omitempty"`
	ResumePattern topology.PatternID `json:"resume_pattern,omitempty"`
	ResumeElapsed float64            `json:"resume_elapsed,omitempty"`
}

// String renders e.g. "Training(A)" or "Analyzing(B@4.20s)".
func (s State) String() string {
	switch s.Kind {
	case Training:
		return fmt.Sprintf("Training(%s)", s.Pattern)
	case Analyzing:
		return fmt.Sprintf("Analyzing(%s@%.2fs)", s.ResumePattern, s.ResumeElapsed)
	default:
		return s.Kind.String()
	}
}

// ActivePattern is the pattern whose inputs are driven: the training
// pattern, or the one analysis will resume.
func (s State) ActivePattern() (topology.PatternID, bool) {
	switch s.Kind {
	case Training:
		return s.Pattern, true
	case Analyzing:
		return s.ResumePattern, true
	}
	return topology.PatternNone, false
}

// Command names an external request.
type Command string

const (
	CommandSelectPattern Command = "select_pattern"
	CommandAnalyze       Command = "analyze"
	CommandExitAnalyze   Command = "exit_analyze"
	CommandReset         Command = "reset"
)

// ParseCommand accepts command names with '-' or '_' separators.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch c {
	case CommandSelectPattern, CommandAnalyze, CommandExitAnalyze, CommandReset:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q (valid: select_pattern, analyze, exit_analyze, reset)", s)
}

// Result reports what a command did. A rejected command has Accepted false
// and From equal to To.
type Result struct {
	Command  Command            `json:"command"`
	Pattern  topology.PatternID `json:"pattern,omitempty"`
	Accepted bool               `json:"accepted"`
	Reason   string             `json:"reason,omitempty"`
	From     State              `json:"from"`
	To       State              `json:"to"`
	// Lockout is the gate closure armed by a pattern switch, in seconds.
	Lockout float64 `json:"lockout,omitempty"`
}
