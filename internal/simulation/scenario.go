package simulation

import (
	"time"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/recording"
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/topology"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name   string
	Regime plasticity.Regime // empty means reinforcement
	Seed   uint64            // 0 means 1; scenarios are always reproducible

	// Config, when non-nil, replaces the default engine configuration.
	// Regime and Seed above still apply.
	Config *engine.Config

	Actions  []Action
	Duration time.Duration

	// FrameEvery is the snapshot interval. Zero means one frame per step.
	FrameEvery time.Duration
}

// Action is a command issued at virtual time At.
type Action struct {
	At      time.Duration
	Command mode.Command
	Pattern topology.PatternID
}

// Select returns a select_pattern action.
func Select(at time.Duration, p topology.PatternID) Action {
	return Action{At: at, Command: mode.CommandSelectPattern, Pattern: p}
}

// Analyze returns an analyze action.
func Analyze(at time.Duration) Action {
	return Action{At: at, Command: mode.CommandAnalyze}
}

// ExitAnalyze returns an exit_analyze action.
func ExitAnalyze(at time.Duration) Action {
	return Action{At: at, Command: mode.CommandExitAnalyze}
}

// Reset returns a reset action.
func Reset(at time.Duration) Action {
	return Action{At: at, Command: mode.CommandReset}
}

// Frame is a snapshot taken after advancing to At.
type Frame struct {
	At       time.Duration
	Snapshot engine.Snapshot
}

// CommandResult pairs an action with what the engine did.
type CommandResult struct {
	Action Action
	Result mode.Result
}

// SimulationResult captures the frames, commands and step reports of a run.
type SimulationResult struct {
	Frames   []Frame
	Commands []CommandResult
	Steps    []engine.StepReport
	Engine   *engine.Engine
	Recorder *recording.Recorder
	RunID    string
}

// Final returns the last frame's snapshot.
func (r SimulationResult) Final() engine.Snapshot {
	if len(r.Frames) == 0 {
		return engine.Snapshot{}
	}
	return r.Frames[len(r.Frames)-1].Snapshot
}

// SpikesOf returns every spike recorded for the given neuron label.
func (r SimulationResult) SpikesOf(label string) []spikes.Event {
	labels := r.Engine.Labels()
	var out []spikes.Event
	for _, rep := range r.Steps {
		for _, ev := range rep.Spikes {
			if int(ev.Neuron) < len(labels) && labels[ev.Neuron] == label {
				out = append(out, ev)
			}
		}
	}
	return out
}

// FramesBetween returns frames with from <= At <= to.
func (r SimulationResult) FramesBetween(from, to time.Duration) []Frame {
	var out []Frame
	for _, f := range r.Frames {
		if f.At >= from && f.At <= to {
			out = append(out, f)
		}
	}
	return out
}
