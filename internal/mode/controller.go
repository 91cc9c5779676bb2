package mode

import (
	"fmt"
	"time"

	"github.com/nvandessel/neurosim/internal/clock"
	"github.com/nvandessel/neurosim/internal/scheduler"
	"github.com/nvandessel/neurosim/internal/topology"
)

// DefaultLockoutFactor multiplies time spent on the previous pattern to get
// the gate closure after a switch.
const DefaultLockoutFactor = 1.5

// Timers is the part of the scheduler the controller needs.
type Timers interface {
	After(delay time.Duration, fn func()) scheduler.Token
	Cancel(tok scheduler.Token) bool
	Remaining(tok scheduler.Token) (time.Duration, bool)
}

// Options configures a Controller.
type Options struct {
	LockoutFactor    float64
	AllowPatternNone bool
}

// Controller is the mode state machine.
type Controller struct {
	opts   Options
	clock  *clock.Clock
	timers Timers

	state    State
	gateOpen bool

	lockTok scheduler.Token
	// parked holds the unexpired lockout while analyzing.
	parked time.Duration
}

// New returns an Idle controller driving c.
func New(c *clock.Clock, t Timers, opts Options) *Controller {
	if opts.LockoutFactor <= 0 {
		opts.LockoutFactor = DefaultLockoutFactor
	}
	return &Controller{opts: opts, clock: c, timers: t, gateOpen: true}
}

// State returns the active state.
func (c *Controller) State() State {
	return c.state
}

// GateOpen reports whether the reinforcement gate is open.
func (c *Controller) GateOpen() bool {
	return c.gateOpen
}

// Reacquisition returns how long the gate stays closed. While analyzing it
// is the frozen remainder.
func (c *Controller) Reacquisition() time.Duration {
	if c.state.Kind == Analyzing {
		return c.parked
	}
	if rem, ok := c.timers.Remaining(c.lockTok); ok {
		return rem
	}
	return 0
}

// SelectPattern starts training p from Idle, or switches to p from training
// another pattern.
func (c *Controller) SelectPattern(p topology.PatternID) Result {
	res := Result{Command: CommandSelectPattern, Pattern: p, From: c.state}

	if _, ok := topology.LookupPattern(p); !ok {
		return reject(res, fmt.Sprintf("unknown pattern %q", p))
	}
	if p == topology.PatternNone && !c.opts.AllowPatternNone {
		return reject(res, "pattern None requires the degradation regime")
	}

	switch c.state.Kind {
	case Idle:
		c.clock.StartPhase()
		c.gateOpen = true
		c.state = State{Kind: Training, Pattern: p}

	case Training:
		if c.state.Pattern == p {
			return reject(res, fmt.Sprintf("already training pattern %s", p))
		}
		lockout := time.Duration(c.clock.Elapsed() * c.opts.LockoutFactor * float64(time.Second))
		c.clock.StartPhase()
		c.armLockout(lockout)
		c.state = State{Kind: Training, Pattern: p}
		res.Lockout = lockout.Seconds()

	case Analyzing:
		return reject(res, "exit analysis before selecting a pattern")

	default:
		return reject(res, "reset in progress")
	}

	res.Accepted = true
	res.To = c.state
	return res
}

// Analyze freezes training. It is valid only while training.
func (c *Controller) Analyze() Result {
	res := Result{Command: CommandAnalyze, From: c.state}
	if c.state.Kind != Training {
		return reject(res, "analysis requires an active training pattern")
	}

	c.parked = 0
	if rem, ok := c.timers.Remaining(c.lockTok); ok {
		c.timers.Cancel(c.lockTok)
		c.parked = rem
	}
	c.lockTok = 0
	c.clock.Pause()
	c.state = State{Kind: Analyzing, ResumePattern: c.state.Pattern, ResumeElapsed: c.clock.Elapsed()}

	res.Accepted = true
	res.To = c.state
	return res
}

// ExitAnalyze resumes the pattern that was training before Analyze.
func (c *Controller) ExitAnalyze() Result {
	res := Result{Command: CommandExitAnalyze, From: c.state}
	if c.state.Kind != Analyzing {
		return reject(res, "not analyzing")
	}

	c.clock.Resume()
	if c.parked > 0 {
		c.armLockout(c.parked)
	}
	c.parked = 0
	c.state = State{Kind: Training, Pattern: c.state.ResumePattern}

	res.Accepted = true
	res.To = c.state
	return res
}

// Reset returns to Idle from any state. reinit runs while the state is
// Resetting, after timers are cancelled and the clock is zeroed.
func (c *Controller) Reset(reinit func()) Result {
	res := Result{Command: CommandReset, From: c.state}

	c.state = State{Kind: Resetting}
	c.timers.Cancel(c.lockTok)
	c.lockTok = 0
	c.parked = 0
	c.gateOpen = true
	c.clock.Reset()
	if reinit != nil {
		reinit()
	}
	c.state = State{Kind: Idle}

	res.Accepted = true
	res.To = c.state
	return res
}

func (c *Controller) armLockout(d time.Duration) {
	c.timers.Cancel(c.lockTok)
	c.lockTok = 0
	if d <= 0 {
		c.gateOpen = true
		return
	}
	c.gateOpen = false
	c.lockTok = c.timers.After(d, func() {
		c.gateOpen = true
		c.lockTok = 0
	})
}

func reject(res Result, reason string) Result {
	res.Accepted = false
	res.Reason = reason
	res.To = res.From
	return res
}
