// Package clock tracks simulated time for the training session.
//
// Time is counted in whole steps and converted to seconds on read, so two
// runs with the same step size agree exactly on every elapsed value.
package clock

import "time"

// Clock counts steps since the current training phase began and since the
// session began. It only moves when Tick is called while running and not
// paused.
type Clock struct {
	step time.Duration

	phaseTicks   int64
	sessionTicks int64
	running      bool
	paused       bool
}

// New returns a stopped clock that advances by step on each Tick.
func New(step time.Duration) *Clock {
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	return &Clock{step: step}
}

// Step returns the per-tick increment.
func (c *Clock) Step() time.Duration {
	return c.step
}

// StepSeconds returns the per-tick increment in seconds.
func (c *Clock) StepSeconds() float64 {
	return c.step.Seconds()
}

// StartPhase zeroes phase time and runs the clock. Session time is kept.
func (c *Clock) StartPhase() {
	c.phaseTicks = 0
	c.running = true
	c.paused = false
}

// Tick advances by one step and reports whether time moved.
func (c *Clock) Tick() bool {
	if !c.running || c.paused {
		return false
	}
	c.phaseTicks++
	c.sessionTicks++
	return true
}

// Pause freezes the clock. Elapsed keeps returning the value at pause.
func (c *Clock) Pause() {
	c.paused = true
}

// Resume continues a paused clock from where it stopped.
func (c *Clock) Resume() {
	c.paused = false
}

// Reset stops the clock and zeroes both phase and session time.
func (c *Clock) Reset() {
	*c = Clock{step: c.step}
}

// Running reports whether a phase has been started since the last Reset.
func (c *Clock) Running() bool {
	return c.running
}

// Paused reports whether the clock is frozen.
func (c *Clock) Paused() bool {
	return c.paused
}

// Elapsed returns seconds since the current phase started.
func (c *Clock) Elapsed() float64 {
	return float64(c.phaseTicks) * c.step.Seconds()
}

// ElapsedAtPause returns the frozen elapsed value while paused.
func (c *Clock) ElapsedAtPause() (float64, bool) {
	if !c.paused {
		return 0, false
	}
	return c.Elapsed(), true
}

// Session returns seconds of training time since the session began. It is
// monotonic across phase switches and only rewinds on Reset.
func (c *Clock) Session() float64 {
	return float64(c.sessionTicks) * c.step.Seconds()
}

// PhaseTicks returns the raw step count of the current phase.
func (c *Clock) PhaseTicks() int64 {
	return c.phaseTicks
}
