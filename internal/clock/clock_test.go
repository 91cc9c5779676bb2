package clock

import (
	"testing"
	"time"
)

func TestClock_StoppedUntilStarted(t *testing.T) {
	c := New(100 * time.Millisecond)
	if c.Tick() {
		t.Error("Tick on stopped clock should not advance")
	}
	if c.Elapsed() != 0 || c.Session() != 0 {
		t.Errorf("elapsed=%f session=%f, want 0", c.Elapsed(), c.Session())
	}
}

func TestClock_PhaseAndSession(t *testing.T) {
	c := New(100 * time.Millisecond)
	c.StartPhase()
	for i := 0; i < 25; i++ {
		c.Tick()
	}
	if got := c.Elapsed(); got != 2.5 {
		t.Errorf("Elapsed = %f, want 2.5", got)
	}

	c.StartPhase()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	if got := c.Elapsed(); got != 0.5 {
		t.Errorf("Elapsed after new phase = %f, want 0.5", got)
	}
	if got := c.Session(); got != 3.0 {
		t.Errorf("Session = %f, want 3.0", got)
	}
}

func TestClock_PauseFreezes(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.StartPhase()
	c.Tick()
	c.Tick()
	c.Pause()

	at, ok := c.ElapsedAtPause()
	if !ok || at != 0.1 {
		t.Fatalf("ElapsedAtPause = %f, %v; want 0.1, true", at, ok)
	}
	for i := 0; i < 10; i++ {
		if c.Tick() {
			t.Fatal("paused clock advanced")
		}
	}
	if c.Elapsed() != at {
		t.Errorf("Elapsed changed while paused: %f", c.Elapsed())
	}

	c.Resume()
	c.Tick()
	if _, ok := c.ElapsedAtPause(); ok {
		t.Error("ElapsedAtPause should report false after Resume")
	}
	if got := c.PhaseTicks(); got != 3 {
		t.Errorf("PhaseTicks = %d, want 3", got)
	}
}

func TestClock_Reset(t *testing.T) {
	c := New(100 * time.Millisecond)
	c.StartPhase()
	c.Tick()
	c.Pause()
	c.Reset()

	if c.Running() || c.Paused() || c.Session() != 0 || c.Elapsed() != 0 {
		t.Errorf("clock not reset: %+v", c)
	}
	if c.Step() != 100*time.Millisecond {
		t.Error("Reset must keep the step size")
	}
}

func TestNew_DefaultStep(t *testing.T) {
	if got := New(0).Step(); got != 100*time.Millisecond {
		t.Errorf("Step = %v, want 100ms", got)
	}
}
