package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/topology"
)

func newTestEngine(t *testing.T, regime plasticity.Regime) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Regime = regime
	cfg.Seed = 5
	e, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

type recordingObserver struct {
	steps       []StepReport
	transitions []mode.Result
}

func (o *recordingObserver) ObserveStep(r StepReport) { o.steps = append(o.steps, r) }

func (o *recordingObserver) ObserveTransition(res mode.Result, session float64) {
	o.transitions = append(o.transitions, res)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero step", func(c *Config) { c.Step = 0 }},
		{"negative fast tick", func(c *Config) { c.FastTick = -time.Millisecond }},
		{"window reversed", func(c *Config) { c.Healthy.WindowEnd = c.Healthy.WindowStart - 1 }},
		{"unknown regime", func(c *Config) { c.Regime = "pathological" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, nil, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_GeneratesSeed(t *testing.T) {
	e, err := New(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Seed() == 0 {
		t.Error("Seed() = 0, want a generated seed")
	}
}

func TestAdvance_IdleDoesNotStep(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)
	e.Advance(3 * time.Second)

	snap := e.Snapshot()
	if snap.Steps != 0 || snap.Elapsed != 0 {
		t.Errorf("idle engine stepped: steps=%d elapsed=%v", snap.Steps, snap.Elapsed)
	}
}

func TestAdvance_TrainingSteps(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)
	if res := e.SelectPattern(topology.PatternA); !res.Accepted {
		t.Fatalf("select A rejected: %s", res.Reason)
	}
	e.Advance(2 * time.Second)

	snap := e.Snapshot()
	if snap.Steps != 20 {
		t.Errorf("steps = %d, want 20", snap.Steps)
	}
	if snap.ModeLabel != "Training(A)" {
		t.Errorf("mode = %q, want Training(A)", snap.ModeLabel)
	}
	if len(snap.Neurons) != len(e.Labels()) || len(snap.Connections) == 0 {
		t.Errorf("snapshot has %d neurons, %d connections", len(snap.Neurons), len(snap.Connections))
	}
	traces := e.Traces()
	if len(traces) != len(snap.Neurons) {
		t.Fatalf("traces for %d neurons, want %d", len(traces), len(snap.Neurons))
	}
	if len(traces[len(traces)-1]) == 0 {
		t.Error("no trace samples for the Output neuron")
	}
}

func TestObserver(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)
	obs := &recordingObserver{}
	e.AddObserver(obs)

	e.SelectPattern(topology.PatternB)
	e.Advance(time.Second)
	e.Analyze()
	e.Analyze()

	if len(obs.steps) != 10 {
		t.Errorf("observed %d steps, want 10", len(obs.steps))
	}
	for i, r := range obs.steps {
		if r.Step != int64(i+1) {
			t.Errorf("step %d reported as %d", i+1, r.Step)
		}
		if len(r.Potentials) != len(e.Labels()) {
			t.Errorf("step %d has %d potentials", r.Step, len(r.Potentials))
		}
	}
	if len(obs.transitions) != 3 {
		t.Fatalf("observed %d transitions, want 3", len(obs.transitions))
	}
	if obs.transitions[2].Accepted {
		t.Error("second analyze should be rejected")
	}
}

func TestDo_UnknownCommand(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)

	res := e.Do("explode", topology.PatternNone)
	if res.Accepted {
		t.Fatal("unknown command accepted")
	}
	if res.Reason != "unknown command" {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.From.Kind != mode.Idle || res.To.Kind != mode.Idle {
		t.Errorf("state changed: %s -> %s", res.From, res.To)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)
	e.SelectPattern(topology.PatternA)
	e.Advance(time.Second)

	snap := e.Snapshot()
	snap.Neurons[0].Potential = 999
	snap.Connections[0].Strength = 999

	again := e.Snapshot()
	if again.Neurons[0].Potential == 999 || again.Connections[0].Strength == 999 {
		t.Error("mutating a snapshot changed the engine")
	}
}

func TestAnalyze_CapturesAndReleases(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeDegradation)
	e.SelectPattern(topology.PatternNone)
	e.Advance(5 * time.Second)

	e.Analyze()
	snap := e.Snapshot()
	if snap.Analysis == nil {
		t.Fatal("no analysis captured")
	}
	if len(snap.Analysis.Strength) != len(snap.Connections) {
		t.Errorf("analysis has %d strengths, want %d", len(snap.Analysis.Strength), len(snap.Connections))
	}
	if len(snap.Signals) != 0 {
		t.Errorf("%d signals in flight while analyzing", len(snap.Signals))
	}

	e.ExitAnalyze()
	if e.Snapshot().Analysis != nil {
		t.Error("analysis kept after exit")
	}
}

func TestStart_Twice(t *testing.T) {
	e := newTestEngine(t, plasticity.RegimeReinforcement)
	if e.Done() != nil {
		t.Error("Done() before Start should be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !e.Start(ctx) {
		t.Fatal("first Start returned false")
	}
	if e.Start(ctx) {
		t.Error("second Start returned true")
	}

	cancel()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop after cancel")
	}
}

func TestHealthyOutput_SelectBetweenTicks(t *testing.T) {
	for seed := uint64(1); seed <= 300; seed++ {
		cfg := DefaultConfig()
		cfg.Seed = seed
		e, err := New(cfg, nil, nil)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		e.Advance(time.Duration(seed%97) * time.Millisecond)
		e.SelectPattern(topology.PatternA)
		e.Advance(16 * time.Second)

		if got := e.Snapshot().Elapsed; got != 16 {
			t.Fatalf("seed %d: elapsed = %v, want 16", seed, got)
		}
		history := e.SpikeHistory()
		out := history[len(history)-1]
		if len(out) != 1 {
			t.Errorf("seed %d: %d Output spikes by 16s, want 1", seed, len(out))
			continue
		}
		if at := out[0].PhaseTime; at < 13 || at > 16 {
			t.Errorf("seed %d: Output spike at %.4fs, want within [13, 16]", seed, at)
		}
	}
}
