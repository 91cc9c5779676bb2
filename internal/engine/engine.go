// Package engine owns one spiking network and everything that drives it.
//
// An Engine wires the clock, scheduler, mode controller, membrane dynamics,
// spike detection, plasticity model, signal field and trace buffer behind a
// single mutex. Virtual time moves only through Advance, either called
// directly or from the real-time driver started by Start. Every step runs
// potential, spikes, plasticity and trace in that order.
package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nvandessel/neurosim/internal/clock"
	"github.com/nvandessel/neurosim/internal/logging"
	"github.com/nvandessel/neurosim/internal/membrane"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/propagation"
	"github.com/nvandessel/neurosim/internal/scheduler"
	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/topology"
	"github.com/nvandessel/neurosim/internal/trace"
)

// maxRealtimeAdvance bounds how much virtual time one driver tick may
// cover, so a suspended process does not replay minutes of simulation.
const maxRealtimeAdvance = time.Second

// pcgStream is the second PCG word derived from the seed.
const pcgStream = 0x9e3779b97f4a7c15

// StepReport describes one completed simulation step.
type StepReport struct {
	Step       int64          `json:"step"`
	Session    float64        `json:"session"`
	Phase      float64        `json:"phase"`
	Mode       mode.State     `json:"mode"`
	GateOpen   bool           `json:"gate_open"`
	Spikes     []spikes.Event `json:"spikes"`
	Potentials []float64      `json:"potentials"`
}

// Observer receives step and transition notifications. Calls happen with
// the engine lock held; observers must not call back into the Engine.
type Observer interface {
	ObserveStep(StepReport)
	ObserveTransition(res mode.Result, session float64)
}

// Engine is the simulation. All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg         Config
	seed        uint64
	logger      *slog.Logger
	transitions *logging.TransitionLogger
	observers   []Observer

	rng      *rand.Rand
	net      *topology.Network
	model    plasticity.Model
	dyn      *membrane.Dynamics
	detector *spikes.Detector
	healthy  *spikes.HealthyOutput
	degraded *spikes.DegradedOutput
	field    *propagation.Field
	traces   *trace.Buffer
	sched    *scheduler.Scheduler
	clock    *clock.Clock
	ctrl     *mode.Controller

	outputTok    scheduler.Token
	outputParked time.Duration
	activity     []int
	analysis     *Analysis
	steps        int64

	// refreshed on the slow tick
	reacquisition time.Duration
	countdown     float64

	started bool
	done    chan struct{}
}

// New builds an engine in the Idle state. logger and transitions may be nil.
func New(cfg Config, logger *slog.Logger, transitions *logging.TransitionLogger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	model, err := plasticity.New(cfg.Regime, cfg.Plasticity)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	net := topology.New(model.InitialStrength())
	e := &Engine{
		cfg:         cfg,
		seed:        seed,
		logger:      logger,
		transitions: transitions,
		rng:         rand.New(rand.NewPCG(seed, seed^pcgStream)),
		net:         net,
		model:       model,
		dyn:         membrane.New(cfg.Membrane),
		detector:    spikes.NewDetector(len(net.Neurons), topology.SpikeThreshold),
		healthy:     spikes.NewHealthyOutput(cfg.Healthy),
		degraded:    spikes.NewDegradedOutput(cfg.Degraded, net),
		field:       propagation.New(cfg.Propagation),
		traces:      trace.NewBuffer(len(net.Neurons), cfg.Trace),
		sched:       scheduler.New(),
		clock:       clock.New(cfg.Step),
		activity:    make([]int, len(net.Connections)),
	}
	e.ctrl = mode.New(e.clock, e.sched, mode.Options{
		LockoutFactor:    cfg.LockoutFactor,
		AllowPatternNone: model.AllowsPatternNone(),
	})

	ticks := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"fast", cfg.FastTick, e.fastTick},
		{"step", cfg.Step, e.step},
		{"slow", cfg.SlowTick, e.slowTick},
	}
	for _, t := range ticks {
		if err := e.sched.Every(t.name, t.interval, t.fn); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Seed returns the seed in use, including a generated one.
func (e *Engine) Seed() uint64 {
	return e.seed
}

// Regime returns the plasticity regime.
func (e *Engine) Regime() plasticity.Regime {
	return e.model.Regime()
}

// AddObserver registers o for step and transition notifications.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Advance moves virtual time forward by d, running every tick that falls due.
func (e *Engine) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sched.Advance(d)
}

// Start drives the engine in real time until ctx is done. It returns false
// if the engine was already started.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		e.logger.Debug("engine already started")
		return false
	}
	e.started = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
	return true
}

// Done is closed when the real-time driver exits. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.FastTick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d := now.Sub(last)
			last = now
			if d > maxRealtimeAdvance {
				d = maxRealtimeAdvance
			}
			e.Advance(d)
		}
	}
}

// SelectPattern starts or switches the training pattern.
func (e *Engine) SelectPattern(p topology.PatternID) mode.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.ctrl.State()
	res := e.ctrl.SelectPattern(p)
	if res.Accepted {
		pattern, _ := topology.LookupPattern(p)
		if from.Kind == mode.Idle {
			e.model.Begin(e.net, e.rng)
		} else {
			e.field.DropInactive(e.net, pattern)
		}
		e.armOutput()
	}
	e.record(res)
	return res
}

// Analyze freezes training and captures the connection values.
func (e *Engine) Analyze() mode.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.ctrl.Analyze()
	if res.Accepted {
		e.outputParked = 0
		if rem, ok := e.sched.Remaining(e.outputTok); ok {
			e.sched.Cancel(e.outputTok)
			e.outputParked = rem
		}
		e.outputTok = 0
		e.field.Clear()
		e.analysis = e.captureAnalysis()
	}
	e.record(res)
	return res
}

// ExitAnalyze resumes training and discards the analysis snapshot.
func (e *Engine) ExitAnalyze() mode.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.ctrl.ExitAnalyze()
	if res.Accepted {
		if e.outputParked > 0 {
			e.outputTok = e.sched.After(e.outputParked, e.outputDue)
		}
		e.outputParked = 0
		e.analysis = nil
	}
	e.record(res)
	return res
}

// Reset returns to Idle with every value reinitialized.
func (e *Engine) Reset() mode.Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.ctrl.Reset(e.reinit)
	e.record(res)
	return res
}

// Do dispatches a parsed command. p is used only by select_pattern.
func (e *Engine) Do(cmd mode.Command, p topology.PatternID) mode.Result {
	switch cmd {
	case mode.CommandSelectPattern:
		return e.SelectPattern(p)
	case mode.CommandAnalyze:
		return e.Analyze()
	case mode.CommandExitAnalyze:
		return e.ExitAnalyze()
	case mode.CommandReset:
		return e.Reset()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.ctrl.State()
	res := mode.Result{Command: cmd, From: st, To: st, Reason: "unknown command"}
	e.record(res)
	return res
}

func (e *Engine) reinit() {
	e.sched.Cancel(e.outputTok)
	e.outputTok = 0
	e.outputParked = 0
	e.net.Reset()
	e.detector.Reset()
	e.healthy.Cancel()
	e.degraded.Cancel()
	e.field.Clear()
	e.traces.Clear()
	e.analysis = nil
	e.steps = 0
	e.reacquisition = 0
	e.countdown = 0
}

// armOutput cancels any pending Output firing and schedules the next one
// for the phase that just began. The healthy firing runs on phase time and
// is checked every step; only the degraded firing uses a scheduler timer.
func (e *Engine) armOutput() {
	e.sched.Cancel(e.outputTok)
	e.outputTok = 0

	switch e.model.Regime() {
	case plasticity.RegimeDegradation:
		e.degraded.Cancel()
		e.armDegradedOutput()
	default:
		e.healthy.BeginPhase(e.rng)
		e.countdown = e.cfg.Healthy.WindowStart
	}
}

func (e *Engine) armDegradedOutput() {
	mean := plasticity.MeanDegradation(e.net, e.net.Incoming(e.net.OutputID()))
	e.outputTok = e.sched.After(e.degraded.NextInterval(mean, e.rng), e.outputDue)
}

// outputDue runs from the scheduler. It only marks the degraded firing; the
// next step consumes it.
func (e *Engine) outputDue() {
	e.outputTok = 0
	e.degraded.MarkDue()
}

func (e *Engine) fastTick() {
	st := e.ctrl.State()
	if st.Kind != mode.Training {
		return
	}
	pattern, _ := topology.LookupPattern(st.Pattern)
	e.field.Tick(e.net, pattern, e.rng)
}

func (e *Engine) step() {
	st := e.ctrl.State()
	if st.Kind != mode.Training || !e.clock.Tick() {
		return
	}

	elapsed := e.clock.Elapsed()
	session := e.clock.Session()
	dt := e.clock.StepSeconds()
	ramp := membrane.Ramp(elapsed, e.cfg.Membrane.RampDuration)
	pattern, _ := topology.LookupPattern(st.Pattern)
	at := spikes.Stamp{Session: session, Phase: elapsed}

	e.dyn.Step(e.net, pattern, elapsed, e.depolarizationScale, e.rng)

	crossings := e.detector.Detect(e.net, at)
	var output, noise []spikes.Event
	out := e.net.OutputID()
	if e.model.Regime() == plasticity.RegimeDegradation {
		if e.degraded.Check() {
			output = append(output, spikes.Event{Neuron: out, Time: session, PhaseTime: elapsed})
			e.armDegradedOutput()
		}
		noise = e.degraded.Noise(at, dt, e.rng)
	} else {
		gate := e.ctrl.GateOpen() && e.model.OutputGate(e.net)
		if fireAt, ok := e.healthy.Check(elapsed, gate); ok {
			output = append(output, spikes.Event{Neuron: out, Time: session - (elapsed - fireAt), PhaseTime: fireAt})
		}
	}

	var events []spikes.Event
	for _, ev := range spikes.Merge(crossings, output, noise) {
		if !e.net.Neurons[ev.Neuron].RecordSpike(ev.Time) {
			continue
		}
		events = append(events, ev)
		if e.net.Neurons[ev.Neuron].Type.IsHidden() {
			e.field.LaunchFrom(e.net, ev.Neuron, e.rng)
		}
	}

	e.field.Activity(e.activity)
	e.model.Step(e.net, plasticity.StepInput{
		Elapsed:  elapsed,
		Ramp:     ramp,
		Dt:       dt,
		Activity: e.activity,
	}, e.rng)

	e.traces.Record(e.net, events, session)
	e.steps++

	e.logger.Log(context.Background(), logging.LevelTrace, "step",
		"step", e.steps, "elapsed", elapsed, "spikes", len(events),
		"signals", e.field.Len(), "gate", e.ctrl.GateOpen())

	if len(e.observers) == 0 {
		return
	}
	report := StepReport{
		Step:       e.steps,
		Session:    session,
		Phase:      elapsed,
		Mode:       st,
		GateOpen:   e.ctrl.GateOpen(),
		Spikes:     events,
		Potentials: make([]float64, len(e.net.Neurons)),
	}
	for i, nr := range e.net.Neurons {
		report.Potentials[i] = nr.Potential
	}
	for _, o := range e.observers {
		o.ObserveStep(report)
	}
}

func (e *Engine) slowTick() {
	e.reacquisition = e.ctrl.Reacquisition()

	st := e.ctrl.State()
	if st.Kind != mode.Training || e.model.Regime() != plasticity.RegimeReinforcement || e.healthy.Fired() {
		if st.Kind != mode.Analyzing {
			e.countdown = 0
		}
		return
	}
	e.countdown = max(0, e.cfg.Healthy.WindowStart-e.clock.Elapsed())
}

func (e *Engine) depolarizationScale(id topology.NeuronID) float64 {
	return e.model.DepolarizationScale(e.net, id)
}

func (e *Engine) record(res mode.Result) {
	session := e.clock.Session()
	if res.Accepted {
		e.logger.Info("mode transition",
			"command", res.Command, "from", res.From.String(), "to", res.To.String())
	} else {
		e.logger.Debug("command ignored",
			"command", res.Command, "state", res.From.String(), "reason", res.Reason)
	}
	e.transitions.Log(logging.TransitionEvent{
		Command:  string(res.Command),
		Accepted: res.Accepted,
		From:     res.From.String(),
		To:       res.To.String(),
		Reason:   res.Reason,
		Elapsed:  e.clock.Elapsed(),
		Session:  session,
	})
	for _, o := range e.observers {
		o.ObserveTransition(res, session)
	}
}
