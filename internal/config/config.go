// Package config provides unified configuration loading for neurosim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nvandessel/neurosim/internal/constants"
	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/logging"
	"github.com/nvandessel/neurosim/internal/pathutil"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"gopkg.in/yaml.v3"
)

// NeurosimConfig contains all neurosim configuration settings.
type NeurosimConfig struct {
	// Simulation selects the regime, seed and tick intervals.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Membrane tunes the potential update.
	Membrane MembraneConfig `json:"membrane" yaml:"membrane"`

	// Reinforcement tunes the healthy learning regime.
	Reinforcement ReinforcementConfig `json:"reinforcement" yaml:"reinforcement"`

	// Degradation tunes the pathological regime.
	Degradation DegradationConfig `json:"degradation" yaml:"degradation"`

	// Trace sizes the rolling potential and spike buffers.
	Trace TraceConfig `json:"trace" yaml:"trace"`

	// Recording controls the SQLite run log.
	Recording RecordingConfig `json:"recording" yaml:"recording"`

	// Logging contains settings for operational and transition logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Server configures the HTTP view and command rate limits.
	Server ServerConfig `json:"server" yaml:"server"`
}

// SimulationConfig holds engine-wide settings.
type SimulationConfig struct {
	// Regime is "reinforcement" (default) or "degradation".
	Regime string `json:"regime" yaml:"regime"`

	// Seed drives every random draw. 0 picks a time-based seed.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Step is the full simulation step interval.
	Step time.Duration `json:"step" yaml:"step"`

	// FastTick is the signal propagation interval.
	FastTick time.Duration `json:"fast_tick" yaml:"fast_tick"`

	// SlowTick is the countdown refresh interval.
	SlowTick time.Duration `json:"slow_tick" yaml:"slow_tick"`

	// RampDuration is how many seconds the training ramp takes to reach 1.
	RampDuration float64 `json:"ramp_duration" yaml:"ramp_duration"`

	// LockoutFactor multiplies time on a pattern to get the gate lockout
	// after a switch.
	LockoutFactor float64 `json:"lockout_factor" yaml:"lockout_factor"`
}

// MembraneConfig tunes the potential update.
type MembraneConfig struct {
	Smoothing  float64 `json:"smoothing" yaml:"smoothing"`
	Noise      float64 `json:"noise" yaml:"noise"`
	InputNoise float64 `json:"input_noise" yaml:"input_noise"`
}

// ReinforcementConfig tunes activity-driven strengthening.
type ReinforcementConfig struct {
	Rate          float64 `json:"rate" yaml:"rate"`
	Decay         float64 `json:"decay" yaml:"decay"`
	GateThreshold float64 `json:"gate_threshold" yaml:"gate_threshold"`
}

// DegradationConfig tunes the pathological regime. Fractions and
// probabilities are in [0, 1].
type DegradationConfig struct {
	ResilientFraction float64 `json:"resilient_fraction" yaml:"resilient_fraction"`
	RecoveryProb      float64 `json:"recovery_prob" yaml:"recovery_prob"`
	StrengthFactor    float64 `json:"strength_factor" yaml:"strength_factor"`
}

// TraceConfig sizes the trace buffer.
type TraceConfig struct {
	SampleCapacity int `json:"sample_capacity" yaml:"sample_capacity"`
	SpikeCapacity  int `json:"spike_capacity" yaml:"spike_capacity"`

	// RasterWindow is the scrolling raster width in seconds.
	RasterWindow float64 `json:"raster_window" yaml:"raster_window"`
}

// RecordingConfig controls the SQLite run log.
type RecordingConfig struct {
	// Enabled turns recording on for run and serve.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path overrides the database location. Empty means ~/.neurosim/runs.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// SampleEvery records potentials every N steps.
	SampleEvery int `json:"sample_every" yaml:"sample_every"`
}

// LoggingConfig configures neurosim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables transition logging to ~/.neurosim/logs/transitions.jsonl.
	// "trace" additionally logs every simulation step.
	Level string `json:"level" yaml:"level"`
}

// ServerConfig configures the HTTP view.
type ServerConfig struct {
	// Addr is the listen address. The default picks a free localhost port.
	Addr string `json:"addr" yaml:"addr"`

	// CommandRate is the sustained command rate, per second.
	CommandRate float64 `json:"command_rate" yaml:"command_rate"`

	// CommandBurst is the number of commands allowed back to back.
	CommandBurst int `json:"command_burst" yaml:"command_burst"`
}

// Default returns a NeurosimConfig with sensible defaults.
func Default() *NeurosimConfig {
	eng := engine.DefaultConfig()
	return &NeurosimConfig{
		Simulation: SimulationConfig{
			Regime:        string(plasticity.RegimeReinforcement),
			Step:          eng.Step,
			FastTick:      eng.FastTick,
			SlowTick:      eng.SlowTick,
			RampDuration:  eng.Membrane.RampDuration,
			LockoutFactor: eng.LockoutFactor,
		},
		Membrane: MembraneConfig{
			Smoothing:  eng.Membrane.Smoothing,
			Noise:      eng.Membrane.Noise,
			InputNoise: eng.Membrane.InputNoise,
		},
		Reinforcement: ReinforcementConfig{
			Rate:          eng.Plasticity.Reinforcement.Rate,
			Decay:         eng.Plasticity.Reinforcement.Decay,
			GateThreshold: eng.Plasticity.Reinforcement.GateThreshold,
		},
		Degradation: DegradationConfig{
			ResilientFraction: eng.Plasticity.Degradation.ResilientFraction,
			RecoveryProb:      eng.Plasticity.Degradation.RecoveryProb,
			StrengthFactor:    eng.Plasticity.Degradation.StrengthFactor,
		},
		Trace: TraceConfig{
			SampleCapacity: eng.Trace.SampleCapacity,
			SpikeCapacity:  eng.Trace.SpikeCapacity,
			RasterWindow:   eng.Trace.RasterWindow,
		},
		Recording: RecordingConfig{
			Enabled:     false,
			SampleEvery: constants.DefaultSampleEvery,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:         constants.DefaultAddr,
			CommandRate:  constants.DefaultCommandRate,
			CommandBurst: constants.DefaultCommandBurst,
		},
	}
}

// Dir returns the per-user data directory, ~/.neurosim.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFile), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.neurosim/config.yaml -> environment variables
func Load() (*NeurosimConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*NeurosimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// WriteFile writes c as YAML to path, creating parent directories. It
// refuses to overwrite an existing file unless force is set.
func (c *NeurosimConfig) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *NeurosimConfig) Validate() error {
	if _, err := plasticity.ParseRegime(c.Simulation.Regime); err != nil {
		return err
	}

	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"step", c.Simulation.Step},
		{"fast_tick", c.Simulation.FastTick},
		{"slow_tick", c.Simulation.SlowTick},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", iv.name, iv.d)
		}
	}
	if c.Simulation.RampDuration <= 0 {
		return fmt.Errorf("ramp_duration must be positive, got %f", c.Simulation.RampDuration)
	}
	if c.Simulation.LockoutFactor < 0 {
		return fmt.Errorf("lockout_factor must be non-negative, got %f", c.Simulation.LockoutFactor)
	}

	probabilities := []struct {
		name string
		v    float64
	}{
		{"membrane.smoothing", c.Membrane.Smoothing},
		{"degradation.resilient_fraction", c.Degradation.ResilientFraction},
		{"degradation.recovery_prob", c.Degradation.RecoveryProb},
		{"degradation.strength_factor", c.Degradation.StrengthFactor},
	}
	for _, p := range probabilities {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", p.name, p.v)
		}
	}
	if c.Reinforcement.Rate < 0 || c.Reinforcement.Decay < 0 {
		return fmt.Errorf("reinforcement rate and decay must be non-negative")
	}

	capacities := []struct {
		name string
		n    int
	}{
		{"trace.sample_capacity", c.Trace.SampleCapacity},
		{"trace.spike_capacity", c.Trace.SpikeCapacity},
		{"recording.sample_every", c.Recording.SampleEvery},
		{"server.command_burst", c.Server.CommandBurst},
	}
	for _, cp := range capacities {
		if cp.n < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", cp.name, cp.n)
		}
	}
	if c.Trace.RasterWindow <= 0 {
		return fmt.Errorf("trace.raster_window must be positive, got %f", c.Trace.RasterWindow)
	}
	if c.Server.CommandRate <= 0 {
		return fmt.Errorf("server.command_rate must be positive, got %f", c.Server.CommandRate)
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// EngineConfig converts the file settings into an engine configuration.
// Tunables the file does not expose keep their engine defaults.
func (c *NeurosimConfig) EngineConfig() (engine.Config, error) {
	regime, err := plasticity.ParseRegime(c.Simulation.Regime)
	if err != nil {
		return engine.Config{}, err
	}

	cfg := engine.DefaultConfig()
	cfg.Regime = regime
	cfg.Seed = c.Simulation.Seed
	cfg.Step = c.Simulation.Step
	cfg.FastTick = c.Simulation.FastTick
	cfg.SlowTick = c.Simulation.SlowTick
	cfg.LockoutFactor = c.Simulation.LockoutFactor

	cfg.Membrane.RampDuration = c.Simulation.RampDuration
	cfg.Membrane.Smoothing = c.Membrane.Smoothing
	cfg.Membrane.Noise = c.Membrane.Noise
	cfg.Membrane.InputNoise = c.Membrane.InputNoise

	cfg.Plasticity.Reinforcement.Rate = c.Reinforcement.Rate
	cfg.Plasticity.Reinforcement.Decay = c.Reinforcement.Decay
	cfg.Plasticity.Reinforcement.GateThreshold = c.Reinforcement.GateThreshold

	cfg.Plasticity.Degradation.ResilientFraction = c.Degradation.ResilientFraction
	cfg.Plasticity.Degradation.RecoveryProb = c.Degradation.RecoveryProb
	cfg.Plasticity.Degradation.StrengthFactor = c.Degradation.StrengthFactor

	cfg.Trace.SampleCapacity = c.Trace.SampleCapacity
	cfg.Trace.SpikeCapacity = c.Trace.SpikeCapacity
	cfg.Trace.RasterWindow = c.Trace.RasterWindow

	return cfg, nil
}

// RecordingPath returns the configured database path or the default one.
func (c *NeurosimConfig) RecordingPath() (string, error) {
	if c.Recording.Path != "" {
		return pathutil.ExpandHome(c.Recording.Path)
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.RecordingFile), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numeric values are ignored.
func applyEnvOverrides(config *NeurosimConfig) {
	if v := os.Getenv(constants.EnvRegime); v != "" {
		config.Simulation.Regime = v
	}

	if v := os.Getenv(constants.EnvSeed); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv(constants.EnvStepMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Step = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv(constants.EnvAddr); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv(constants.EnvLogLevel); v != "" {
		config.Logging.Level = v
	}
}
