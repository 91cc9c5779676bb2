// Package constants provides named constants shared by the neurosim
// surfaces. Simulation tuning lives with the packages that use it; this
// package only holds file layout and surface defaults.
package constants

// On-disk layout under the user's home directory.
const (
	// DirName is the per-user data directory, relative to $HOME.
	DirName = ".neurosim"

	// ConfigFile is the YAML configuration inside DirName.
	ConfigFile = "config.yaml"

	// RecordingFile is the SQLite run log inside DirName.
	RecordingFile = "runs.db"

	// LogDir holds the transition log inside DirName.
	LogDir = "logs"

	// ExportDir is where MCP clients may write Arrow exports, inside DirName.
	ExportDir = "exports"
)

// Surface defaults.
const (
	// DefaultAddr binds the HTTP view to an ephemeral localhost port.
	DefaultAddr = "localhost:0"

	// DefaultCommandRate is the sustained engine command rate per surface,
	// in commands per second.
	DefaultCommandRate = 5.0

	// DefaultCommandBurst is the number of commands allowed back to back.
	DefaultCommandBurst = 10

	// DefaultSampleEvery records one potential sample per neuron every N steps.
	DefaultSampleEvery = 10

	// MaxAdvanceSeconds bounds a single advance request from the HTTP or MCP surface.
	MaxAdvanceSeconds = 600
)

// Environment variable names read by config.Load.
const (
	EnvRegime   = "NEUROSIM_REGIME"
	EnvSeed     = "NEUROSIM_SEED"
	EnvLogLevel = "NEUROSIM_LOG_LEVEL"
	EnvAddr     = "NEUROSIM_ADDR"
	EnvStepMs   = "NEUROSIM_STEP_MS"
)
