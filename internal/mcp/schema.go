// Package mcp provides an MCP (Model Context Protocol) server that lets an
// agent drive a neurosim engine.
package mcp

// SelectPatternInput defines the input for the neurosim_select_pattern tool.
type SelectPatternInput struct {
	Pattern string `json:"pattern" jsonschema:"Training pattern: A, B, or none (none is only valid in the degradation regime)"`
}

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// CommandOutput defines the output of the mode command tools.
type CommandOutput struct {
	Command  string  `json:"command" jsonschema:"Command that was applied"`
	Accepted bool    `json:"accepted" jsonschema:"Whether the command changed the mode"`
	Reason   string  `json:"reason,omitempty" jsonschema:"Why the command was rejected"`
	From     string  `json:"from" jsonschema:"Mode before the command"`
	To       string  `json:"to" jsonschema:"Mode after the command"`
	Lockout  float64 `json:"lockout,omitempty" jsonschema:"Seconds the Output gate stays closed after a pattern switch"`
	Message  string  `json:"message" jsonschema:"Human-readable result message"`
}

// AdvanceInput defines the input for the neurosim_advance tool.
type AdvanceInput struct {
	Seconds float64 `json:"seconds" jsonschema:"Virtual seconds to simulate, at most 600"`
}

// SnapshotInput defines the input for the neurosim_snapshot tool.
type SnapshotInput struct {
	Connections bool `json:"connections,omitempty" jsonschema:"Include every connection's strength and degradation"`
}

// SnapshotOutput is a flattened engine snapshot.
type SnapshotOutput struct {
	Regime          string              `json:"regime"`
	Mode            string              `json:"mode"`
	Steps           int64               `json:"steps"`
	Elapsed         float64             `json:"elapsed" jsonschema:"Seconds since the current training phase began"`
	Session         float64             `json:"session" jsonschema:"Seconds of training since the last reset"`
	GateOpen        bool                `json:"gate_open"`
	ReacquisitionMs int64               `json:"reacquisition_ms" jsonschema:"Remaining gate lockout in milliseconds"`
	OutputCountdown float64             `json:"output_countdown" jsonschema:"Seconds until the Output window opens"`
	TotalStrength   float64             `json:"total_strength"`
	MeanEffective   float64             `json:"mean_effective"`
	Signals         int                 `json:"signals" jsonschema:"Signals in flight"`
	Neurons         []NeuronSummary     `json:"neurons"`
	Connections     []ConnectionSummary `json:"connections,omitempty"`
	Analyzing       bool                `json:"analyzing"`
}

// NeuronSummary is one neuron in a SnapshotOutput.
type NeuronSummary struct {
	Label     string  `json:"label"`
	Type      string  `json:"type"`
	Potential float64 `json:"potential"`
	Active    bool    `json:"active"`
	Spikes    int     `json:"spikes" jsonschema:"Spikes inside the raster window"`
}

// ConnectionSummary is one connection in a SnapshotOutput.
type ConnectionSummary struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Strength    float64 `json:"strength"`
	Effective   float64 `json:"effective"`
	Degradation float64 `json:"degradation,omitempty"`
	Resilient   bool    `json:"resilient,omitempty"`
}

// GraphInput defines the input for the neurosim_graph tool.
type GraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: dot or json (default json)"`
}

// GraphOutput defines the output for the neurosim_graph tool.
type GraphOutput struct {
	Format    string `json:"format"`
	Graph     any    `json:"graph"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// ExportInput defines the input for the neurosim_export tool.
type ExportInput struct {
	Name string `json:"name" jsonschema:"Directory name under ~/.neurosim/exports to write traces.arrow and spikes.arrow into"`
}

// ExportOutput defines the output for the neurosim_export tool.
type ExportOutput struct {
	Traces  string `json:"traces" jsonschema:"Path of the potential trace file"`
	Spikes  string `json:"spikes" jsonschema:"Path of the spike raster file"`
	Neurons int    `json:"neurons"`
	Message string `json:"message"`
}
