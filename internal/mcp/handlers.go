package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/neurosim/internal/constants"
	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/export"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/pathutil"
	"github.com/nvandessel/neurosim/internal/ratelimit"
	"github.com/nvandessel/neurosim/internal/topology"
	"github.com/nvandessel/neurosim/internal/visualization"
)

// Tool names.
const (
	ToolSelectPattern = "neurosim_select_pattern"
	ToolAnalyze       = "neurosim_analyze"
	ToolExitAnalyze   = "neurosim_exit_analyze"
	ToolReset         = "neurosim_reset"
	ToolAdvance       = "neurosim_advance"
	ToolSnapshot      = "neurosim_snapshot"
	ToolGraph         = "neurosim_graph"
	ToolExport        = "neurosim_export"
)

// SnapshotURI is the resource holding the current snapshot as JSON.
const SnapshotURI = "neurosim://network/snapshot"

// rateKey buckets every MCP call together; there is one client per server.
const rateKey = "mcp"

// registerTools registers all neurosim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolSelectPattern,
		Description: "Start training on a pattern, or switch patterns. Switching closes the Output gate for 1.5x the time spent on the previous pattern.",
	}, s.handleSelectPattern)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolAnalyze,
		Description: "Freeze training and capture connection strengths for inspection",
	}, s.handleAnalyze)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolExitAnalyze,
		Description: "Resume training where analysis froze it",
	}, s.handleExitAnalyze)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolReset,
		Description: "Discard all training and return to Idle",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolAdvance,
		Description: "Simulate a number of virtual seconds immediately (only when the engine is not running in real time)",
	}, s.handleAdvance)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolSnapshot,
		Description: "Report the mode, clock, gate state and per-neuron potentials, optionally with every connection",
	}, s.handleSnapshot)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ToolGraph,
		Description: "Render the network with strength-weighted edges in DOT (Graphviz) or JSON format",
	}, s.handleGraph)

	if s.exportRoot != "" {
		sdk.AddTool(s.server, &sdk.Tool{
			Name:        ToolExport,
			Description: "Write potential traces and the spike raster as Arrow IPC files into a named directory under the export root",
		}, s.handleExport)
	}
}

// registerResources registers MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         SnapshotURI,
		Name:        "neurosim-snapshot",
		Description: "Full point-in-time copy of the network, mode and traces as JSON.",
		MIMEType:    "application/json",
	}, s.handleSnapshotResource)
}

func (s *Server) handleSnapshotResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	if err := s.limiters.Check(ratelimit.Snapshot, rateKey); err != nil {
		return nil, err
	}
	data, err := json.Marshal(s.eng.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      SnapshotURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// command applies one mode command with rate limiting and auditing.
func (s *Server) command(tool string, cmd mode.Command, p topology.PatternID, params map[string]any) (CommandOutput, error) {
	start := time.Now()
	var (
		res mode.Result
		err error
	)
	defer func() {
		s.auditTool(tool, start, err, err == nil && !res.Accepted, sanitizeToolParams(params))
	}()

	if err = s.limiters.Check(string(cmd), rateKey); err != nil {
		return CommandOutput{}, err
	}

	res = s.eng.Do(cmd, p)
	s.logger.Debug("mcp command", "tool", tool, "accepted", res.Accepted, "to", res.To.String())
	return commandOutput(res), nil
}

func commandOutput(res mode.Result) CommandOutput {
	out := CommandOutput{
		Command:  string(res.Command),
		Accepted: res.Accepted,
		Reason:   res.Reason,
		From:     res.From.String(),
		To:       res.To.String(),
		Lockout:  res.Lockout,
	}
	switch {
	case !res.Accepted:
		out.Message = fmt.Sprintf("%s rejected in %s: %s", res.Command, out.From, res.Reason)
	case res.Lockout > 0:
		out.Message = fmt.Sprintf("%s -> %s, Output gate closed for %.1fs", out.From, out.To, res.Lockout)
	default:
		out.Message = fmt.Sprintf("%s -> %s", out.From, out.To)
	}
	return out
}

// handleSelectPattern implements the neurosim_select_pattern tool.
func (s *Server) handleSelectPattern(ctx context.Context, req *sdk.CallToolRequest, args SelectPatternInput) (*sdk.CallToolResult, CommandOutput, error) {
	p, err := topology.ParsePattern(args.Pattern)
	if err != nil {
		return nil, CommandOutput{}, err
	}
	out, err := s.command(ToolSelectPattern, mode.CommandSelectPattern, p, map[string]any{"pattern": args.Pattern})
	return nil, out, err
}

// handleAnalyze implements the neurosim_analyze tool.
func (s *Server) handleAnalyze(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (*sdk.CallToolResult, CommandOutput, error) {
	out, err := s.command(ToolAnalyze, mode.CommandAnalyze, topology.PatternNone, map[string]any{})
	return nil, out, err
}

// handleExitAnalyze implements the neurosim_exit_analyze tool.
func (s *Server) handleExitAnalyze(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (*sdk.CallToolResult, CommandOutput, error) {
	out, err := s.command(ToolExitAnalyze, mode.CommandExitAnalyze, topology.PatternNone, map[string]any{})
	return nil, out, err
}

// handleReset implements the neurosim_reset tool.
func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args EmptyInput) (*sdk.CallToolResult, CommandOutput, error) {
	out, err := s.command(ToolReset, mode.CommandReset, topology.PatternNone, map[string]any{})
	return nil, out, err
}

// handleAdvance implements the neurosim_advance tool.
func (s *Server) handleAdvance(ctx context.Context, req *sdk.CallToolRequest, args AdvanceInput) (_ *sdk.CallToolResult, _ SnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolAdvance, start, retErr, false, sanitizeToolParams(map[string]any{"seconds": args.Seconds}))
	}()

	if s.realtime {
		return nil, SnapshotOutput{}, fmt.Errorf("%s is unavailable while the engine runs in real time", ToolAdvance)
	}
	if math.IsNaN(args.Seconds) || args.Seconds <= 0 || args.Seconds > constants.MaxAdvanceSeconds {
		return nil, SnapshotOutput{}, fmt.Errorf("seconds must be in (0, %d], got %v", constants.MaxAdvanceSeconds, args.Seconds)
	}
	if err := s.limiters.Check(ratelimit.Advance, rateKey); err != nil {
		return nil, SnapshotOutput{}, err
	}

	s.eng.Advance(time.Duration(args.Seconds * float64(time.Second)))
	return nil, summarize(s.eng.Snapshot(), false), nil
}

// handleSnapshot implements the neurosim_snapshot tool.
func (s *Server) handleSnapshot(ctx context.Context, req *sdk.CallToolRequest, args SnapshotInput) (_ *sdk.CallToolResult, _ SnapshotOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolSnapshot, start, retErr, false, sanitizeToolParams(map[string]any{"connections": args.Connections}))
	}()

	if err := s.limiters.Check(ratelimit.Snapshot, rateKey); err != nil {
		return nil, SnapshotOutput{}, err
	}
	return nil, summarize(s.eng.Snapshot(), args.Connections), nil
}

// handleGraph implements the neurosim_graph tool.
func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolGraph, start, retErr, false, sanitizeToolParams(map[string]any{"format": args.Format}))
	}()

	if err := s.limiters.Check(ratelimit.Snapshot, rateKey); err != nil {
		return nil, GraphOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}
	snap := s.eng.Snapshot()

	switch visualization.Format(format) {
	case visualization.FormatDOT:
		return nil, GraphOutput{
			Format:    "dot",
			Graph:     visualization.RenderDOT(snap),
			NodeCount: len(snap.Neurons),
			EdgeCount: len(snap.Connections),
		}, nil
	case visualization.FormatJSON:
		return nil, GraphOutput{
			Format:    "json",
			Graph:     visualization.RenderJSON(snap),
			NodeCount: len(snap.Neurons),
			EdgeCount: len(snap.Connections),
		}, nil
	default:
		return nil, GraphOutput{}, fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
	}
}

// handleExport implements the neurosim_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ToolExport, start, retErr, false, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if s.exportRoot == "" {
		return nil, ExportOutput{}, fmt.Errorf("%s is disabled", ToolExport)
	}
	if args.Name == "" {
		return nil, ExportOutput{}, fmt.Errorf("name is required")
	}
	dir, err := pathutil.Confine(s.exportRoot, args.Name)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	if err := s.limiters.Check(ratelimit.Export, rateKey); err != nil {
		return nil, ExportOutput{}, err
	}

	tracesPath, spikesPath, err := export.WriteDir(dir, s.eng)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	s.logger.Debug("mcp export", "dir", pathutil.RedactPath(dir))

	out := ExportOutput{
		Traces:  pathutil.RedactPath(tracesPath),
		Spikes:  pathutil.RedactPath(spikesPath),
		Neurons: len(s.eng.Labels()),
	}
	out.Message = fmt.Sprintf("Exported %d neurons to %s", out.Neurons, pathutil.RedactPath(dir))
	return nil, out, nil
}

// summarize flattens a snapshot into tool output.
func summarize(snap engine.Snapshot, connections bool) SnapshotOutput {
	out := SnapshotOutput{
		Regime:          string(snap.Regime),
		Mode:            snap.ModeLabel,
		Steps:           snap.Steps,
		Elapsed:         snap.Elapsed,
		Session:         snap.Session,
		GateOpen:        snap.GateOpen,
		ReacquisitionMs: snap.ReacquisitionMs,
		OutputCountdown: snap.OutputCountdown,
		TotalStrength:   snap.TotalStrength,
		Signals:         len(snap.Signals),
		Neurons:         make([]NeuronSummary, 0, len(snap.Neurons)),
		Analyzing:       snap.Analysis != nil,
	}
	for _, n := range snap.Neurons {
		out.Neurons = append(out.Neurons, NeuronSummary{
			Label:     n.Label,
			Type:      n.Type.String(),
			Potential: n.Potential,
			Active:    n.Active,
			Spikes:    len(n.Raster),
		})
	}

	var effective float64
	for _, c := range snap.Connections {
		effective += c.Effective
		if connections {
			out.Connections = append(out.Connections, ConnectionSummary{
				Source:      c.SourceLabel,
				Target:      c.TargetLabel,
				Strength:    c.Strength,
				Effective:   c.Effective,
				Degradation: c.Degradation,
				Resilient:   c.Resilient,
			})
		}
	}
	if len(snap.Connections) > 0 {
		out.MeanEffective = effective / float64(len(snap.Connections))
	}
	return out
}
