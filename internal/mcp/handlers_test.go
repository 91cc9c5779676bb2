package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/export"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/plasticity"
	"github.com/nvandessel/neurosim/internal/ratelimit"
	"github.com/nvandessel/neurosim/internal/topology"
)

func setupTestServer(t *testing.T, regime plasticity.Regime, limiters ratelimit.Commands) (*Server, *engine.Engine, string) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Regime = regime
	cfg.Seed = 7
	eng, err := engine.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	dir := t.TempDir()
	server, err := NewServer(&Config{
		Name:     "neurosim-test",
		Version:  "v0.0.0-test",
		Engine:   eng,
		Limiters: limiters,
		AuditDir: dir,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, eng, dir
}

func TestNewServer_RequiresEngine(t *testing.T) {
	if _, err := NewServer(&Config{Name: "neurosim"}); err == nil {
		t.Fatal("expected error without an engine")
	}
}

func TestHandleSelectPattern(t *testing.T) {
	server, eng, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()

	_, out, err := server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "a"})
	if err != nil {
		t.Fatalf("select_pattern: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("select A rejected: %s", out.Reason)
	}
	if out.From != "Idle" || out.To != "Training(A)" {
		t.Errorf("transition = %s -> %s, want Idle -> Training(A)", out.From, out.To)
	}
	if out.Message == "" {
		t.Error("expected a message")
	}
	if got := eng.Snapshot().ModeLabel; got != "Training(A)" {
		t.Errorf("engine mode = %s, want Training(A)", got)
	}
}

func TestHandleSelectPattern_Invalid(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)

	if _, _, err := server.handleSelectPattern(context.Background(), nil, SelectPatternInput{Pattern: "Z"}); err == nil {
		t.Fatal("expected error for unknown pattern")
	}
}

func TestHandleSelectPattern_SwitchReportsLockout(t *testing.T) {
	server, eng, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()

	if _, _, err := server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "A"}); err != nil {
		t.Fatalf("select A: %v", err)
	}
	if _, _, err := server.handleAdvance(ctx, nil, AdvanceInput{Seconds: 2}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	_, out, err := server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "B"})
	if err != nil {
		t.Fatalf("select B: %v", err)
	}
	if !out.Accepted || out.Lockout <= 0 {
		t.Fatalf("switch = %+v, want accepted with lockout", out)
	}
	if !strings.Contains(out.Message, "gate closed") {
		t.Errorf("message = %q, want gate closure", out.Message)
	}
	if eng.Snapshot().GateOpen {
		t.Error("gate should be closed right after a switch")
	}
}

func TestHandleAnalyzeCycle(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()

	// Analyze from Idle is rejected, not an error.
	_, out, err := server.handleAnalyze(ctx, nil, EmptyInput{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Accepted || out.Reason == "" {
		t.Errorf("analyze from Idle = %+v, want rejection with reason", out)
	}

	server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "B"})
	server.handleAdvance(ctx, nil, AdvanceInput{Seconds: 1})

	_, out, err = server.handleAnalyze(ctx, nil, EmptyInput{})
	if err != nil || !out.Accepted {
		t.Fatalf("analyze = %+v, %v", out, err)
	}
	if !strings.HasPrefix(out.To, "Analyzing(B@") {
		t.Errorf("to = %q, want Analyzing(B@...)", out.To)
	}

	_, snap, err := server.handleSnapshot(ctx, nil, SnapshotInput{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Analyzing {
		t.Error("snapshot should report analysis")
	}

	_, out, err = server.handleExitAnalyze(ctx, nil, EmptyInput{})
	if err != nil || !out.Accepted || out.To != "Training(B)" {
		t.Errorf("exit_analyze = %+v, %v, want Training(B)", out, err)
	}
}

func TestHandleReset(t *testing.T) {
	server, eng, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()

	server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "A"})
	server.handleAdvance(ctx, nil, AdvanceInput{Seconds: 1})

	_, out, err := server.handleReset(ctx, nil, EmptyInput{})
	if err != nil || !out.Accepted {
		t.Fatalf("reset = %+v, %v", out, err)
	}
	if out.To != "Idle" {
		t.Errorf("to = %q, want Idle", out.To)
	}
	if s := eng.Snapshot(); s.Steps != 0 || s.Session != 0 {
		t.Errorf("after reset steps=%d session=%v, want zeros", s.Steps, s.Session)
	}
}

func TestHandleAdvance(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()
	server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "A"})

	_, out, err := server.handleAdvance(ctx, nil, AdvanceInput{Seconds: 1.5})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if out.Steps != 15 {
		t.Errorf("steps = %d, want 15", out.Steps)
	}
	if out.Connections != nil {
		t.Error("advance output should not list connections")
	}
}

func TestHandleAdvance_Invalid(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)

	for _, secs := range []float64{0, -1, 601} {
		if _, _, err := server.handleAdvance(context.Background(), nil, AdvanceInput{Seconds: secs}); err == nil {
			t.Errorf("advance(%v) should fail", secs)
		}
	}
}

func TestHandleAdvance_RealtimeDisabled(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	server.realtime = true

	_, _, err := server.handleAdvance(context.Background(), nil, AdvanceInput{Seconds: 1})
	if err == nil || !strings.Contains(err.Error(), "real time") {
		t.Errorf("err = %v, want real time rejection", err)
	}
}

func TestHandleSnapshot(t *testing.T) {
	server, eng, _ := setupTestServer(t, plasticity.RegimeDegradation, nil)
	ctx := context.Background()
	server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "none"})
	server.handleAdvance(ctx, nil, AdvanceInput{Seconds: 10})

	_, out, err := server.handleSnapshot(ctx, nil, SnapshotInput{Connections: true})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	full := eng.Snapshot()
	if out.Regime != string(plasticity.RegimeDegradation) {
		t.Errorf("regime = %q", out.Regime)
	}
	if len(out.Neurons) != len(full.Neurons) {
		t.Errorf("neurons = %d, want %d", len(out.Neurons), len(full.Neurons))
	}
	if len(out.Connections) != len(full.Connections) {
		t.Errorf("connections = %d, want %d", len(out.Connections), len(full.Connections))
	}
	if out.MeanEffective <= 0 || out.MeanEffective > 1 {
		t.Errorf("mean effective = %v, want in (0, 1]", out.MeanEffective)
	}
	degraded := 0
	for _, c := range out.Connections {
		if c.Degradation > 0 {
			degraded++
		}
	}
	if degraded == 0 {
		t.Error("expected some degraded connections after 10s")
	}

	_, out, _ = server.handleSnapshot(ctx, nil, SnapshotInput{})
	if out.Connections != nil {
		t.Error("connections should be omitted unless requested")
	}
}

func TestHandleGraph(t *testing.T) {
	server, eng, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()
	full := eng.Snapshot()

	tests := []struct {
		format  string
		wantFmt string
		wantErr bool
	}{
		{"", "json", false},
		{"json", "json", false},
		{"dot", "dot", false},
		{"html", "", true},
		{"svg", "", true},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			_, out, err := server.handleGraph(ctx, nil, GraphInput{Format: tt.format})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("graph: %v", err)
			}
			if out.Format != tt.wantFmt {
				t.Errorf("format = %q, want %q", out.Format, tt.wantFmt)
			}
			if out.NodeCount != len(full.Neurons) || out.EdgeCount != len(full.Connections) {
				t.Errorf("counts = %d/%d, want %d/%d", out.NodeCount, out.EdgeCount, len(full.Neurons), len(full.Connections))
			}
			if tt.wantFmt == "dot" {
				if dot, ok := out.Graph.(string); !ok || !strings.HasPrefix(dot, "digraph neurosim") {
					t.Errorf("graph = %v, want DOT text", out.Graph)
				}
			}
		})
	}
}

func TestHandleSnapshotResource(t *testing.T) {
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, nil)

	res, err := server.handleSnapshotResource(context.Background(), nil)
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if len(res.Contents) != 1 || res.Contents[0].URI != SnapshotURI {
		t.Fatalf("contents = %+v", res.Contents)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &snap); err != nil {
		t.Fatalf("resource is not a snapshot: %v", err)
	}
	if snap.ModeLabel != "Idle" {
		t.Errorf("mode = %q, want Idle", snap.ModeLabel)
	}
}

func TestHandlers_RateLimited(t *testing.T) {
	limiters := ratelimit.NewCommandLimiters(0.001, 4) // reset burst is 1
	server, _, _ := setupTestServer(t, plasticity.RegimeReinforcement, limiters)
	ctx := context.Background()

	if _, _, err := server.handleReset(ctx, nil, EmptyInput{}); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	_, _, err := server.handleReset(ctx, nil, EmptyInput{})
	if !errors.Is(err, ratelimit.ErrLimited) {
		t.Fatalf("second reset err = %v, want ErrLimited", err)
	}

	// Other commands keep their own budget.
	if _, _, err := server.handleAnalyze(ctx, nil, EmptyInput{}); err != nil {
		t.Errorf("analyze: %v", err)
	}
}

func TestHandlers_Audited(t *testing.T) {
	server, _, dir := setupTestServer(t, plasticity.RegimeReinforcement, nil)
	ctx := context.Background()

	server.handleSelectPattern(ctx, nil, SelectPatternInput{Pattern: "A"})
	server.handleAnalyze(ctx, nil, EmptyInput{})
	server.handleAnalyze(ctx, nil, EmptyInput{}) // already analyzing
	server.handleAdvance(ctx, nil, AdvanceInput{Seconds: -1})
	server.Close()

	entries := readAuditLines(t, dir)
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	want := []struct{ tool, status string }{
		{ToolSelectPattern, "success"},
		{ToolAnalyze, "success"},
		{ToolAnalyze, "rejected"},
		{ToolAdvance, "error"},
	}
	for i, w := range want {
		if entries[i].Tool != w.tool || entries[i].Status != w.status {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, entries[i].Tool, entries[i].Status, w.tool, w.status)
		}
	}
	if entries[0].Params["pattern"] != "A" {
		t.Errorf("pattern param = %q, want A", entries[0].Params["pattern"])
	}
}

func newExportServer(t *testing.T, root string) *Server {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Seed = 7
	eng, err := engine.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	eng.Do(mode.CommandSelectPattern, topology.PatternA)
	eng.Advance(2 * time.Second)

	server, err := NewServer(&Config{Name: "neurosim-test", Engine: eng, ExportRoot: root})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func TestHandleExport(t *testing.T) {
	root := t.TempDir()
	server := newExportServer(t, root)

	_, out, err := server.handleExport(context.Background(), nil, ExportInput{Name: "run1"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Neurons == 0 {
		t.Error("expected neurons in the export")
	}
	for _, name := range []string{export.TracesFile, export.SpikesFile} {
		if _, err := os.Stat(filepath.Join(root, "run1", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if !strings.HasSuffix(out.Traces, "run1/"+export.TracesFile) {
		t.Errorf("traces path = %q", out.Traces)
	}
}

func TestHandleExport_Rejects(t *testing.T) {
	server := newExportServer(t, t.TempDir())

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"parent escape", "../x"},
		{"absolute outside", "/etc/neurosim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := server.handleExport(context.Background(), nil, ExportInput{Name: tt.in}); err == nil {
				t.Errorf("export %q succeeded, want error", tt.in)
			}
		})
	}
}

func TestHandleExport_DisabledWithoutRoot(t *testing.T) {
	server := newExportServer(t, "")

	_, _, err := server.handleExport(context.Background(), nil, ExportInput{Name: "run1"})
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("err = %v, want disabled", err)
	}
}
