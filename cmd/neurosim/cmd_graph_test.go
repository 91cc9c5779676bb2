package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGraph_DOT(t *testing.T) {
	isolateHome(t)

	out, err := execute(t, "graph", "--seed", "1")
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !strings.HasPrefix(out, "digraph neurosim {") {
		t.Errorf("output is not DOT: %q", out[:min(60, len(out))])
	}
	if !strings.Contains(out, `"Out"`) {
		t.Error("DOT output missing the Out neuron")
	}
}

func TestGraph_JSONAfterTraining(t *testing.T) {
	isolateHome(t)

	untrained, err := execute(t, "graph", "--seed", "1", "--format", "json")
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	trained, err := execute(t, "graph", "--seed", "1", "--format", "json", "--train", "10s", "--pattern", "B")
	if err != nil {
		t.Fatalf("graph --train: %v", err)
	}

	var before, after struct {
		Mode      string `json:"mode"`
		NodeCount int    `json:"node_count"`
		EdgeCount int    `json:"edge_count"`
	}
	if err := json.Unmarshal([]byte(untrained), &before); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(trained), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if before.Mode != "Idle" || after.Mode != "Training(B)" {
		t.Errorf("modes = %q, %q", before.Mode, after.Mode)
	}
	if before.NodeCount == 0 || before.NodeCount != after.NodeCount || before.EdgeCount != after.EdgeCount {
		t.Errorf("topology changed: %+v vs %+v", before, after)
	}
}

func TestGraph_HTMLFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "net.html")

	out, err := execute(t, "graph", "--seed", "1", "--format", "html", "-o", path, "--no-open")
	if err != nil {
		t.Fatalf("graph html: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want the file path", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !bytes.Contains(data, []byte("<html")) {
		t.Error("file is not HTML")
	}
}

func TestGraph_BadFormat(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "graph", "--format", "svg"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConfig_InitPathShow(t *testing.T) {
	home := isolateHome(t)
	want := filepath.Join(home, ".neurosim", "config.yaml")

	out, err := execute(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Errorf("path = %q, want %q", strings.TrimSpace(out), want)
	}

	if _, err := execute(t, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := execute(t, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := execute(t, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err = execute(t, "config", "show", "--regime", "degradation")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "regime: degradation") {
		t.Errorf("show did not apply --regime:\n%s", out)
	}
}

func TestConfig_ShowJSONAppliesEnv(t *testing.T) {
	isolateHome(t)
	t.Setenv("NEUROSIM_SEED", "99")

	out, err := execute(t, "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var cfg struct {
		Simulation struct {
			Seed uint64 `json:"seed"`
		} `json:"simulation"`
	}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Simulation.Seed != 99 {
		t.Errorf("seed = %d, want 99", cfg.Simulation.Seed)
	}
}

func TestServe_StartsAndStops(t *testing.T) {
	isolateHome(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		root := newRootCmd()
		root.SetOut(pw)
		root.SetErr(io.Discard)
		root.SetArgs([]string{"serve", "--no-open", "--addr", "127.0.0.1:0", "--pattern", "A", "--seed", "1"})
		errCh <- root.ExecuteContext(ctx)
		pw.Close()
	}()

	lineCh := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := pr.Read(buf)
		lineCh <- string(buf[:n])
		io.Copy(io.Discard, pr)
	}()

	select {
	case line := <-lineCh:
		if !strings.Contains(line, "neurosim running at http://127.0.0.1:") {
			t.Fatalf("unexpected startup output %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start within 5 seconds")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve returned %v on shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop within 5 seconds")
	}
}

func TestMCPCommand_Flags(t *testing.T) {
	cmd := newMCPCmd()
	if cmd.Use != "mcp" {
		t.Errorf("Use = %q, want mcp", cmd.Use)
	}
	if cmd.Flags().Lookup("realtime") == nil {
		t.Error("missing --realtime flag")
	}
}
