// Package logging provides leveled logging and transition tracing for neurosim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TransitionLogger for JSONL mode-transition traces (transitions.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for per-step detail.
// At this level every engine step logs its spike count and gate state.
const LevelTrace = slog.LevelDebug - 4

// TransitionFile is the JSONL file name written inside the log directory.
const TransitionFile = "transitions.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a level ParseLevel understands.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used when callers pass nil.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// TransitionEvent is one line of the transition log.
type TransitionEvent struct {
	Command  string  `json:"command"`
	Accepted bool    `json:"accepted"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Reason   string  `json:"reason,omitempty"`
	Elapsed  float64 `json:"elapsed"`
	Session  float64 `json:"session"`
	Time     string  `json:"time"`
}

// TransitionLogger appends mode transitions and rejected commands to a JSONL
// file. It is safe for concurrent use. A nil TransitionLogger is safe to use;
// all methods are no-ops on nil receiver.
type TransitionLogger struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// NewTransitionLogger creates a logger writing to dir/transitions.jsonl.
// At "info" level it returns nil and no file is created. At "debug" or
// "trace" the file is opened for append. Returns nil if the file cannot be
// opened.
func NewTransitionLogger(dir string, level string) *TransitionLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, TransitionFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &TransitionLogger{w: f, now: time.Now}
}

// Log writes ev as a single JSONL line, stamping Time when it is empty.
// Safe to call on nil receiver.
func (tl *TransitionLogger) Log(ev TransitionEvent) {
	if tl == nil || tl.w == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	if ev.Time == "" {
		ev.Time = tl.now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = tl.w.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tl *TransitionLogger) Close() {
	if tl == nil || tl.w == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.w.Close()
	tl.w = nil
}
