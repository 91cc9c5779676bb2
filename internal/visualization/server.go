package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/neurosim/internal/constants"
	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/logging"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/ratelimit"
	"github.com/nvandessel/neurosim/internal/topology"
)

// maxBodyBytes bounds a command request body.
const maxBodyBytes = 4 << 10

// Engine is the part of *engine.Engine the server drives.
type Engine interface {
	Snapshot() engine.Snapshot
	Do(cmd mode.Command, p topology.PatternID) mode.Result
	Advance(d time.Duration)
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Empty means an OS-assigned localhost port.
	Addr string
	// Limiters throttles /api/command. Nil disables rate limiting.
	Limiters ratelimit.Commands
	// AllowAdvance enables the "advance" command, for engines that are not
	// driven in real time.
	AllowAdvance bool
	Logger       *slog.Logger
}

// Server serves the live network view and accepts engine commands.
type Server struct {
	eng        Engine
	opts       Options
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a new visualization server for eng.
func NewServer(eng Engine, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = constants.DefaultAddr
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{eng: eng, opts: opts, logger: logger}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the base URL of the running server, or "" before it starts.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("GET /api/graph.dot", s.handleDOT)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. It returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("view listening", "url", "http://"+ln.Addr().String())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleIndex serves the live page with the API base URL configured.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html, err := RenderHTML(s.eng.Snapshot(), "http://"+r.Host)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, ratelimit.Snapshot) {
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.Write([]byte(RenderDOT(s.eng.Snapshot())))
}

// CommandRequest is the body of POST /api/command.
type CommandRequest struct {
	Command string `json:"command"`
	Pattern string `json:"pattern,omitempty"`
	// Seconds is the virtual time to advance, for the "advance" command.
	Seconds float64 `json:"seconds,omitempty"`
}

// handleCommand applies one engine command. Rejected transitions are still
// 200 responses; only malformed or throttled requests are errors.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Command == ratelimit.Advance {
		s.handleAdvance(w, r, req.Seconds)
		return
	}

	cmd, err := mode.ParseCommand(req.Command)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pattern, err := topology.ParsePattern(req.Pattern)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.allow(w, r, string(cmd)) {
		return
	}

	res := s.eng.Do(cmd, pattern)
	s.logger.Debug("view command", "command", cmd, "pattern", pattern, "accepted", res.Accepted, "client", clientKey(r))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, seconds float64) {
	if !s.opts.AllowAdvance {
		http.Error(w, "advance is disabled while the engine runs in real time", http.StatusConflict)
		return
	}
	if math.IsNaN(seconds) || seconds <= 0 || seconds > constants.MaxAdvanceSeconds {
		http.Error(w, "seconds must be in (0, "+strconv.Itoa(constants.MaxAdvanceSeconds)+"]", http.StatusBadRequest)
		return
	}
	if !s.allow(w, r, ratelimit.Advance) {
		return
	}
	s.eng.Advance(time.Duration(seconds * float64(time.Second)))
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

// allow applies the rate limit for command and writes a 429 on rejection.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, command string) bool {
	if s.opts.Limiters == nil {
		return true
	}
	err := s.opts.Limiters.Check(command, clientKey(r))
	if err == nil {
		return true
	}
	var le *ratelimit.LimitError
	if errors.As(err, &le) && le.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(le.RetryAfter.Seconds()))))
	}
	http.Error(w, err.Error(), http.StatusTooManyRequests)
	return false
}

// clientKey buckets requests by remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
