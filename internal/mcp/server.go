package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/neurosim/internal/engine"
	"github.com/nvandessel/neurosim/internal/export"
	"github.com/nvandessel/neurosim/internal/logging"
	"github.com/nvandessel/neurosim/internal/mode"
	"github.com/nvandessel/neurosim/internal/ratelimit"
	"github.com/nvandessel/neurosim/internal/topology"
)

// Engine is the part of *engine.Engine the tools drive.
type Engine interface {
	export.Source
	Snapshot() engine.Snapshot
	Do(cmd mode.Command, p topology.PatternID) mode.Result
	Advance(d time.Duration)
}

// Server wraps the MCP SDK server and exposes engine commands as tools.
type Server struct {
	server     *sdk.Server
	eng        Engine
	limiters   ratelimit.Commands
	audit      *AuditLogger
	logger     *slog.Logger
	realtime   bool
	exportRoot string
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "neurosim")
	Version string // Server version
	Engine  Engine

	// Limiters throttles tool calls. Nil disables rate limiting.
	Limiters ratelimit.Commands

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	// Realtime reports that the engine is driven by its own clock, which
	// disables neurosim_advance.
	Realtime bool

	// ExportRoot confines neurosim_export output. Empty disables the tool.
	ExportRoot string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with neurosim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("mcp server needs an engine")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:     mcpServer,
		eng:        cfg.Engine,
		limiters:   cfg.Limiters,
		logger:     logger,
		realtime:   cfg.Realtime,
		exportRoot: cfg.ExportRoot,
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.audit.Close()
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.audit.Close()
}
