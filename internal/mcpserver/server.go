// Package mcpserver exposes the generation, enhancement, and status tools
// over the Model Context Protocol's stdio transport. Generation tools submit
// a job and return immediately; progress and the terminal outcome arrive as
// MCP progress notifications driven by the poll engine.
package mcpserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vidforge/vidforge/internal/enhance"
	"github.com/vidforge/vidforge/internal/observe"
	"github.com/vidforge/vidforge/internal/poll"
	"github.com/vidforge/vidforge/pkg/provider/video"
)

// RunwayClient is the capability set required of the Runway backend.
type RunwayClient interface {
	video.TextToVideo
	video.ImageToVideo
	video.StatusFetcher
}

// LumaClient is the capability set required of the Luma backend.
type LumaClient interface {
	video.TextToVideo
	video.ImageToVideo
	video.ImageGenerator
	video.Upscaler
	video.StatusFetcher
}

// Config assembles the collaborators for a [Server]. Runway, Luma, and
// Enhancer are each optional; the corresponding tools are simply not
// registered when a backend is absent.
type Config struct {
	// Version is reported to MCP clients during initialization.
	Version string

	Runway   RunwayClient
	Luma     LumaClient
	Enhancer *enhance.Enhancer

	// RunwayFetcher and LumaFetcher override the status fetcher handed to
	// poll sessions, letting the caller interpose a circuit breaker. When
	// nil, the client itself is used.
	RunwayFetcher video.StatusFetcher
	LumaFetcher   video.StatusFetcher

	// Registry launches and bounds poll sessions. Required.
	Registry *poll.Registry

	// MaxAttempts is the per-session attempt bound, used as the progress
	// total in notifications. Defaults to poll.DefaultMaxAttempts.
	MaxAttempts int

	// Metrics, when non-nil, receives tool call instrumentation.
	Metrics *observe.Metrics
}

// Server is the vidforge MCP tool server.
type Server struct {
	cfg    Config
	server *mcp.Server

	mu     sync.Mutex
	runCtx context.Context
}

// NewServer constructs the MCP server and registers every tool that has a
// configured backend.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("mcpserver: Registry is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = poll.DefaultMaxAttempts
	}
	if cfg.Version == "" {
		cfg.Version = "0.0.0-dev"
	}
	if cfg.RunwayFetcher == nil {
		cfg.RunwayFetcher = cfg.Runway
	}
	if cfg.LumaFetcher == nil {
		cfg.LumaFetcher = cfg.Luma
	}

	s := &Server{
		cfg: cfg,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "vidforge",
			Version: cfg.Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
// ctx also bounds every poll session launched by the generation tools, so
// shutting the server down cancels in-flight polling cleanly.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// background returns the context poll sessions are launched under. Sessions
// must outlive the originating tool call, so the request context is never
// used here.
func (s *Server) background() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}
