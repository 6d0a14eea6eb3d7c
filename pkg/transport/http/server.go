// Package http serves the MCP server over HTTP: streamable HTTP on /mcp,
// the legacy SSE transport on /sse, probes on /healthz and /readyz and
// Prometheus metrics.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/mcp-census/pkg/observability"
	"github.com/rhuss/mcp-census/pkg/transport"
)

// Config configures a Server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // applies to probes and metrics only
	ShutdownTimeout time.Duration

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// Ready reports whether the server can answer every tool, typically
	// the dataset index builder's readiness. Nil means always ready.
	Ready func() bool

	// Auth guards the MCP endpoints. Nil disables authentication.
	Auth transport.Middleware

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server is the HTTP front of an mcp.Server.
type Server struct {
	cfg        Config
	handler    http.Handler
	httpServer *http.Server
}

// NewServer builds the routes and middleware for s.
func NewServer(s *mcp.Server, cfg Config) *Server {
	cfg.applyDefaults()
	getServer := func(*http.Request) *mcp.Server { return s }

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(getServer, nil))
	mux.Handle("/sse", mcp.NewSSEHandler(getServer, nil))

	probe := func(h http.HandlerFunc) http.Handler {
		return http.TimeoutHandler(h, cfg.WriteTimeout, "timeout")
	}
	mux.Handle("GET /healthz", probe(healthz))
	mux.Handle("GET /readyz", probe(readyz(cfg.Ready)))
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, probe(promhttp.Handler().ServeHTTP))
	}

	handler := transport.Chain(
		transport.Recovery(cfg.Logger),
		transport.RequestID(),
		transport.Logging(cfg.Logger),
		observability.MetricsMiddleware,
		cfg.Auth,
	)(mux)

	return &Server{
		cfg:     cfg,
		handler: handler,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadTimeout,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then waits up to the
// shutdown timeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.cfg.Logger.Info("shutting down http server", "timeout", s.cfg.ShutdownTimeout)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.cfg.Logger.Info("http server stopped")
	return nil
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyz(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			transport.WriteError(w, http.StatusServiceUnavailable, transport.ErrorTypeUnavailable, "dataset index is not ready")
			return
		}
		transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
