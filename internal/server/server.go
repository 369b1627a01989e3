// Package server exposes the session controller over HTTP and streams
// estimates to dashboards over websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradesim/internal/server/handler"
	"github.com/alanyoungcy/tradesim/internal/server/middleware"
	"github.com/alanyoungcy/tradesim/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // empty disables authentication
	RateLimitRPS   float64
	RateLimitBurst int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Session *handler.SessionHandler
	Models  *handler.ModelHandler
	Metrics http.Handler // optional
}

// Server is the HTTP + websocket control surface.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain: CORS, logging, rate limit, auth.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Session.Status)
	mux.HandleFunc("GET /api/estimate", handlers.Session.Estimate)
	mux.HandleFunc("GET /api/parameters", handlers.Session.GetParameters)
	mux.HandleFunc("PUT /api/parameters", handlers.Session.UpdateParameters)
	mux.HandleFunc("POST /api/session/start", handlers.Session.Start)
	mux.HandleFunc("POST /api/session/stop", handlers.Session.Stop)

	if handlers.Models != nil {
		mux.HandleFunc("GET /api/models", handlers.Models.List)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var limiter *middleware.ClientLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the mux wrapped in the full middleware chain. Tests drive
// it through httptest without opening a socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening on the configured port. It blocks until the server
// fails or Shutdown is called; http.ErrServerClosed is not reported as an
// error.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve is like Start but accepts connections on an existing listener. It is
// used when the caller picks the port, for example ":0" in tests.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// finish or for ctx to expire, whichever comes first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
