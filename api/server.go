package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/bridge-listener/api/middleware"
	"github.com/0xmhha/bridge-listener/listener"
)

// StatusSource provides the loop snapshot served on /status
type StatusSource interface {
	Status() listener.Status
}

// Options wires the server to the rest of the process
type Options struct {
	// Status is required
	Status StatusSource

	// Gatherer serves /metrics; defaults to the global registry
	Gatherer prometheus.Gatherer

	// Stream, when set, is served on the websocket path
	Stream http.Handler

	// SessionID is reported on /status
	SessionID string
}

// Server is the status HTTP server
type Server struct {
	config  *Config
	logger  *zap.Logger
	options Options
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new status server
func NewServer(config *Config, logger *zap.Logger, opts Options) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Status == nil {
		return nil, fmt.Errorf("status source cannot be nil")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		logger:  logger,
		options: opts,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Logger(s.logger, "/health", "/metrics"))
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.options.Gatherer, promhttp.HandlerOpts{}))

	if s.options.Stream != nil {
		s.logger.Info("action stream enabled", zap.String("path", s.config.WebSocketPath))
		s.router.Get(s.config.WebSocketPath, s.options.Stream.ServeHTTP)
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// handleHealth reports ok while the loop is running
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.options.Status.Status().State

	response := HealthResponse{
		Status:    "ok",
		State:     state,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	code := http.StatusOK
	if state == listener.StateStopped.String() || state == listener.StateShuttingDown.String() {
		response.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, response)
}

// StatusResponse represents the /status response
type StatusResponse struct {
	listener.Status
	SessionID string `json:"session_id,omitempty"`
	Lag       uint64 `json:"lag"`
}

// handleStatus reports the loop snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.options.Status.Status()

	response := StatusResponse{
		Status:    st,
		SessionID: s.options.SessionID,
	}
	if st.LatestHeight > st.Checkpoint {
		response.Lag = st.LatestHeight - st.Checkpoint
	}

	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens on the configured address and serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting status server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("stream", s.options.Stream != nil),
	)

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping status server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("status server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
