package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"
	// DefaultMetricsPath is the default path for the metrics endpoint.
	DefaultMetricsPath = "/metrics"
	// DefaultHealthPath is the default path for the health endpoint.
	DefaultHealthPath = "/health"
	// DefaultReadyPath is the default path for the readiness endpoint.
	DefaultReadyPath = "/ready"
)

// Server is an HTTP server that exposes Prometheus metrics and health probes.
type Server struct {
	mu       sync.RWMutex
	server   *http.Server
	metrics  *Metrics
	health   *HealthChecker
	logger   zerolog.Logger
	running  bool
	addr     string
	listener net.Listener
}

// ServerOption is a function that configures a Server.
type ServerOption func(*Server)

// WithHealthChecker sets the health checker for the server.
func WithHealthChecker(h *HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// WithAddr sets the address for the server.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger used for serve errors.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new metrics server.
func NewServer(m *Metrics, opts ...ServerOption) *Server {
	s := &Server{
		metrics: m,
		health:  NewHealthChecker(),
		logger:  zerolog.Nop(),
		addr:    DefaultMetricsAddr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's routes for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, DefaultMetricsPath, s.metrics.Handler())
	r.Get(DefaultHealthPath, s.handleHealth)
	r.Get(DefaultReadyPath, s.handleReady)
	return r
}

// Start starts the metrics server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("metrics server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.listener = listener
	s.running = true

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return nil
}

// Stop stops the metrics server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.server
	s.running = false
	s.mu.Unlock()
	return server.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.health.IsReady()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ready": ready, "timestamp": time.Now().UTC()})
}
