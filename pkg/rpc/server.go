package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	ReadTimeout time.Duration

	// RequestTimeout bounds handler work for one JSON-RPC call or batch.
	RequestTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	EnableRateLimit bool
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8899",
		ReadTimeout:    30 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxRequestSize: 1 << 20,
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   100,
		RateLimitBurst: 200,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l.With().Str("component", "rpc").Logger()
	}
}

// WithMetrics records per-method counters and mounts /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is a JSON-RPC 2.0 server with a websocket subscription endpoint.
type Server struct {
	config   ServerConfig
	handlers *Handlers
	pubsub   *PubSub
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	router   chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server reading from backend. Subscribers are fed
// through PubSub().Publish, which the caller registers as a commit listener.
func NewServer(config ServerConfig, backend Backend, opts ...Option) *Server {
	s := &Server{
		config:   config,
		handlers: NewHandlers(backend),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pubsub = NewPubSub(backend.Accounts, s.logger, s.metrics)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(CORSMiddleware(s.config.AllowedOrigins))
	if s.config.EnableRateLimit {
		r.Use(RateLimitMiddleware(s.config.RateLimitRPS, s.config.RateLimitBurst))
	}

	api := r.With(middleware.AllowContentType("application/json"))
	if s.config.RequestTimeout > 0 {
		api = api.With(middleware.Timeout(s.config.RequestTimeout))
	}
	api.Post("/", s.handleRequest)
	r.Get("/ws", s.pubsub.ServeHTTP)
	if s.metrics != nil {
		r.Method(http.MethodGet, metrics.DefaultMetricsPath, s.metrics.Handler())
	}
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// PubSub returns the websocket subscription hub.
func (s *Server) PubSub() *PubSub {
	return s.pubsub
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("rpc server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// No WriteTimeout: it would close idle websocket connections.
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("rpc server stopped")
		}
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("rpc server listening")
	return nil
}

// Stop disconnects subscribers and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	s.pubsub.Close()
	return server.Shutdown(ctx)
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// handleRequest processes incoming JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "failed to read request body")})
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(r.Context(), w, body)
		return
	}
	s.writeResponse(w, s.processRequest(r.Context(), body))
}

// handleBatchRequest processes a batch of JSON-RPC requests.
func (s *Server) handleBatchRequest(ctx context.Context, w http.ResponseWriter, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "invalid JSON")})
		return
	}
	if len(requests) == 0 {
		s.writeResponse(w, RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(InvalidRequest, "empty batch")})
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(ctx, reqBody)
		// requests without an id are notifications and get no response
		if response.ID != nil || response.Error != nil {
			responses = append(responses, response)
		}
	}
	s.writeResponse(w, responses)
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: NewRPCError(ParseError, "invalid JSON")}
	}
	if request.JSONRPC != JSONRPCVersion {
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(InvalidRequest, "invalid jsonrpc version"),
			ID:      request.ID,
		}
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		s.metrics.ObserveRPC("unknown", false)
		return RPCResponse{
			JSONRPC: JSONRPCVersion,
			Error:   NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)),
			ID:      request.ID,
		}
	}

	result, rpcErr := handler(ctx, request.Params)
	s.metrics.ObserveRPC(request.Method, rpcErr == nil)
	if rpcErr != nil {
		s.logger.Debug().Str("method", request.Method).Int("code", rpcErr.Code).Msg(rpcErr.Message)
		return RPCResponse{JSONRPC: JSONRPCVersion, Error: rpcErr, ID: request.ID}
	}
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: result, ID: request.ID}
}

func (s *Server) writeResponse(w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}
