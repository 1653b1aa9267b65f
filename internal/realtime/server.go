// ABOUTME: Realtime gateway server assembly and lifecycle
// ABOUTME: Serves the WebSocket endpoint plus service info, health, and stats

package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/signalink/internal/auth"
	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/metrics"
	"github.com/2389/signalink/internal/session"
	"github.com/2389/signalink/internal/store"
)

const (
	serviceName     = "signalink-gateway"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 5 * time.Second
)

// Deps carries the shared collaborators the gateway runs on. The caller
// owns their lifecycles; the server only closes what it creates.
type Deps struct {
	Bus      broker.Bus
	KV       broker.KV
	Store    store.MessageStore
	Verifier auth.TokenVerifier
	Logger   *slog.Logger

	// Registry defaults to the process-wide Prometheus registerer.
	Registry prometheus.Registerer
}

// Server is the realtime gateway: the WebSocket endpoint backed by the
// shared bus, plus the HTTP introspection surface.
type Server struct {
	cfg      *config.Config
	manager  *session.Manager
	bus      broker.Bus
	kv       broker.KV
	store    store.MessageStore
	verifier auth.TokenVerifier
	metrics  *metrics.Gateway
	logger   *slog.Logger

	handler    http.Handler
	httpServer *http.Server
}

// New assembles the gateway routes and session manager.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	manager := session.NewManager(deps.Bus, deps.KV, logger)
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		bus:      deps.Bus,
		kv:       deps.KV,
		store:    deps.Store,
		verifier: deps.Verifier,
		metrics:  metrics.NewGateway(registry, manager),
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", metrics.Handler())

	s.handler = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.GatewayAddr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Manager returns the server's session manager.
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// Run starts the gateway and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := s.manager.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening",
			"addr", ln.Addr().String(),
			"environment", s.cfg.Environment)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down gateway")
	case serverErr = <-errCh:
		s.logger.Error("gateway server failed", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown on a fresh context since the run context
// is already canceled by the time it is needed.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting connections and detaches every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway")
	err := s.httpServer.Shutdown(ctx)
	s.manager.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
