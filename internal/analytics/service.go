// ABOUTME: Analytics service assembly: event consumer, aggregator, REST API
// ABOUTME: One errgroup supervises ingest, flush timer, retention, and HTTP

package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/2389/signalink/internal/broker"
	"github.com/2389/signalink/internal/config"
	"github.com/2389/signalink/internal/dedupe"
	"github.com/2389/signalink/internal/metrics"
	"github.com/2389/signalink/internal/protocol"
	"github.com/2389/signalink/internal/store"
)

const (
	serviceName    = "signalink-analytics"
	serviceVersion = "1.0.0"

	shutdownTimeout    = 5 * time.Second
	flushCheckInterval = 10 * time.Second
	retentionInterval  = 24 * time.Hour

	// Redelivery suppression. The TTL only has to outlive the window an
	// event could still be folded into, plus rebalance slack.
	dedupeTTL        = 5 * time.Minute
	dedupeMaxEntries = 100_000
)

// EventSource feeds decoded message events into the service. Satisfied by
// broker.EventConsumer.
type EventSource interface {
	Run(ctx context.Context, fn broker.EventFunc) error
	Connected(ctx context.Context) bool
}

// Deps are the runtime dependencies of the analytics service. The service
// borrows them; their lifecycles belong to the caller. Consumer may be nil,
// in which case the service serves reads only and reports the consumer as
// disconnected.
type Deps struct {
	Store    store.MetricsStore
	Consumer EventSource
	Logger   *slog.Logger
	Registry prometheus.Registerer
}

// Service consumes the message event stream into tumbling metrics windows
// and serves the aggregated metrics over HTTP.
type Service struct {
	cfg        *config.Config
	store      store.MetricsStore
	source     EventSource
	aggregator *Aggregator
	metrics    *metrics.Analytics
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New assembles the analytics service.
func New(cfg *config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "analytics")

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	mx := metrics.NewAnalytics(registry)

	s := &Service{
		cfg:        cfg,
		store:      deps.Store,
		source:     deps.Consumer,
		aggregator: NewAggregator(deps.Store, cfg.MetricsWindow(), mx, logger),
		metrics:    mx,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	// Exact match is the scrape endpoint; the subtree is the metrics API.
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/", s.handleMetricsAPI)

	s.handler = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.AnalyticsAddr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled. Ingest, the periodic flush, retention
// pruning, and the HTTP listener run under one errgroup; the first hard
// failure stops them all. A final flush preserves the partial window.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("analytics service listening",
		"addr", ln.Addr().String(),
		"environment", s.cfg.Environment)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("analytics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutCtx)
	})

	if s.source != nil {
		seen := dedupe.New(dedupeTTL, dedupeMaxEntries)
		defer seen.Close()
		g.Go(func() error {
			return s.source.Run(ctx, func(event *protocol.MessageEvent) {
				s.metrics.EventsConsumed.Inc()
				if event.EventID != "" && seen.CheckAndMark(event.EventID) {
					s.metrics.EventsDuplicate.Inc()
					return
				}
				s.aggregator.Ingest(ctx, event)
			})
		})
	} else {
		s.logger.Warn("no event consumer configured, serving reads only")
	}

	g.Go(func() error {
		ticker := time.NewTicker(flushCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.aggregator.FlushAged(ctx)
			}
		}
	})

	g.Go(func() error {
		s.runRetention(ctx)
		return nil
	})

	err = g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if ferr := s.aggregator.FlushNow(flushCtx); ferr != nil {
		s.logger.Error("final metrics flush failed", "error", ferr)
	}

	s.logger.Info("analytics service stopped")
	return err
}
