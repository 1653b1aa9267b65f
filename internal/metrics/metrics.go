// ABOUTME: Prometheus collectors for the gateway and analytics services
// ABOUTME: Constructors take a Registerer so tests can run on isolated registries

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ConnectionSource exposes the live counts the gateway gauges read at
// scrape time.
type ConnectionSource interface {
	SessionCount() int
	ChannelCount() int
}

// Gateway holds the realtime endpoint's collectors.
type Gateway struct {
	ConnectionsTotal prometheus.Counter
	AuthFailures     prometheus.Counter
}

// NewGateway registers the gateway collectors on reg.
func NewGateway(reg prometheus.Registerer, src ConnectionSource) *Gateway {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signalink_connections_active",
		Help: "Number of WebSocket sessions attached to this instance",
	}, func() float64 { return float64(src.SessionCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signalink_channels_active",
		Help: "Number of channels with local subscribers on this instance",
	}, func() float64 { return float64(src.ChannelCount()) })
	return &Gateway{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_connections_total",
			Help: "Total number of WebSocket connections accepted",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_auth_failures_total",
			Help: "Total number of WebSocket connections rejected during authentication",
		}),
	}
}

// Analytics holds the metrics service's collectors.
type Analytics struct {
	EventsConsumed  prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsMalformed prometheus.Counter
	WindowsFlushed  prometheus.Counter
	FlushFailures   prometheus.Counter
	RowsPruned      prometheus.Counter
}

// NewAnalytics registers the analytics collectors on reg.
func NewAnalytics(reg prometheus.Registerer) *Analytics {
	factory := promauto.With(reg)
	return &Analytics{
		EventsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_events_consumed_total",
			Help: "Total number of message events consumed from the bus",
		}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_events_duplicate_total",
			Help: "Total number of redelivered message events suppressed before aggregation",
		}),
		EventsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_events_malformed_total",
			Help: "Total number of message events skipped for missing required fields",
		}),
		WindowsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_windows_flushed_total",
			Help: "Total number of aggregation windows written to the store",
		}),
		FlushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_window_flush_failures_total",
			Help: "Total number of aggregation window writes that failed",
		}),
		RowsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "signalink_metrics_rows_pruned_total",
			Help: "Total number of metrics rows removed by retention",
		}),
	}
}

// Handler returns the scrape endpoint for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
