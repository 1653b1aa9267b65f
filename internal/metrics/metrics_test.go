// ABOUTME: Tests for Prometheus collector registration and gauge sources
// ABOUTME: Uses isolated registries so repeated construction cannot collide

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	sessions int
	channels int
}

func (s staticSource) SessionCount() int { return s.sessions }
func (s staticSource) ChannelCount() int { return s.channels }

func TestNewGateway_GaugesReadSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := NewGateway(reg, staticSource{sessions: 3, channels: 2})

	g.ConnectionsTotal.Inc()
	g.ConnectionsTotal.Inc()
	g.AuthFailures.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(g.ConnectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.AuthFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, fam := range families {
		values[fam.GetName()] = fam.GetMetric()[0].GetGauge().GetValue() + fam.GetMetric()[0].GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, values["signalink_connections_active"])
	assert.Equal(t, 2.0, values["signalink_channels_active"])
}

func TestNewAnalytics_CountersRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewAnalytics(reg)

	a.EventsConsumed.Inc()
	a.WindowsFlushed.Inc()
	a.RowsPruned.Add(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.EventsConsumed))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.EventsMalformed))
	assert.Equal(t, 42.0, testutil.ToFloat64(a.RowsPruned))
}
