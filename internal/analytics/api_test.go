// ABOUTME: Tests for the analytics REST surface
// ABOUTME: Seeds the mock metrics store and asserts response shapes

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/signalink/internal/store"
)

// seedWindow saves one complete window whose time_window lies age in the
// past, with the given per-channel and per-user counts.
func seedWindow(t *testing.T, st *store.MockMetricsStore, age time.Duration, channels map[string]int, users map[string]int) {
	t.Helper()
	tw := time.Now().UTC().Add(-age).Truncate(time.Minute)

	total := 0
	for _, n := range channels {
		total += n
	}

	window := &store.MetricsWindow{
		Message: &store.MessageMetrics{
			TimeWindow:            tw,
			WindowDurationSeconds: 60,
			MessageCount:          total,
			MessagesPerSecond:     float64(total) / 60,
			ActiveUsersCount:      len(users),
			UniqueSendersCount:    len(users),
			ActiveChannelsCount:   len(channels),
			TextMessagesCount:     total,
		},
	}
	for channelID, n := range channels {
		window.Channels = append(window.Channels, &store.ChannelMetrics{
			ChannelID:             channelID,
			TimeWindow:            tw,
			WindowDurationSeconds: 60,
			MessageCount:          n,
			UniqueSendersCount:    1,
			MessagesPerSecond:     float64(n) / 60,
			CreatedCount:          n,
		})
	}
	for userID, n := range users {
		window.Users = append(window.Users, &store.UserMetrics{
			UserID:                userID,
			TimeWindow:            tw,
			WindowDurationSeconds: 60,
			MessagesSent:          n,
			ChannelsActive:        1,
		})
	}
	require.NoError(t, st.SaveMetricsWindow(context.Background(), window))
}

func doGet(t *testing.T, svc *Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	return rec
}

func TestService_Root(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body rootResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "signalink-analytics", body.Name)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, "test", body.Environment)
	assert.Equal(t, "operational", body.Status)
	assert.Equal(t, "/health", body.Health)
}

func TestService_Health(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "analytics", body.Service)
	assert.Equal(t, "connected", body.Database)
	assert.Equal(t, "connected", body.Consumer)
}

func TestService_HealthDegraded(t *testing.T) {
	env := newServiceEnv(t)
	env.store.PingErr = errors.New("database gone")

	rec := doGet(t, env.service, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disconnected", body.Database)
	assert.Equal(t, "connected", body.Consumer)
}

func TestService_HealthDegradedWhenConsumerDown(t *testing.T) {
	env := newServiceEnv(t)
	env.source.down = true

	rec := doGet(t, env.service, "/health")
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disconnected", body.Consumer)
}

func TestService_MessageMetricsHoursFilter(t *testing.T) {
	env := newServiceEnv(t)
	channelID := "11111111-1111-1111-1111-111111111111"
	seedWindow(t, env.store, 90*time.Minute, map[string]int{channelID: 5}, map[string]int{"user-1": 5})
	seedWindow(t, env.store, 30*time.Minute, map[string]int{channelID: 2}, map[string]int{"user-1": 2})

	rec := doGet(t, env.service, "/metrics/messages")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []store.MessageMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1, "default range is one hour")
	assert.Equal(t, 2, rows[0].MessageCount)

	rec = doGet(t, env.service, "/metrics/messages?hours=3")
	rows = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].MessageCount, "newest window first")
	assert.Equal(t, 5, rows[1].MessageCount)
}

func TestService_MessageMetricsEmptyIsList(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/metrics/messages")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestService_ChannelMetrics(t *testing.T) {
	env := newServiceEnv(t)
	channelID := "11111111-1111-1111-1111-111111111111"
	seedWindow(t, env.store, 30*time.Minute, map[string]int{channelID: 4}, map[string]int{"user-1": 4})

	rec := doGet(t, env.service, "/metrics/channels/"+channelID)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []store.ChannelMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, channelID, rows[0].ChannelID)
	assert.Equal(t, 4, rows[0].MessageCount)
}

func TestService_ChannelMetricsNotFound(t *testing.T) {
	env := newServiceEnv(t)
	channelID := "99999999-9999-9999-9999-999999999999"

	rec := doGet(t, env.service, "/metrics/channels/"+channelID)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, fmt.Sprintf("No metrics found for channel %s", channelID), body["error"])
}

func TestService_ChannelMetricsInvalidID(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/metrics/channels/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid channel id", body["error"])
}

func TestService_UserMetricsNotFound(t *testing.T) {
	env := newServiceEnv(t)
	userID := "99999999-9999-9999-9999-999999999999"

	rec := doGet(t, env.service, "/metrics/users/"+userID)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, fmt.Sprintf("No metrics found for user %s", userID), body["error"])
}

func TestService_TopChannels(t *testing.T) {
	env := newServiceEnv(t)
	chanA := "11111111-1111-1111-1111-111111111111"
	chanB := "22222222-2222-2222-2222-222222222222"
	seedWindow(t, env.store, 50*time.Minute, map[string]int{chanA: 3, chanB: 4}, map[string]int{"user-1": 7})
	seedWindow(t, env.store, 20*time.Minute, map[string]int{chanA: 2}, map[string]int{"user-1": 2})

	rec := doGet(t, env.service, "/metrics/channels/top/active?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	// chanA ranks first on total (5 vs 4); the row returned is its latest.
	var rows []store.ChannelMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, chanA, rows[0].ChannelID)
	assert.Equal(t, 2, rows[0].MessageCount)
}

func TestService_SystemStats(t *testing.T) {
	env := newServiceEnv(t)
	chanA := "11111111-1111-1111-1111-111111111111"
	chanB := "22222222-2222-2222-2222-222222222222"
	seedWindow(t, env.store, 50*time.Minute, map[string]int{chanA: 3}, map[string]int{"user-1": 3})
	seedWindow(t, env.store, 20*time.Minute, map[string]int{chanA: 1, chanB: 2}, map[string]int{"user-1": 1, "user-2": 2})

	rec := doGet(t, env.service, "/metrics/system/stats?hours=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats store.SystemStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(6), stats.TotalMessages)
	assert.InDelta(t, 0.05, stats.MessagesPerSecond, 1e-9)
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, 2, stats.ActiveChannels)
	require.NotNil(t, stats.MostActiveChannelID)
	assert.Equal(t, chanA, *stats.MostActiveChannelID)
	require.NotNil(t, stats.MostActiveUserID)
	assert.Equal(t, "user-1", *stats.MostActiveUserID)
}

func TestService_SystemTimeseries(t *testing.T) {
	env := newServiceEnv(t)
	channelID := "11111111-1111-1111-1111-111111111111"
	seedWindow(t, env.store, 50*time.Minute, map[string]int{channelID: 3}, map[string]int{"user-1": 3})
	seedWindow(t, env.store, 20*time.Minute, map[string]int{channelID: 1}, map[string]int{"user-1": 1})

	rec := doGet(t, env.service, "/metrics/system/timeseries?hours=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body timeseriesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.TimeSeries, 2)
	assert.True(t, body.TimeSeries[0].Timestamp.Before(body.TimeSeries[1].Timestamp), "ascending for charting")
	assert.Equal(t, 3, body.TimeSeries[0].MessageCount)
	assert.Equal(t, 1, body.TimeSeries[1].MessageCount)
}

func TestService_MetricsAPIMethodNotAllowed(t *testing.T) {
	env := newServiceEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/metrics/messages", nil)
	rec := httptest.NewRecorder()
	env.service.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestService_MetricsAPIUnknownPath(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/metrics/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestService_ScrapeEndpoint(t *testing.T) {
	env := newServiceEnv(t)

	rec := doGet(t, env.service, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}
