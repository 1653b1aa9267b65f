// ABOUTME: REST read API over the aggregated metrics tables
// ABOUTME: Rolling-range queries with clamped hours/limit parameters

package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type rootResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
	Health      string `json:"health"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Service     string `json:"service"`
	Database    string `json:"database"`
	Consumer    string `json:"consumer"`
}

type timeseriesPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	MessageCount      int       `json:"message_count"`
	MessagesPerSecond float64   `json:"messages_per_second"`
	ActiveUsers       int       `json:"active_users"`
	ActiveChannels    int       `json:"active_channels"`
}

type timeseriesResponse struct {
	TimeSeries []timeseriesPoint `json:"time_series"`
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, rootResponse{
		Name:        serviceName,
		Version:     serviceVersion,
		Environment: s.cfg.Environment,
		Status:      "operational",
		Health:      "/health",
	})
}

// handleHealth reports degraded when the metrics store is unreachable or a
// configured consumer has lost the broker. Always 200 so probes read the
// body instead of guessing from the status code.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	dbUp := s.store.Ping(ctx) == nil
	consumerUp := false
	if s.source != nil {
		consumerUp = s.source.Connected(ctx)
	}

	status := "healthy"
	if !dbUp || (s.source != nil && !consumerUp) {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      status,
		Environment: s.cfg.Environment,
		Service:     "analytics",
		Database:    connState(dbUp),
		Consumer:    connState(consumerUp),
	})
}

// handleMetricsAPI routes the /metrics/ subtree. Fixed paths go first so
// "channels/top/active" is not mistaken for a channel id.
func (s *Service) handleMetricsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/metrics/")
	switch {
	case path == "messages":
		s.handleMessageMetrics(w, r)
	case path == "system/stats":
		s.handleSystemStats(w, r)
	case path == "system/timeseries":
		s.handleTimeseries(w, r)
	case path == "channels/top/active":
		s.handleTopChannels(w, r)
	case path == "users/top/active":
		s.handleTopUsers(w, r)
	case strings.HasPrefix(path, "channels/"):
		s.handleChannelMetrics(w, r, strings.TrimPrefix(path, "channels/"))
	case strings.HasPrefix(path, "users/"):
		s.handleUserMetrics(w, r, strings.TrimPrefix(path, "users/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) handleMessageMetrics(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 1, 1, 168)
	limit := queryInt(r, "limit", 100, 1, 1000)

	rows, err := s.store.ListMessageMetrics(r.Context(), sinceHours(hours), limit)
	if err != nil {
		s.logger.Error("listing message metrics failed", "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleChannelMetrics(w http.ResponseWriter, r *http.Request, channelID string) {
	if uuid.Validate(channelID) != nil {
		s.sendError(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	hours := queryInt(r, "hours", 1, 1, 168)

	rows, err := s.store.ListChannelMetrics(r.Context(), channelID, sinceHours(hours))
	if err != nil {
		s.logger.Error("listing channel metrics failed", "channel_id", channelID, "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		s.sendError(w, fmt.Sprintf("No metrics found for channel %s", channelID), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleUserMetrics(w http.ResponseWriter, r *http.Request, userID string) {
	if uuid.Validate(userID) != nil {
		s.sendError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	hours := queryInt(r, "hours", 1, 1, 168)

	rows, err := s.store.ListUserMetrics(r.Context(), userID, sinceHours(hours))
	if err != nil {
		s.logger.Error("listing user metrics failed", "user_id", userID, "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		s.sendError(w, fmt.Sprintf("No metrics found for user %s", userID), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleTopChannels(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 1, 1, 168)
	limit := queryInt(r, "limit", 10, 1, 100)

	rows, err := s.store.TopChannels(r.Context(), sinceHours(hours), limit)
	if err != nil {
		s.logger.Error("ranking channels failed", "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleTopUsers(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 1, 1, 168)
	limit := queryInt(r, "limit", 10, 1, 100)

	rows, err := s.store.TopUsers(r.Context(), sinceHours(hours), limit)
	if err != nil {
		s.logger.Error("ranking users failed", "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Service) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 1, 1, 24)

	stats, err := s.store.SystemStats(r.Context(), sinceHours(hours))
	if err != nil {
		s.logger.Error("reading system stats failed", "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24, 1, 168)

	rows, err := s.store.SystemTimeseries(r.Context(), sinceHours(hours))
	if err != nil {
		s.logger.Error("reading timeseries failed", "error", err)
		s.sendError(w, "failed to read metrics", http.StatusInternalServerError)
		return
	}

	points := make([]timeseriesPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, timeseriesPoint{
			Timestamp:         row.TimeWindow,
			MessageCount:      row.MessageCount,
			MessagesPerSecond: row.MessagesPerSecond,
			ActiveUsers:       row.ActiveUsersCount,
			ActiveChannels:    row.ActiveChannelsCount,
		})
	}
	s.writeJSON(w, http.StatusOK, timeseriesResponse{TimeSeries: points})
}

// queryInt reads an integer query parameter, falling back to def and
// clamping to [min, max].
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func sinceHours(hours int) time.Time {
	return time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
}

func connState(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Service) sendError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
