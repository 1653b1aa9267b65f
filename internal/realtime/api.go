// ABOUTME: HTTP introspection handlers for the realtime gateway
// ABOUTME: Service info at /, liveness at /health, connection counts at /stats

package realtime

import (
	"encoding/json"
	"net/http"
)

// rootResponse is the JSON response for GET /.
type rootResponse struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	Environment       string `json:"environment"`
	Status            string `json:"status"`
	WebsocketEndpoint string `json:"websocket_endpoint"`
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status            string `json:"status"`
	Environment       string `json:"environment"`
	Broker            string `json:"broker"`
	Redis             string `json:"redis"`
	ActiveConnections int    `json:"active_connections"`
}

// statsResponse is the JSON response for GET /stats.
type statsResponse struct {
	TotalConnections  int      `json:"total_connections"`
	UniqueUsersOnline int      `json:"unique_users_online"`
	ActiveChannels    int      `json:"active_channels"`
	UsersOnline       []string `json:"users_online"`
}

// handleRoot handles GET / with service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, rootResponse{
		Name:              serviceName,
		Version:           serviceVersion,
		Environment:       s.cfg.Environment,
		Status:            "operational",
		WebsocketEndpoint: "/ws",
	})
}

// handleHealth handles GET /health. Degraded when the bus or the volatile
// store is unreachable; the status code stays 200 so probes can read the
// body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	brokerUp := s.bus.Connected(r.Context())
	redisUp := s.kv.Connected(r.Context())
	status := "healthy"
	if !brokerUp || !redisUp {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:            status,
		Environment:       s.cfg.Environment,
		Broker:            connState(brokerUp),
		Redis:             connState(redisUp),
		ActiveConnections: s.manager.SessionCount(),
	})
}

// handleStats handles GET /stats with this instance's connection counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	users := s.manager.OnlineUsers()
	s.writeJSON(w, http.StatusOK, statsResponse{
		TotalConnections:  s.manager.SessionCount(),
		UniqueUsersOnline: len(users),
		ActiveChannels:    s.manager.ChannelCount(),
		UsersOnline:       users,
	})
}

func connState(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
