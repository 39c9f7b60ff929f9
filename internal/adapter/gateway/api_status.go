package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  string        `json:"service"`
	Profile  string        `json:"profile"`
	Agents   []string      `json:"agents"`
	Uptime   int64         `json:"uptime_seconds"`
	Sessions SessionStatus `json:"sessions"`
	Messages MessageStatus `json:"messages"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active int   `json:"active"`
	Total  int64 `json:"total"`
}

// MessageStatus holds message counters.
type MessageStatus struct {
	Received int64 `json:"received"`
	Sent     int64 `json:"sent"`
}

// Metrics tracks gateway counters for the status API and /metrics.
type Metrics struct {
	MessagesRecv  atomic.Int64
	MessagesSent  atomic.Int64
	SessionsTotal atomic.Int64
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			Service: "relay-ai",
			Profile: s.deps.Profile,
			Agents:  s.deps.Agents,
			Uptime:  int64(time.Since(s.startTime).Seconds()),
			Sessions: SessionStatus{
				Active: len(s.deps.Sessions.List()),
				Total:  s.metrics.SessionsTotal.Load(),
			},
			Messages: MessageStatus{
				Received: s.metrics.MessagesRecv.Load(),
				Sent:     s.metrics.MessagesSent.Load(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
