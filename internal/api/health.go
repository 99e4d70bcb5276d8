package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const healthPingTimeout = 500 * time.Millisecond

type healthResponse struct {
	Status      string `json:"status"`
	Instance    string `json:"instance"`
	Campaigns   int    `json:"campaigns"`
	SpendLedger string `json:"spend_ledger"`
	Redis       string `json:"redis,omitempty"`
}

// HealthHandler reports the snapshot size and, when Redis is wired, whether
// it answers a ping. An unreachable Redis reports degraded with a 503.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	resp := healthResponse{
		Status:      "ok",
		Instance:    s.InstanceID,
		SpendLedger: s.Config.SpendLedger,
	}
	if s.Store != nil {
		resp.Campaigns = s.Store.Len()
	}

	code := http.StatusOK
	if s.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := s.Redis.Client.Ping(ctx).Err(); err != nil {
			resp.Status = "degraded"
			resp.Redis = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Redis = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)

	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(code))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
