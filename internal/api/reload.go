package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/patrickwarner/rtbengine/internal/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type reloadResponse struct {
	Campaigns  int   `json:"campaigns"`
	DurationMS int64 `json:"duration_ms"`
}

// ReloadHandler swaps in a fresh campaign snapshot and, when enabled, tells
// peer instances to do the same. A failed load leaves the old snapshot live.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "reload"
	const method = "POST"

	ctx, span := tracer.Start(r.Context(), "ReloadHandler")
	defer span.End()
	logger := middleware.LoggerFromRequest(r, s.Logger)

	if err := s.Reload(ctx); err != nil {
		span.RecordError(err)
		logger.Error("reload failed", zap.Error(err), zap.Int("campaigns_kept", s.Store.Len()))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "reload failed", http.StatusInternalServerError)
		return
	}
	s.notifyReload(ctx)

	elapsed := time.Since(start)
	resp := reloadResponse{Campaigns: s.Store.Len(), DurationMS: elapsed.Milliseconds()}
	span.SetAttributes(attribute.Int("campaigns", resp.Campaigns))
	logger.Info("campaign snapshot reloaded",
		zap.Int("campaigns", resp.Campaigns),
		zap.Duration("duration", elapsed))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, elapsed)
}
