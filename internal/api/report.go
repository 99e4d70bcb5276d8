package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/reporting"
)

const maxReportDays = 365

// CampaignReportHandler handles GET /campaigns/{id}/report.
//
// Query Parameters:
//   - days: Number of days to include in the report (default: 7, capped at 365)
func (s *Server) CampaignReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "campaign_report"
	const method = "GET"

	fail := func(status int, msg string) {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, msg, status)
	}

	if s.ReportDB == nil {
		fail(http.StatusServiceUnavailable, "analytics database unavailable")
		return
	}

	campaignID := mux.Vars(r)["id"]
	if campaignID == "" {
		fail(http.StatusBadRequest, "campaign id is required")
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			fail(http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = min(parsed, maxReportDays)
	}

	if s.Store != nil {
		if _, err := s.Store.GetCampaign(campaignID); errors.Is(err, models.ErrNotFound) {
			fail(http.StatusNotFound, "campaign not found")
			return
		}
	}

	summary, err := reporting.GenerateCampaignReport(r.Context(), s.ReportDB, campaignID, days)
	if err != nil {
		s.Logger.Error("failed to generate campaign report",
			zap.String("campaign_id", campaignID),
			zap.Int("days", days),
			zap.Error(err))
		fail(http.StatusInternalServerError, "failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.Logger.Error("encode campaign report", zap.String("campaign_id", campaignID), zap.Error(err))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
