package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickwarner/rtbengine/internal/analytics"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/middleware"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/token"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Win notice outcomes, used as the status label on the win notice counter.
const (
	winAccepted       = "accepted"
	winInvalid        = "invalid"
	winDuplicate      = "duplicate"
	winBudgetExceeded = "budget_exceeded"
	winUnknown        = "unknown_campaign"
	winError          = "error"
)

// WinHandler confirms a win notice and charges the settlement price to the
// campaign's spend ledger.
func (s *Server) WinHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "WinHandler",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/win"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "win"
	method := r.Method

	fail := func(status int, outcome, msg string) {
		s.Metrics.IncrementWinNotices(outcome)
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, msg, status)
	}

	notice, err := token.Verify(r.URL.Query().Get("token"), s.TokenSecret, s.TokenTTL)
	if err != nil {
		logger.Warn("rejected win notice", zap.Error(err))
		fail(http.StatusUnauthorized, winInvalid, "invalid or expired token")
		return
	}
	span.SetAttributes(
		attribute.String("auction_id", notice.AuctionID),
		attribute.String("campaign_id", notice.CampaignID),
		attribute.Float64("price", notice.Price),
	)

	if s.Ledger == nil {
		logger.Error("spend ledger unavailable")
		fail(http.StatusServiceUnavailable, winError, "spend ledger unavailable")
		return
	}

	if s.Redis != nil {
		claimed, err := s.Redis.ClaimWin(ctx, notice.AuctionID, s.TokenTTL)
		if err != nil {
			logger.Error("claim win notice", zap.Error(err), zap.String("auction_id", notice.AuctionID))
			fail(http.StatusServiceUnavailable, winError, "win notice store unavailable")
			return
		}
		if !claimed {
			s.Metrics.IncrementWinNotices(winDuplicate)
			s.Metrics.IncrementRequests(endpoint, method, "204")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	total, err := s.Ledger.IncrementSpend(ctx, notice.CampaignID, notice.Price)
	if err != nil {
		s.releaseWin(ctx, logger, notice.AuctionID)
		switch {
		case errors.Is(err, db.ErrBudgetExceeded):
			logger.Info("win notice over budget",
				zap.String("campaign_id", notice.CampaignID),
				zap.Float64("price", notice.Price))
			fail(http.StatusConflict, winBudgetExceeded, "campaign budget exhausted")
		case errors.Is(err, models.ErrNotFound):
			fail(http.StatusNotFound, winUnknown, "unknown campaign")
		default:
			logger.Error("increment spend", zap.Error(err), zap.String("campaign_id", notice.CampaignID))
			span.RecordError(err)
			s.Metrics.IncrementSpendPersistErrors()
			fail(http.StatusInternalServerError, winError, "spend update failed")
		}
		return
	}

	if s.Store != nil {
		if err := s.Store.UpdateCampaignSpend(notice.CampaignID, total); err != nil {
			logger.Warn("campaign missing from snapshot", zap.String("campaign_id", notice.CampaignID))
		}
	}
	s.Metrics.SetSpendTotal(notice.CampaignID, total)

	if s.Analytics != nil {
		ev := analytics.WinEvent{
			RequestID:  notice.RequestID,
			AuctionID:  notice.AuctionID,
			CampaignID: notice.CampaignID,
			AdID:       notice.AdID,
			Price:      notice.Price,
			TotalSpent: total,
		}
		if err := s.Analytics.RecordWin(ctx, ev); err != nil {
			logger.Error("analytics record", zap.Error(err), zap.String("auction_id", notice.AuctionID))
		}
	}

	s.Metrics.IncrementWinNotices(winAccepted)
	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) releaseWin(ctx context.Context, logger *zap.Logger, auctionID string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.ReleaseWin(ctx, auctionID); err != nil {
		logger.Warn("release win claim", zap.Error(err), zap.String("auction_id", auctionID))
	}
}
