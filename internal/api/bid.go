package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickwarner/rtbengine/internal/logic"
	"github.com/patrickwarner/rtbengine/internal/middleware"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("rtbengine")

// maxBodyBytes caps bid request bodies.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// decodeBidRequest reads, unmarshals and validates a bid request body. Bodies
// over maxBodyBytes fail with errBodyTooLarge rather than being truncated.
func decodeBidRequest(w http.ResponseWriter, r *http.Request) (*models.BidRequest, error) {
	defer func() {
		_ = r.Body.Close()
	}()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %v", models.ErrInvalidRequest, err)
	}

	var req models.BidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", models.ErrInvalidRequest, err)
	}
	if err := models.ValidateBidRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// clientIP prefers the first X-Forwarded-For hop over the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeBidResponse writes the given response as JSON.
func writeBidResponse(w http.ResponseWriter, resp models.BidResponse, tr *logic.AuctionTrace, debug bool) error {
	out := struct {
		models.BidResponse
		Debug interface{} `json:"debug,omitempty"`
	}{resp, nil}
	if debug && tr != nil {
		out.Debug = map[string]interface{}{"trace": tr}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// noBidResponse answers a request that never reached the auction.
func noBidResponse(requestID string) models.BidResponse {
	return models.BidResponse{
		ID:           uuid.NewString(),
		BidRequestID: requestID,
		SeatBid:      []models.SeatBid{},
		Currency:     models.CurrencyUSD,
	}
}

// BidHandler handles POST /bid requests.
func (s *Server) BidHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "BidHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/bid"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "bid"
	const method = "POST"

	req, err := decodeBidRequest(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Warn("invalid bid request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), status)
		return
	}

	if !s.Limiter.Allow(req.ZoneID) {
		span.SetAttributes(attribute.String("bid.result", "rate_limited"))
		s.Metrics.IncrementNoBids()
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		if err := writeBidResponse(w, noBidResponse(req.ID), nil, false); err != nil {
			logger.Error("encode response", zap.Error(err))
		}
		return
	}

	if req.Device.IP == "" {
		req.Device.IP = clientIP(r)
	}
	logic.EnrichRequest(s.GeoIP, req)

	span.SetAttributes(
		attribute.String("request_id", req.ID),
		attribute.String("zone_id", req.ZoneID),
		attribute.String("device_type", req.Device.Type),
	)

	if s.Config.AuctionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.AuctionTimeout)
		defer cancel()
	}

	debugEnabled := s.DebugTrace || r.URL.Query().Get("debug") == "1"
	out, err := s.Engine.Process(ctx, req, debugEnabled)
	if err != nil {
		logger.Error("auction failed", zap.Error(err), zap.String("request_id", req.ID))
		span.RecordError(err)
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.Metrics.IncrementRequests(endpoint, method, fmt.Sprint(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "auction unavailable", status)
		return
	}

	if s.Analytics != nil {
		if err := s.Analytics.RecordAuction(ctx, req, &out.Response, &out.Result); err != nil {
			logger.Error("analytics record", zap.Error(err), zap.String("request_id", req.ID))
		}
	}

	if out.Response.HasBid() {
		span.SetAttributes(attribute.String("bid.result", "bid"))
	} else {
		span.SetAttributes(attribute.String("bid.result", "no_bid"))
		if observability.ShouldLog("no_bid") {
			logger.Info("no bid", zap.String("request_id", req.ID), zap.String("zone_id", req.ZoneID))
		}
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	if err := writeBidResponse(w, out.Response, out.Trace, debugEnabled); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}
