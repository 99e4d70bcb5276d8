// Package auction runs the filter, bid, resolve and shape pipeline that turns a
// bid request and a campaign snapshot into a second-price auction outcome.
package auction

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/logic"
	"github.com/patrickwarner/rtbengine/internal/logic/filters"
	"github.com/patrickwarner/rtbengine/internal/logic/selectors"
	"github.com/patrickwarner/rtbengine/internal/macros"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"
)

// Engine conducts auctions. It holds no per-auction state and is safe for
// concurrent use.
type Engine struct {
	provider models.CampaignProvider
	selector selectors.CreativeSelector
	shaper   *Shaper
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	tracer   trace.Tracer
	failOpen bool

	expander *macros.MacroExpander
	notices  *WinNoticeConfig
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandSource sets the random source used for weighted creative selection.
func WithRandSource(src selectors.RandSource) Option {
	return func(e *Engine) { e.selector = selectors.NewWeightedSelector(src) }
}

// WithSelector replaces the creative selector entirely.
func WithSelector(sel selectors.CreativeSelector) Option {
	return func(e *Engine) { e.selector = sel }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m observability.MetricsRegistry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFailOpen controls snapshot provider failures. When true (the default) a
// failed lookup yields an empty auction, otherwise the error is returned.
func WithFailOpen(failOpen bool) Option {
	return func(e *Engine) { e.failOpen = failOpen }
}

// WithMacroExpander enables macro expansion in winning markup.
func WithMacroExpander(x *macros.MacroExpander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithWinNotices enables signed win notice URLs on winning bids.
func WithWinNotices(cfg WinNoticeConfig) Option {
	return func(e *Engine) { e.notices = &cfg }
}

// NewEngine builds an engine reading campaigns from provider.
func NewEngine(provider models.CampaignProvider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		selector: selectors.NewWeightedSelector(nil),
		logger:   zap.NewNop(),
		metrics:  observability.NewNoOpRegistry(),
		tracer:   otel.Tracer("rtbengine/auction"),
		failOpen: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.shaper = NewShaper(e.logger, e.expander, e.notices)
	return e
}

// ConductAuction decides the winner for req against the current snapshot.
// An auction without eligible bids returns a result with a nil winner and no error.
func (e *Engine) ConductAuction(ctx context.Context, req *models.BidRequest) (models.AuctionResult, error) {
	result, _, err := e.conduct(ctx, req, nil)
	return result, err
}

// ConductAuctionWithTrace is ConductAuction plus a record of each stage.
func (e *Engine) ConductAuctionWithTrace(ctx context.Context, req *models.BidRequest) (models.AuctionResult, *logic.AuctionTrace, error) {
	tr := &logic.AuctionTrace{}
	result, _, err := e.conduct(ctx, req, tr)
	return result, tr, err
}

// Outcome bundles everything produced by one processed bid request.
type Outcome struct {
	Response models.BidResponse
	Result   models.AuctionResult
	// Trace is nil unless requested.
	Trace *logic.AuctionTrace
}

// ProcessBidRequest runs an auction and shapes the outcome into a bid response.
func (e *Engine) ProcessBidRequest(ctx context.Context, req *models.BidRequest) (models.BidResponse, error) {
	out, err := e.Process(ctx, req, false)
	return out.Response, err
}

// Process is ProcessBidRequest that also returns the auction result and,
// when withTrace is set, the stage trace.
func (e *Engine) Process(ctx context.Context, req *models.BidRequest, withTrace bool) (Outcome, error) {
	var out Outcome
	if withTrace {
		out.Trace = &logic.AuctionTrace{}
	}

	start := time.Now()
	result, creative, err := e.conduct(ctx, req, out.Trace)
	if err != nil {
		return out, err
	}
	out.Result = result
	out.Response = e.shaper.Shape(result, req, start, creative)
	if !out.Response.HasBid() {
		e.metrics.IncrementNoBids()
	}
	return out, nil
}

// conduct returns the auction result and the winning creative, if any.
func (e *Engine) conduct(ctx context.Context, req *models.BidRequest, tr *logic.AuctionTrace) (models.AuctionResult, *models.Ad, error) {
	ctx, span := e.tracer.Start(ctx, "auction.conduct",
		trace.WithAttributes(
			attribute.String("auction.request_id", req.ID),
			attribute.String("auction.zone_id", req.ZoneID),
		))
	defer span.End()

	campaigns, err := e.provider.CampaignsForZone(ctx, req.ZoneID)
	if err != nil {
		span.RecordError(err)
		e.metrics.IncrementAuctions(observability.OutcomeProviderError)
		if !e.failOpen {
			span.SetStatus(codes.Error, "campaign snapshot unavailable")
			return models.AuctionResult{}, nil, fmt.Errorf("campaign snapshot for zone %s: %w", req.ZoneID, err)
		}
		e.logger.Warn("campaign snapshot unavailable, failing open",
			zap.String("request_id", req.ID),
			zap.String("zone_id", req.ZoneID),
			zap.Error(err))
		campaigns = nil
		tr.AddCampaigns("snapshot", nil, map[string]string{"error": err.Error()})
	} else {
		tr.AddCampaigns("snapshot", campaigns, nil)
	}

	eligible, rejected := filters.FilterEligible(campaigns, req)
	details := make(map[string]string, len(rejected))
	for reason, n := range rejected {
		e.metrics.IncrementFiltered(reason)
		details[reason] = strconv.Itoa(n)
	}
	tr.AddCampaigns("eligible", eligible, details)

	bids := make([]models.Bid, 0, len(eligible))
	byID := make(map[string]*models.Campaign, len(eligible))
	floor := req.EffectiveFloor()
	belowFloor := 0
	for i := range eligible {
		c := &eligible[i]
		bid := ComputeBid(c, req, e.selector)
		if bid == nil {
			if !BidMeetsFloor(c.BidAmount, floor) {
				belowFloor++
			}
			continue
		}
		bids = append(bids, *bid)
		byID[c.ID] = c
	}
	tr.AddBids("bids", bids, map[string]string{
		"floor":       strconv.FormatFloat(floor, 'f', -1, 64),
		"below_floor": strconv.Itoa(belowFloor),
	})
	e.metrics.ObserveBidsPerAuction(len(bids))

	result := Resolve(bids)
	span.SetAttributes(
		attribute.String("auction.id", result.AuctionID),
		attribute.Int("auction.campaigns", len(campaigns)),
		attribute.Int("auction.eligible", len(eligible)),
		attribute.Int("auction.bids", len(bids)),
	)

	if result.Winner == nil {
		tr.AddBids("winner", nil, nil)
		if err == nil {
			e.metrics.IncrementAuctions(observability.OutcomeNoBid)
		}
		return result, nil, nil
	}

	w := result.Winner
	tr.AddBids("winner", []models.Bid{*w}, map[string]string{
		"price":        strconv.FormatFloat(w.Price, 'f', 4, 64),
		"second_price": strconv.FormatFloat(result.SecondPrice, 'f', 4, 64),
	})
	span.SetAttributes(
		attribute.String("auction.winner_campaign", w.CampaignID),
		attribute.Float64("auction.settlement_price", w.Price),
	)
	e.metrics.IncrementAuctions(observability.OutcomeWon)
	e.metrics.ObserveSettlementPrice(w.Price)

	if observability.ShouldLog("auction_won") {
		e.logger.Info("auction won",
			zap.String("auction_id", result.AuctionID),
			zap.String("request_id", req.ID),
			zap.String("campaign_id", w.CampaignID),
			zap.String("ad_id", w.AdID),
			zap.Float64("price", w.Price),
			zap.Float64("second_price", result.SecondPrice),
			zap.Int("bids", len(bids)))
	}

	var creative *models.Ad
	if c, ok := byID[w.CampaignID]; ok {
		creative = c.FindAd(w.AdID)
	}
	return result, creative, nil
}
