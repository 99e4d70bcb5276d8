package auction

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/macros"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/token"
)

// WinNoticeConfig enables signed win notice URLs on winning bids. BaseURL may
// carry macros such as ${AUCTION_PRICE} or ${CAMPAIGN_ID}; they are expanded
// with query escaping before the token is appended.
type WinNoticeConfig struct {
	BaseURL string
	Secret  []byte
}

// Shaper turns an auction result into the outward bid response.
type Shaper struct {
	expander *macros.MacroExpander
	notices  *WinNoticeConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewShaper returns a shaper. expander and notices may be nil to disable
// markup expansion and win notice URLs respectively.
func NewShaper(logger *zap.Logger, expander *macros.MacroExpander, notices *WinNoticeConfig) *Shaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notices != nil && len(notices.Secret) == 0 {
		notices = nil
	}
	return &Shaper{expander: expander, notices: notices, logger: logger, now: time.Now}
}

// Shape builds the response for req. creative is the winning ad and may be nil
// when there is no winner or its markup is unknown. Shape never fails: an
// auction without a winner yields an empty seat bid list.
func (s *Shaper) Shape(result models.AuctionResult, req *models.BidRequest, start time.Time, creative *models.Ad) models.BidResponse {
	resp := models.BidResponse{
		ID:           uuid.NewString(),
		BidRequestID: req.ID,
		SeatBid:      []models.SeatBid{},
		Currency:     models.CurrencyUSD,
		AuctionID:    result.AuctionID,
	}

	if result.Winner != nil {
		w := result.Winner
		entry := models.SeatBidEntry{
			ID:         uuid.NewString(),
			CampaignID: w.CampaignID,
			AdID:       w.AdID,
			Price:      w.Price,
		}
		if creative != nil {
			entry.Adm = s.expandMarkup(creative.HTML, result, req, entry.ID)
		}
		entry.NURL = s.winNoticeURL(result, req, entry.ID)
		resp.SeatBid = append(resp.SeatBid, models.SeatBid{Bid: []models.SeatBidEntry{entry}})
	}

	resp.ProcessingTime = elapsedMillis(start, s.now())
	return resp
}

// elapsedMillis clamps clock anomalies to zero.
func elapsedMillis(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func (s *Shaper) expandMarkup(markup string, result models.AuctionResult, req *models.BidRequest, bidID string) string {
	if s.expander == nil || markup == "" {
		return markup
	}
	out, err := s.expander.ExpandMarkup(markup, s.expansionContext(result, req, bidID))
	if err != nil {
		s.logger.Warn("markup expansion failed, serving raw markup",
			zap.String("auction_id", result.AuctionID),
			zap.Error(err))
		return markup
	}
	return out
}

func (s *Shaper) expansionContext(result models.AuctionResult, req *models.BidRequest, bidID string) *macros.ExpansionContext {
	return &macros.ExpansionContext{
		AuctionID:    result.AuctionID,
		BidID:        bidID,
		BidRequestID: req.ID,
		CampaignID:   result.Winner.CampaignID,
		AdID:         result.Winner.AdID,
		Price:        result.Winner.Price,
		Currency:     models.CurrencyUSD,
		Timestamp:    s.now(),
	}
}

func (s *Shaper) winNoticeURL(result models.AuctionResult, req *models.BidRequest, bidID string) string {
	if s.notices == nil {
		return ""
	}
	base := strings.TrimRight(s.notices.BaseURL, "/")
	if s.expander != nil {
		expanded, err := s.expander.ExpandURL(base, s.expansionContext(result, req, bidID))
		if err != nil {
			s.logger.Warn("win notice url expansion failed",
				zap.String("auction_id", result.AuctionID),
				zap.Error(err))
			return ""
		}
		base = expanded
	}
	w := result.Winner
	tok, err := token.Generate(token.WinNotice{
		RequestID:  req.ID,
		AuctionID:  result.AuctionID,
		CampaignID: w.CampaignID,
		AdID:       w.AdID,
		Price:      w.Price,
		Currency:   models.CurrencyUSD,
		IssuedAt:   s.now(),
	}, s.notices.Secret)
	if err != nil {
		s.logger.Warn("win notice token generation failed",
			zap.String("auction_id", result.AuctionID),
			zap.Error(err))
		return ""
	}
	return base + "/win?token=" + url.QueryEscape(tok)
}
