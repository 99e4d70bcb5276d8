package auction

import (
	"github.com/shopspring/decimal"

	"github.com/patrickwarner/rtbengine/internal/logic/selectors"
	"github.com/patrickwarner/rtbengine/internal/models"
)

// pricePlaces is the monetary precision of settlement prices.
const pricePlaces = 4

// BidMeetsFloor reports whether price is at or above floor. The comparison is
// exact; a price below the floor by any amount fails.
func BidMeetsFloor(price, floor float64) bool {
	return decimal.NewFromFloat(price).GreaterThanOrEqual(decimal.NewFromFloat(floor))
}

// ComputeBid builds the bid an eligible campaign places for req. It returns nil
// when the campaign bids below the request floor or has no active ads.
func ComputeBid(c *models.Campaign, req *models.BidRequest, sel selectors.CreativeSelector) *models.Bid {
	if !BidMeetsFloor(c.BidAmount, req.EffectiveFloor()) {
		return nil
	}
	ad, ok := sel.SelectAd(c.ActiveAds())
	if !ok {
		return nil
	}
	return &models.Bid{
		CampaignID: c.ID,
		Price:      c.BidAmount,
		AdID:       ad.ID,
	}
}
