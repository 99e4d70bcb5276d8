package auction

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/patrickwarner/rtbengine/internal/models"
)

// MinIncrement is added to the runner-up price to form the settlement price.
var MinIncrement = decimal.NewFromFloat(0.01)

// NewAuctionID returns an identifier unique across concurrent callers. The
// timestamp keeps ids roughly sortable and the UUID suffix guarantees uniqueness.
func NewAuctionID() string {
	return fmt.Sprintf("%s%d-%s", models.AuctionIDPrefix, time.Now().UnixNano(), uuid.NewString())
}

// SettlementPrice returns second + MinIncrement rounded to four places, capped
// at the winner's own bid. The request floor plays no part here: it only gates
// which bids enter the auction, so a lone bid settles at MinIncrement even
// when the floor is higher.
func SettlementPrice(highest, second float64) float64 {
	top := decimal.NewFromFloat(highest)
	price := decimal.NewFromFloat(second).Add(MinIncrement).Round(pricePlaces)
	if price.GreaterThan(top) {
		return highest
	}
	return price.InexactFloat64()
}

// Resolve runs a second-price auction over bids. The input slice is not
// modified. Equal prices keep their input order, so the first-seen bid wins ties.
func Resolve(bids []models.Bid) models.AuctionResult {
	result := models.AuctionResult{
		AuctionID: NewAuctionID(),
		AllBids:   []models.Bid{},
	}
	if len(bids) == 0 {
		return result
	}

	sorted := make([]models.Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price > sorted[j].Price
	})

	highest := sorted[0]
	if len(sorted) > 1 {
		result.SecondPrice = sorted[1].Price
	}

	winner := highest
	winner.Price = SettlementPrice(highest.Price, result.SecondPrice)
	result.Winner = &winner
	result.AllBids = sorted
	return result
}
