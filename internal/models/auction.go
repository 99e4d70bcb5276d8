package models

// AuctionIDPrefix starts every generated auction identifier.
const AuctionIDPrefix = "auction-"

// Bid is a candidate bid produced for one eligible campaign in one auction.
type Bid struct {
	CampaignID string  `json:"campaignId"`
	Price      float64 `json:"price"`
	AdID       string  `json:"adId"`
}

// AuctionResult is the outcome of a second-price auction. Winner carries the
// settlement price, not the original bid. AllBids is ordered by descending price.
type AuctionResult struct {
	AuctionID   string  `json:"auctionId"`
	Winner      *Bid    `json:"winner"`
	SecondPrice float64 `json:"secondPrice"`
	AllBids     []Bid   `json:"allBids"`
}

// HasWinner reports whether the auction produced a winner.
func (r *AuctionResult) HasWinner() bool {
	return r != nil && r.Winner != nil
}
