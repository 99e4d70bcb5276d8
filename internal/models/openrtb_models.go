package models

// CurrencyUSD is the only currency the engine prices in.
const CurrencyUSD = "USD"

// BidResponse is a simplified version of the IAB OpenRTB 2.5 Bid Response object.
// It is always returned for a processed request; an empty SeatBid means no bid.
type BidResponse struct {
	ID           string    `json:"id"`           // Response identifier, generated per call.
	BidRequestID string    `json:"bidRequestId"` // Mirrors BidRequest.ID.
	SeatBid      []SeatBid `json:"seatBid"`      // Empty when the auction had no winner, otherwise one seat.
	Currency     string    `json:"currency"`     // Always CurrencyUSD.
	// ProcessingTime is the wall-clock duration of the auction call in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
	// AuctionID identifies the auction that produced this response.
	AuctionID string `json:"auctionId,omitempty"`
}

// SeatBid groups the bids of a single seat. The engine emits exactly one bid per seat.
type SeatBid struct {
	Bid []SeatBidEntry `json:"bid"`
}

// SeatBidEntry describes the winning bid.
type SeatBidEntry struct {
	ID         string  `json:"id"`
	CampaignID string  `json:"cid"`
	AdID       string  `json:"crid"`
	Price      float64 `json:"price"` // Settlement price.
	// Adm is the winning ad markup with auction macros expanded.
	Adm string `json:"adm,omitempty"`
	// NURL is a signed win notice URL the caller hits once delivery is confirmed.
	NURL string `json:"nurl,omitempty"`
}

// HasBid reports whether the response carries a winning bid.
func (r *BidResponse) HasBid() bool {
	return len(r.SeatBid) > 0 && len(r.SeatBid[0].Bid) > 0
}
