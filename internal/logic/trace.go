package logic

import "github.com/patrickwarner/rtbengine/internal/models"

// TraceStep records the campaigns still in contention at an auction stage.
type TraceStep struct {
	Stage       string            `json:"stage"`
	CampaignIDs []string          `json:"campaign_ids"`
	Details     map[string]string `json:"details,omitempty"`
}

// AuctionTrace captures the ordered list of steps performed by one auction.
// A nil trace ignores every call, so callers never need to check.
type AuctionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// AddCampaigns appends a step listing the given campaigns.
func (t *AuctionTrace) AddCampaigns(stage string, campaigns []models.Campaign, details map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{Stage: stage, Details: details, CampaignIDs: make([]string, 0, len(campaigns))}
	for _, c := range campaigns {
		step.CampaignIDs = append(step.CampaignIDs, c.ID)
	}
	t.Steps = append(t.Steps, step)
}

// AddBids appends a step listing the campaigns that placed the given bids.
func (t *AuctionTrace) AddBids(stage string, bids []models.Bid, details map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{Stage: stage, Details: details, CampaignIDs: make([]string, 0, len(bids))}
	for _, b := range bids {
		step.CampaignIDs = append(step.CampaignIDs, b.CampaignID)
	}
	t.Steps = append(t.Steps, step)
}
