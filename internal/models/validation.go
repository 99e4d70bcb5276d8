package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned when a bid request lacks required fields.
	ErrInvalidRequest = errors.New("invalid bid request")
	// ErrInvalidCampaign is returned when campaign data violates the data contract.
	ErrInvalidCampaign = errors.New("invalid campaign")
)

// ValidateBidRequest checks the fields the auction relies on. It is applied by
// callers before a request reaches the engine.
func ValidateBidRequest(r *BidRequest) error {
	if r == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidRequest)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if r.ZoneID == "" {
		return fmt.Errorf("%w: zoneId is required", ErrInvalidRequest)
	}
	if r.Floor != nil && *r.Floor < 0 {
		return fmt.Errorf("%w: floor must not be negative", ErrInvalidRequest)
	}
	return nil
}

// ValidateCampaign rejects campaigns that would break auction invariants. It runs
// at ingestion so the auction path never has to handle malformed data.
func ValidateCampaign(c *Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCampaign)
	}
	if c.BidAmount < 0 {
		return fmt.Errorf("%w: campaign %s has negative bid amount", ErrInvalidCampaign, c.ID)
	}
	if c.Budget < 0 || c.TotalSpent < 0 {
		return fmt.Errorf("%w: campaign %s has negative budget or spend", ErrInvalidCampaign, c.ID)
	}
	seen := make(map[string]struct{}, len(c.Ads))
	for _, ad := range c.Ads {
		if ad.ID == "" {
			return fmt.Errorf("%w: campaign %s has an ad without id", ErrInvalidCampaign, c.ID)
		}
		if ad.Weight < 0 {
			return fmt.Errorf("%w: ad %s of campaign %s has negative weight", ErrInvalidCampaign, ad.ID, c.ID)
		}
		if _, dup := seen[ad.ID]; dup {
			return fmt.Errorf("%w: campaign %s has duplicate ad %s", ErrInvalidCampaign, c.ID, ad.ID)
		}
		seen[ad.ID] = struct{}{}
	}
	return nil
}

// MarkupChecker reports the ${...} macros in a document that it cannot expand.
type MarkupChecker interface {
	ValidateMarkup(doc string) []string
}

// ValidateAdMarkup rejects a campaign whose ad markup uses macros the checker
// does not know, since they would reach the page unexpanded.
func ValidateAdMarkup(c *Campaign, checker MarkupChecker) error {
	for _, ad := range c.Ads {
		if unknown := checker.ValidateMarkup(ad.HTML); len(unknown) > 0 {
			return fmt.Errorf("%w: ad %s of campaign %s uses unknown macros %s",
				ErrInvalidCampaign, ad.ID, c.ID, strings.Join(unknown, ", "))
		}
	}
	return nil
}
