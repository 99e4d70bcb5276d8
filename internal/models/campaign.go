package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Campaign and ad status values. Only StatusActive campaigns and ads take part in auctions.
const (
	StatusActive = "active"
	StatusPaused = "paused"
	StatusEnded  = "ended"
)

// Campaign types. The engine treats every type the same way: BidAmount is the price offered per win.
const (
	CampaignTypeCPC = "cpc"
	CampaignTypeCPM = "cpm"
)

// StringSet is a set of strings used for campaign targeting. An empty set places no
// restriction on the request. It marshals to and from a JSON array.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Matches reports whether v satisfies the targeting rule: an empty set matches everything.
func (s StringSet) Matches(v string) bool {
	return len(s) == 0 || s.Contains(v)
}

// Lower returns a copy of the set with every member lower-cased.
func (s StringSet) Lower() StringSet {
	if s == nil {
		return nil
	}
	out := make(StringSet, len(s))
	for v := range s {
		out[strings.ToLower(v)] = struct{}{}
	}
	return out
}

// Values returns the members in sorted order.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// Advertiser funds one or more campaigns. A campaign whose advertiser has no
// balance left is never eligible.
type Advertiser struct {
	ID      string  `json:"id"`
	Balance float64 `json:"balance"`
}

// Ad is a renderable creative belonging to a campaign. Weight is the relative
// mass used by weighted creative selection.
type Ad struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Weight float64 `json:"weight"`
	HTML   string  `json:"html"`
}

// Campaign is an advertiser's funded intent to buy impressions matching its targeting.
// Campaigns are owned by an external store; the auction engine only reads them.
type Campaign struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Type       string  `json:"type"`
	BidAmount  float64 `json:"bid_amount"`  // Price offered per win.
	Budget     float64 `json:"budget"`      // Total spend cap.
	TotalSpent float64 `json:"total_spent"` // Cumulative spend to date.
	// ZoneIDs lists the placement zones the campaign is booked on. It is used by
	// snapshot providers to scope lookups and plays no part in eligibility.
	ZoneIDs         []string   `json:"zone_ids,omitempty"`
	TargetDevices   StringSet  `json:"target_devices"`
	TargetCountries StringSet  `json:"target_countries"`
	TargetPages     StringSet  `json:"target_pages"`
	Advertiser      Advertiser `json:"advertiser"`
	Ads             []Ad       `json:"ads"`
}

// ActiveAds returns the campaign's active ads in their configured order.
func (c *Campaign) ActiveAds() []Ad {
	out := make([]Ad, 0, len(c.Ads))
	for _, ad := range c.Ads {
		if ad.Status == StatusActive {
			out = append(out, ad)
		}
	}
	return out
}

// FindAd returns the ad with the given ID or nil.
func (c *Campaign) FindAd(id string) *Ad {
	for i := range c.Ads {
		if c.Ads[i].ID == id {
			return &c.Ads[i]
		}
	}
	return nil
}

// RemainingBudget is the headroom left before the campaign reaches its cap.
func (c *Campaign) RemainingBudget() float64 {
	return c.Budget - c.TotalSpent
}
