package models

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNotFound is returned when an entity is not found in the data store
var ErrNotFound = errors.New("entity not found")

// CampaignProvider supplies the campaign snapshot an auction runs against.
// Implementations must be safe for concurrent use. The returned slice is owned by
// the caller and is treated as read-only for the duration of one auction.
type CampaignProvider interface {
	CampaignsForZone(ctx context.Context, zoneID string) ([]Campaign, error)
}

// campaignSnapshot is an immutable view of all loaded campaigns.
type campaignSnapshot struct {
	campaigns []Campaign
	byID      map[string]int   // campaign ID -> index into campaigns
	byZone    map[string][]int // zone ID -> indexes, in load order
	anyZone   []int            // campaigns booked without zone restriction
}

// CampaignStore is an in-memory CampaignProvider. Reads load the current snapshot
// without locking; writes build a new snapshot and swap it in atomically.
type CampaignStore struct {
	data atomic.Pointer[campaignSnapshot]
}

// NewCampaignStore creates an empty store.
func NewCampaignStore() *CampaignStore {
	s := &CampaignStore{}
	s.data.Store(buildSnapshot(nil))
	return s
}

func buildSnapshot(campaigns []Campaign) *campaignSnapshot {
	snap := &campaignSnapshot{
		campaigns: campaigns,
		byID:      make(map[string]int, len(campaigns)),
		byZone:    make(map[string][]int),
	}
	for i, c := range campaigns {
		snap.byID[c.ID] = i
		if len(c.ZoneIDs) == 0 {
			snap.anyZone = append(snap.anyZone, i)
			continue
		}
		for _, z := range c.ZoneIDs {
			snap.byZone[z] = append(snap.byZone[z], i)
		}
	}
	return snap
}

// ReloadAll validates and replaces every campaign in a single swap. On a
// validation error the current snapshot is left untouched.
func (s *CampaignStore) ReloadAll(campaigns []Campaign) error {
	seen := make(map[string]struct{}, len(campaigns))
	for i := range campaigns {
		if err := ValidateCampaign(&campaigns[i]); err != nil {
			return err
		}
		if _, dup := seen[campaigns[i].ID]; dup {
			return fmt.Errorf("%w: duplicate campaign %s", ErrInvalidCampaign, campaigns[i].ID)
		}
		seen[campaigns[i].ID] = struct{}{}
	}
	own := make([]Campaign, len(campaigns))
	copy(own, campaigns)
	for i := range own {
		// request device types are lower-cased during enrichment
		own[i].TargetDevices = own[i].TargetDevices.Lower()
	}
	s.data.Store(buildSnapshot(own))
	return nil
}

// CampaignsForZone returns campaigns booked on the zone plus those booked on every
// zone, preserving load order so tie-breaking stays deterministic.
func (s *CampaignStore) CampaignsForZone(_ context.Context, zoneID string) ([]Campaign, error) {
	data := s.data.Load()
	idx := mergeIndexes(data.byZone[zoneID], data.anyZone)
	out := make([]Campaign, 0, len(idx))
	for _, i := range idx {
		out = append(out, data.campaigns[i])
	}
	return out, nil
}

// mergeIndexes merges two ascending index lists into one ascending list.
func mergeIndexes(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// GetCampaign retrieves a campaign by ID. The returned value is a copy.
func (s *CampaignStore) GetCampaign(id string) (Campaign, error) {
	data := s.data.Load()
	i, ok := data.byID[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return data.campaigns[i], nil
}

// GetAllCampaigns returns all campaigns in load order.
func (s *CampaignStore) GetAllCampaigns() []Campaign {
	data := s.data.Load()
	out := make([]Campaign, len(data.campaigns))
	copy(out, data.campaigns)
	return out
}

// Len returns the number of loaded campaigns.
func (s *CampaignStore) Len() int {
	return len(s.data.Load().campaigns)
}

// ApplySpend overwrites TotalSpent for every listed campaign in one swap.
// Unknown ids are ignored.
func (s *CampaignStore) ApplySpend(spent map[string]float64) {
	if len(spent) == 0 {
		return
	}
	for {
		current := s.data.Load()
		campaigns := make([]Campaign, len(current.campaigns))
		copy(campaigns, current.campaigns)
		for id, total := range spent {
			if i, ok := current.byID[id]; ok {
				campaigns[i].TotalSpent = total
			}
		}
		next := &campaignSnapshot{
			campaigns: campaigns,
			byID:      current.byID,
			byZone:    current.byZone,
			anyZone:   current.anyZone,
		}
		if s.data.CompareAndSwap(current, next) {
			return
		}
	}
}

// UpdateCampaignSpend records a new cumulative spend for a campaign so that the
// next auction sees the reduced headroom before the next full reload.
func (s *CampaignStore) UpdateCampaignSpend(id string, totalSpent float64) error {
	for {
		current := s.data.Load()
		i, ok := current.byID[id]
		if !ok {
			return ErrNotFound
		}
		campaigns := make([]Campaign, len(current.campaigns))
		copy(campaigns, current.campaigns)
		campaigns[i].TotalSpent = totalSpent
		next := &campaignSnapshot{
			campaigns: campaigns,
			byID:      current.byID,
			byZone:    current.byZone,
			anyZone:   current.anyZone,
		}
		if s.data.CompareAndSwap(current, next) {
			return nil
		}
	}
}
