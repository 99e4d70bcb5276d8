package auction

import (
	"context"
	"errors"

	"github.com/patrickwarner/rtbengine/internal/models"
)

var errSnapshot = errors.New("snapshot store down")

// staticProvider serves a fixed campaign list for every zone.
type staticProvider struct {
	campaigns []models.Campaign
	err       error
}

func (p staticProvider) CampaignsForZone(context.Context, string) ([]models.Campaign, error) {
	return p.campaigns, p.err
}

// fixedSource always draws the same values.
type fixedSource struct{ f float64 }

func (s fixedSource) Float64() float64 { return s.f }
func (s fixedSource) IntN(int) int     { return 0 }

func newCampaign(id string, bid float64) models.Campaign {
	return models.Campaign{
		ID:        id,
		Name:      "campaign " + id,
		Status:    models.StatusActive,
		Type:      models.CampaignTypeCPM,
		BidAmount: bid,
		Budget:    100,
		Advertiser: models.Advertiser{
			ID:      "adv-" + id,
			Balance: 50,
		},
		Ads: []models.Ad{
			{ID: id + "-ad", Name: "creative", Status: models.StatusActive, Weight: 1, HTML: "<div>" + id + "</div>"},
		},
	}
}

func desktopUS(id string) *models.BidRequest {
	return &models.BidRequest{
		ID:     id,
		ZoneID: "zone-1",
		Site:   models.Site{Domain: "example.com", Page: "/home"},
		Device: models.Device{Type: "desktop", Geo: &models.Geo{Country: "US"}},
	}
}

func floatPtr(v float64) *float64 { return &v }
