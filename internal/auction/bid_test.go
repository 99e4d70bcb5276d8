package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/rtbengine/internal/logic/selectors"
	"github.com/patrickwarner/rtbengine/internal/models"
)

func TestBidMeetsFloor(t *testing.T) {
	tests := []struct {
		price, floor float64
		want         bool
	}{
		{0.50, 0.50, true},
		{0.50, 0.50000000001, false},
		{0.49996, 0.50, false},
		{0.50004, 0.50, true},
		{0.4999, 0.50, false},
		{0.10, 0.50, false},
		{0.01, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BidMeetsFloor(tt.price, tt.floor), "price %v floor %v", tt.price, tt.floor)
	}
}

func TestComputeBid(t *testing.T) {
	sel := selectors.NewWeightedSelector(fixedSource{f: 0.9})

	t.Run("bids its configured amount", func(t *testing.T) {
		c := newCampaign("c1", 0.5)
		c.Ads = append(c.Ads, models.Ad{ID: "c1-ad2", Status: models.StatusActive, Weight: 3})
		bid := ComputeBid(&c, desktopUS("r"), sel)
		require.NotNil(t, bid)
		assert.Equal(t, "c1", bid.CampaignID)
		assert.Equal(t, 0.5, bid.Price)
		assert.Equal(t, "c1-ad2", bid.AdID)
	})

	t.Run("below floor", func(t *testing.T) {
		c := newCampaign("c1", 0.10)
		req := desktopUS("r")
		req.Floor = floatPtr(0.50)
		assert.Nil(t, ComputeBid(&c, req, sel))
	})

	t.Run("equal to floor", func(t *testing.T) {
		c := newCampaign("c1", 0.50)
		req := desktopUS("r")
		req.Floor = floatPtr(0.50)
		assert.NotNil(t, ComputeBid(&c, req, sel))
	})

	t.Run("no active ads", func(t *testing.T) {
		c := newCampaign("c1", 0.5)
		c.Ads[0].Status = models.StatusPaused
		assert.Nil(t, ComputeBid(&c, desktopUS("r"), sel))
	})

	t.Run("paused ads are skipped", func(t *testing.T) {
		c := newCampaign("c1", 0.5)
		c.Ads = []models.Ad{
			{ID: "paused", Status: models.StatusPaused, Weight: 100},
			{ID: "live", Status: models.StatusActive, Weight: 1},
		}
		bid := ComputeBid(&c, desktopUS("r"), sel)
		require.NotNil(t, bid)
		assert.Equal(t, "live", bid.AdID)
	})
}
