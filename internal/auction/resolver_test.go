package auction

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/rtbengine/internal/models"
)

func TestResolve_Empty(t *testing.T) {
	result := Resolve(nil)
	assert.Nil(t, result.Winner)
	assert.Equal(t, 0.0, result.SecondPrice)
	assert.NotNil(t, result.AllBids)
	assert.Empty(t, result.AllBids)
	assert.True(t, strings.HasPrefix(result.AuctionID, models.AuctionIDPrefix))
}

func TestResolve_SecondPrice(t *testing.T) {
	tests := []struct {
		name       string
		bids       []models.Bid
		winner     string
		second     float64
		settlement float64
	}{
		{
			name:       "two bids",
			bids:       []models.Bid{{CampaignID: "a", Price: 0.50}, {CampaignID: "b", Price: 0.30}},
			winner:     "a",
			second:     0.30,
			settlement: 0.31,
		},
		{
			name:       "highest bid not first",
			bids:       []models.Bid{{CampaignID: "a", Price: 1.0}, {CampaignID: "b", Price: 2.5}, {CampaignID: "c", Price: 1.75}},
			winner:     "b",
			second:     1.75,
			settlement: 1.76,
		},
		{
			name:       "single bid pays one cent",
			bids:       []models.Bid{{CampaignID: "a", Price: 0.50}},
			winner:     "a",
			second:     0,
			settlement: 0.01,
		},
		{
			name:       "single sub-cent bid clamps to own price",
			bids:       []models.Bid{{CampaignID: "a", Price: 0.005}},
			winner:     "a",
			second:     0,
			settlement: 0.005,
		},
		{
			name:       "increment would exceed winning bid",
			bids:       []models.Bid{{CampaignID: "a", Price: 0.305}, {CampaignID: "b", Price: 0.30}},
			winner:     "a",
			second:     0.30,
			settlement: 0.305,
		},
		{
			name:       "tie goes to first seen at its own price",
			bids:       []models.Bid{{CampaignID: "a", Price: 0.40}, {CampaignID: "b", Price: 0.40}},
			winner:     "a",
			second:     0.40,
			settlement: 0.40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Resolve(tt.bids)
			require.NotNil(t, result.Winner)
			assert.Equal(t, tt.winner, result.Winner.CampaignID)
			assert.InDelta(t, tt.second, result.SecondPrice, 1e-9)
			assert.InDelta(t, tt.settlement, result.Winner.Price, 1e-9)
			assert.LessOrEqual(t, result.Winner.Price, result.AllBids[0].Price)
			assert.Len(t, result.AllBids, len(tt.bids))
		})
	}
}

func TestResolve_SortsDescendingAndKeepsInput(t *testing.T) {
	in := []models.Bid{
		{CampaignID: "low", Price: 0.1},
		{CampaignID: "tie1", Price: 0.7},
		{CampaignID: "high", Price: 0.9},
		{CampaignID: "tie2", Price: 0.7},
	}
	result := Resolve(in)

	var order []string
	for _, b := range result.AllBids {
		order = append(order, b.CampaignID)
	}
	assert.Equal(t, []string{"high", "tie1", "tie2", "low"}, order)
	assert.Equal(t, 0.9, result.AllBids[0].Price, "AllBids keeps original prices")
	assert.Equal(t, "low", in[0].CampaignID, "input must not be reordered")
}

func TestResolve_Deterministic(t *testing.T) {
	bids := []models.Bid{{CampaignID: "x", Price: 0.2}, {CampaignID: "y", Price: 0.2}, {CampaignID: "z", Price: 0.1}}
	first := Resolve(bids)
	for i := 0; i < 50; i++ {
		again := Resolve(bids)
		assert.Equal(t, first.Winner.CampaignID, again.Winner.CampaignID)
		assert.Equal(t, first.AllBids, again.AllBids)
	}
}

func TestNewAuctionID_UniqueAcrossGoroutines(t *testing.T) {
	const workers, perWorker = 16, 200
	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, NewAuctionID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestSettlementPrice(t *testing.T) {
	assert.InDelta(t, 0.31, SettlementPrice(0.50, 0.30), 1e-9)
	assert.InDelta(t, 0.30, SettlementPrice(0.30, 0.30), 1e-9)
	assert.InDelta(t, 1.0, SettlementPrice(1.0, 0.995), 1e-9)
}
