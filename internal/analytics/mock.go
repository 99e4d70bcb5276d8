package analytics

import (
	"context"
	"sync"

	"github.com/patrickwarner/rtbengine/internal/models"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics records calls in memory for testing.
type MockAnalytics struct {
	mu       sync.Mutex
	Auctions []models.AuctionResult
	Wins     []WinEvent
	Err      error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordAuction stores the auction result.
func (m *MockAnalytics) RecordAuction(ctx context.Context, req *models.BidRequest, resp *models.BidResponse, result *models.AuctionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Auctions = append(m.Auctions, *result)
	return m.Err
}

// RecordWin stores the win event.
func (m *MockAnalytics) RecordWin(ctx context.Context, win WinEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Wins = append(m.Wins, win)
	return m.Err
}

// AuctionCount returns the number of recorded auctions.
func (m *MockAnalytics) AuctionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Auctions)
}

// WinCount returns the number of recorded wins.
func (m *MockAnalytics) WinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Wins)
}
