package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records calls so tests can assert on emitted metrics.
type MockMetricsRegistry struct {
	mu           sync.Mutex
	Requests     map[string]int
	NoBids       int
	Auctions     map[string]int
	BidCounts    []int
	Filtered     map[string]int
	Settlements  []float64
	WinNotices   map[string]int
	Spend        map[string]float64
	SpendErrors  int
	RateLimited  map[string]int
	SnapshotSize int
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests:    make(map[string]int),
		Auctions:    make(map[string]int),
		Filtered:    make(map[string]int),
		WinNotices:  make(map[string]int),
		Spend:       make(map[string]float64),
		RateLimited: make(map[string]int),
	}
}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[endpoint+" "+method+" "+status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Auction metrics
func (m *MockMetricsRegistry) IncrementNoBids() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NoBids++
}

func (m *MockMetricsRegistry) IncrementAuctions(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Auctions[outcome]++
}

func (m *MockMetricsRegistry) ObserveBidsPerAuction(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BidCounts = append(m.BidCounts, count)
}

func (m *MockMetricsRegistry) IncrementFiltered(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Filtered[reason]++
}

func (m *MockMetricsRegistry) ObserveSettlementPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Settlements = append(m.Settlements, price)
}

// Win and spend metrics
func (m *MockMetricsRegistry) IncrementWinNotices(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WinNotices[status]++
}

func (m *MockMetricsRegistry) SetSpendTotal(campaign string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Spend[campaign] = amount
}

func (m *MockMetricsRegistry) IncrementSpendPersistErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpendErrors++
}

// Admission metrics
func (m *MockMetricsRegistry) IncrementRateLimited(zone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimited[zone]++
}

// Snapshot metrics
func (m *MockMetricsRegistry) SetSnapshotSize(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SnapshotSize = count
}

// AuctionCount returns the recorded count for an outcome.
func (m *MockMetricsRegistry) AuctionCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Auctions[outcome]
}

// FilteredCount returns the recorded count for a rejection reason.
func (m *MockMetricsRegistry) FilteredCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Filtered[reason]
}
