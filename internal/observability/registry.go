package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Auction metrics
	IncrementNoBids()
	IncrementAuctions(outcome string)
	ObserveBidsPerAuction(count int)
	IncrementFiltered(reason string)
	ObserveSettlementPrice(price float64)

	// Win and spend metrics
	IncrementWinNotices(status string)
	SetSpendTotal(campaign string, amount float64)
	IncrementSpendPersistErrors()

	// Admission metrics
	IncrementRateLimited(zone string)

	// Snapshot metrics
	SetSnapshotSize(count int)
}

// Auction outcome labels.
const (
	OutcomeWon           = "won"
	OutcomeNoBid         = "no_bid"
	OutcomeProviderError = "provider_error"
)

// PrometheusRegistry implements MetricsRegistry using the existing global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Auction metrics
func (r *PrometheusRegistry) IncrementNoBids() {
	NoBidCount.Inc()
}

func (r *PrometheusRegistry) IncrementAuctions(outcome string) {
	AuctionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) ObserveBidsPerAuction(count int) {
	BidsPerAuction.Observe(float64(count))
}

func (r *PrometheusRegistry) IncrementFiltered(reason string) {
	FilteredCampaigns.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) ObserveSettlementPrice(price float64) {
	SettlementPrice.Observe(price)
}

// Win and spend metrics
func (r *PrometheusRegistry) IncrementWinNotices(status string) {
	WinNoticeCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) SetSpendTotal(campaign string, amount float64) {
	SpendTotal.WithLabelValues(campaign).Set(amount)
}

func (r *PrometheusRegistry) IncrementSpendPersistErrors() {
	SpendPersistErrors.Inc()
}

// Admission metrics
func (r *PrometheusRegistry) IncrementRateLimited(zone string) {
	RateLimitedRequests.WithLabelValues(zone).Inc()
}

// Snapshot metrics
func (r *PrometheusRegistry) SetSnapshotSize(count int) {
	SnapshotSize.Set(float64(count))
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Auction metrics
func (r *NoOpRegistry) IncrementNoBids()                     {}
func (r *NoOpRegistry) IncrementAuctions(outcome string)     {}
func (r *NoOpRegistry) ObserveBidsPerAuction(count int)      {}
func (r *NoOpRegistry) IncrementFiltered(reason string)      {}
func (r *NoOpRegistry) ObserveSettlementPrice(price float64) {}

// Win and spend metrics
func (r *NoOpRegistry) IncrementWinNotices(status string)             {}
func (r *NoOpRegistry) SetSpendTotal(campaign string, amount float64) {}
func (r *NoOpRegistry) IncrementSpendPersistErrors()                  {}

// Admission metrics
func (r *NoOpRegistry) IncrementRateLimited(zone string) {}

// Snapshot metrics
func (r *NoOpRegistry) SetSnapshotSize(count int) {}
