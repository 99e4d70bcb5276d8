package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbengine_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtbengine_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// number of no-bid responses
	NoBidCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtbengine_nobid_total",
			Help: "Total no-bid (empty) responses",
		},
	)

	// auctions run, labelled by outcome (won, no_bid, provider_error)
	AuctionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbengine_auctions_total",
			Help: "Total auctions conducted",
		},
		[]string{"outcome"},
	)

	// bids entering the resolver per auction
	BidsPerAuction = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtbengine_bids_per_auction",
			Help:    "Number of bids submitted to each auction",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	// campaigns rejected by targeting, labelled by the first failing check
	FilteredCampaigns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbengine_filtered_campaigns_total",
			Help: "Campaigns rejected by eligibility checks",
		},
		[]string{"reason"},
	)

	// settlement price paid by auction winners
	SettlementPrice = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rtbengine_settlement_price",
			Help:    "Histogram of second-price settlement amounts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// win notices received, labelled by status
	WinNoticeCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbengine_win_notices_total",
			Help: "Total win notice callbacks",
		},
		[]string{"status"},
	)

	// spend tracked per campaign
	SpendTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rtbengine_spend_total",
			Help: "Total spend recorded",
		},
		[]string{"campaign"},
	)

	// number of errors persisting spend updates
	SpendPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rtbengine_spend_persist_errors_total",
			Help: "Total spend persistence errors",
		},
	)

	// bid requests refused by the per-zone limiter
	RateLimitedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtbengine_rate_limited_total",
			Help: "Bid requests answered with no-bid by the zone rate limiter",
		},
		[]string{"zone"},
	)

	// campaigns held by the in-memory snapshot
	SnapshotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtbengine_snapshot_campaigns",
			Help: "Number of campaigns in the active snapshot",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		NoBidCount,
		AuctionCount,
		BidsPerAuction,
		FilteredCampaigns,
		SettlementPrice,
		WinNoticeCount,
		SpendTotal,
		SpendPersistErrors,
		RateLimitedRequests,
		SnapshotSize,
	)
}
