// Package reporting builds campaign delivery reports from the ClickHouse events
// table written by the analytics package.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickwarner/rtbengine/internal/analytics"
)

// CampaignMetrics is delivery for a campaign over one day or the whole period.
// All prices are in USD.
type CampaignMetrics struct {
	CampaignID    string    `json:"campaign_id"`
	Date          time.Time `json:"date"`
	AuctionsWon   int64     `json:"auctions_won"`   // Auctions the campaign won.
	Confirmed     int64     `json:"confirmed"`      // Wins confirmed through the win notice.
	Spend         float64   `json:"spend"`          // Sum of confirmed settlement prices.
	AvgSettlement float64   `json:"avg_settlement"` // Mean settlement price across won auctions.
	AvgSecond     float64   `json:"avg_second"`     // Mean runner-up bid across won auctions.
	// ConfirmRate is confirmed wins as a percentage of auctions won.
	ConfirmRate float64 `json:"confirm_rate"`
}

// AdMetrics is delivery for one ad of the campaign.
type AdMetrics struct {
	AdID        string  `json:"ad_id"`
	AuctionsWon int64   `json:"auctions_won"`
	Confirmed   int64   `json:"confirmed"`
	Spend       float64 `json:"spend"`
}

// CampaignSummary bundles the totals, the daily breakdown and the per-ad split.
type CampaignSummary struct {
	CampaignID   string            `json:"campaign_id"`
	TotalMetrics CampaignMetrics   `json:"total_metrics"`
	DailyMetrics []CampaignMetrics `json:"daily_metrics"`
	Ads          []AdMetrics       `json:"ads"`
}

// GenerateCampaignReport queries ClickHouse for the last days of delivery.
func GenerateCampaignReport(ctx context.Context, db *sql.DB, campaignID string, days int) (*CampaignSummary, error) {
	summary := &CampaignSummary{CampaignID: campaignID}

	daily, err := getDailyMetrics(ctx, db, campaignID, days)
	if err != nil {
		return nil, fmt.Errorf("get daily metrics: %w", err)
	}
	summary.DailyMetrics = daily

	total := CampaignMetrics{CampaignID: campaignID, Date: time.Now()}
	var settlementSum, secondSum float64
	for _, dm := range daily {
		total.AuctionsWon += dm.AuctionsWon
		total.Confirmed += dm.Confirmed
		total.Spend += dm.Spend
		settlementSum += dm.AvgSettlement * float64(dm.AuctionsWon)
		secondSum += dm.AvgSecond * float64(dm.AuctionsWon)
	}
	if total.AuctionsWon > 0 {
		total.AvgSettlement = settlementSum / float64(total.AuctionsWon)
		total.AvgSecond = secondSum / float64(total.AuctionsWon)
		total.ConfirmRate = float64(total.Confirmed) / float64(total.AuctionsWon) * 100
	}
	summary.TotalMetrics = total

	ads, err := getAdMetrics(ctx, db, campaignID, days)
	if err != nil {
		return nil, fmt.Errorf("get ad metrics: %w", err)
	}
	summary.Ads = ads

	return summary, nil
}

func getDailyMetrics(ctx context.Context, db *sql.DB, campaignID string, days int) ([]CampaignMetrics, error) {
	query := `
		SELECT
			toDate(timestamp) AS date,
			countIf(event_type = ?) AS won,
			countIf(event_type = ?) AS confirmed,
			sumIf(price, event_type = ?) AS spend,
			avgIf(price, event_type = ?) AS avg_settlement,
			avgIf(second_price, event_type = ?) AS avg_second
		FROM events
		WHERE campaign_id = ?
		  AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date`

	rows, err := db.QueryContext(ctx, query,
		analytics.EventAuction, analytics.EventWin, analytics.EventWin,
		analytics.EventAuction, analytics.EventAuction,
		campaignID, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CampaignMetrics
	for rows.Next() {
		m := CampaignMetrics{CampaignID: campaignID}
		if err := rows.Scan(&m.Date, &m.AuctionsWon, &m.Confirmed, &m.Spend, &m.AvgSettlement, &m.AvgSecond); err != nil {
			return nil, err
		}
		if m.AuctionsWon > 0 {
			m.ConfirmRate = float64(m.Confirmed) / float64(m.AuctionsWon) * 100
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func getAdMetrics(ctx context.Context, db *sql.DB, campaignID string, days int) ([]AdMetrics, error) {
	query := `
		SELECT
			ad_id,
			countIf(event_type = ?) AS won,
			countIf(event_type = ?) AS confirmed,
			sumIf(price, event_type = ?) AS spend
		FROM events
		WHERE campaign_id = ?
		  AND ad_id IS NOT NULL
		  AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY ad_id
		ORDER BY spend DESC, ad_id`

	rows, err := db.QueryContext(ctx, query,
		analytics.EventAuction, analytics.EventWin, analytics.EventWin,
		campaignID, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []AdMetrics
	for rows.Next() {
		var m AdMetrics
		if err := rows.Scan(&m.AdID, &m.AuctionsWon, &m.Confirmed, &m.Spend); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
