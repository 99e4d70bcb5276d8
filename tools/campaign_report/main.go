// Campaign Report Tool prints delivery for one campaign from the ClickHouse
// events table: auctions won, confirmed wins, settlement prices and the
// per-ad split.
//
// Usage:
//
//	go run ./tools/campaign_report -campaign-id=demo-premium -days=30
//
// Configuration:
//
//	-campaign-id: Required. The campaign to report on
//	-days: Optional. Number of days to include in the report (default: 7)
//	-clickhouse-dsn: Optional. ClickHouse connection string (default: tcp://localhost:9000)
//
// Environment Variables:
//
//	CLICKHOUSE_DSN: ClickHouse connection string (overridden by -clickhouse-dsn flag)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/rtbengine/internal/reporting"
)

func main() {
	var (
		campaignID = flag.String("campaign-id", "", "Campaign ID to generate report for")
		days       = flag.Int("days", 7, "Number of days to include in report")
		dsn        = flag.String("clickhouse-dsn", getEnv("CLICKHOUSE_DSN", "tcp://localhost:9000"), "ClickHouse DSN")
	)
	flag.Parse()

	if *campaignID == "" {
		fmt.Fprintf(os.Stderr, "Error: campaign-id is required\n")
		flag.Usage()
		os.Exit(1)
	}

	db, err := sql.Open("clickhouse", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging ClickHouse: %v\n", err)
		os.Exit(1)
	}

	summary, err := reporting.GenerateCampaignReport(ctx, db, *campaignID, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	printCampaignReport(summary, *days)
}

func printCampaignReport(summary *reporting.CampaignSummary, days int) {
	rule := "───────────────────────────────────────────────────────────────────────────"
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                          CAMPAIGN DELIVERY REPORT                          \n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Campaign ID: %s\n", summary.CampaignID)
	fmt.Printf("Report Period: %d days (ending %s)\n", days, time.Now().Format("2006-01-02"))
	fmt.Printf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	total := summary.TotalMetrics
	fmt.Printf("OVERALL\n%s\n", rule)
	fmt.Printf("Auctions Won:        %s\n", formatNumber(total.AuctionsWon))
	fmt.Printf("Confirmed Wins:      %s\n", formatNumber(total.Confirmed))
	fmt.Printf("Confirm Rate:        %.2f%%\n", total.ConfirmRate)
	fmt.Printf("Spend:               $%.4f\n", total.Spend)
	fmt.Printf("Avg Settlement:      $%.4f\n", total.AvgSettlement)
	fmt.Printf("Avg Runner-up Bid:   $%.4f\n\n", total.AvgSecond)

	if len(summary.DailyMetrics) > 0 {
		fmt.Printf("DAILY BREAKDOWN\n%s\n", rule)
		fmt.Printf("Date       |      Won | Confirmed | Confirm %% |     Spend | Avg Settle\n")
		fmt.Printf("-----------|----------|-----------|-----------|-----------|-----------\n")
		for _, dm := range summary.DailyMetrics {
			fmt.Printf("%-10s | %8s | %9s | %8.2f%% | $%8.4f | $%8.4f\n",
				dm.Date.Format("2006-01-02"),
				formatNumber(dm.AuctionsWon),
				formatNumber(dm.Confirmed),
				dm.ConfirmRate,
				dm.Spend,
				dm.AvgSettlement)
		}
		fmt.Printf("\n")
	}

	if len(summary.Ads) > 0 {
		fmt.Printf("ADS BY SPEND\n%s\n", rule)
		fmt.Printf("Ad ID                        |      Won | Confirmed |     Spend\n")
		fmt.Printf("-----------------------------|----------|-----------|----------\n")
		for _, ad := range summary.Ads {
			fmt.Printf("%-28s | %8s | %9s | $%8.4f\n",
				ad.AdID, formatNumber(ad.AuctionsWon), formatNumber(ad.Confirmed), ad.Spend)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("INSIGHTS\n%s\n", rule)
	switch {
	case total.AuctionsWon == 0:
		fmt.Printf("No auctions won in this period. Check status, budget, zones and targeting.\n")
	case total.ConfirmRate < 50:
		fmt.Printf("Only %.1f%% of wins were confirmed. Check that win notices are reaching /win.\n", total.ConfirmRate)
	case total.AvgSettlement > 0 && total.AvgSecond > 0 && total.AvgSettlement-total.AvgSecond > 0.02:
		fmt.Printf("Settlement is running well above the runner-up bid. Verify rounding and floor settings.\n")
	default:
		fmt.Printf("Delivery looks healthy.\n")
	}
	if total.Spend > 0 {
		for _, ad := range summary.Ads {
			if share := ad.Spend / total.Spend * 100; share > 80 && len(summary.Ads) > 1 {
				fmt.Printf("Ad %s takes %.1f%% of spend. Review creative weights.\n", ad.AdID, share)
				break
			}
		}
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════════════\n")
}

// formatNumber formats integers with comma separators, e.g. 1234567 becomes "1,234,567".
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
