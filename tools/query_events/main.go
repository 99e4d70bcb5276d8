package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/analytics"
	"github.com/patrickwarner/rtbengine/internal/config"
	"github.com/patrickwarner/rtbengine/internal/observability"
)

// query_events prints the analytics trail of one bid request or one auction.
func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	requestID := flag.String("id", "", "bid request ID")
	auctionID := flag.String("auction", "", "auction ID (alternative to -id)")
	dsn := flag.String("dsn", "", "ClickHouse DSN (defaults to CLICKHOUSE_DSN)")
	timeout := flag.Duration("timeout", 30*time.Second, "query timeout")
	flag.Parse()

	if (*requestID == "") == (*auctionID == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -id or -auction is required")
		flag.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		*dsn = config.Load().ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(*dsn, observability.NewNoOpRegistry(), 2, 1, 5*time.Minute, time.Minute)
	if err != nil {
		logger.Fatal("connect clickhouse", zap.Error(err))
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var events []analytics.EventRecord
	if *auctionID != "" {
		events, err = a.GetEventsByAuctionID(ctx, *auctionID)
	} else {
		events, err = a.GetEventsByRequestID(ctx, *requestID)
	}
	if err != nil {
		logger.Fatal("query events", zap.Error(err))
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		logger.Fatal("encode events", zap.Error(err))
	}
}
