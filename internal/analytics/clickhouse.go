package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"
)

// Event types written to the events table.
const (
	EventAuction = "auction"
	EventWin     = "win"
)

// AnalyticsService defines the interface for analytics operations.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordAuction records the outcome of one processed bid request.
	RecordAuction(ctx context.Context, req *models.BidRequest, resp *models.BidResponse, result *models.AuctionResult) error
	// RecordWin records a confirmed win and the spend it was billed.
	RecordWin(ctx context.Context, win WinEvent) error
}

// WinEvent describes a win confirmed through the win notice endpoint.
type WinEvent struct {
	RequestID  string
	AuctionID  string
	CampaignID string
	AdID       string
	Price      float64
	TotalSpent float64
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// EventRecord mirrors a row in the events table.
type EventRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id"`
	AuctionID    string    `json:"auction_id"`
	ZoneID       string    `json:"zone_id"`
	CampaignID   *string   `json:"campaign_id"`
	AdID         *string   `json:"ad_id"`
	Price        float64   `json:"price"`
	SecondPrice  float64   `json:"second_price"`
	BidCount     int32     `json:"bid_count"`
	DeviceType   *string   `json:"device_type"`
	Country      *string   `json:"country"`
	ProcessingMS int64     `json:"processing_ms"`
}

const createEventsSQL = `CREATE TABLE IF NOT EXISTS events (
       timestamp     DateTime,
       event_type    String,
       request_id    String,
       auction_id    String,
       zone_id       String,
       campaign_id   Nullable(String),
       ad_id         Nullable(String),
       price         Float64,
       second_price  Float64,
       bid_count     Int32,
       device_type   Nullable(String),
       country       Nullable(String),
       processing_ms Int64
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

const insertEventSQL = `INSERT INTO events (timestamp, event_type, request_id, auction_id, zone_id, campaign_id, ad_id, price, second_price, bid_count, device_type, country, processing_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string, metrics observability.MetricsRegistry, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createEventsSQL); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordAuction inserts one auction row. Winner columns are NULL for no-bid auctions.
func (a *Analytics) RecordAuction(ctx context.Context, req *models.BidRequest, resp *models.BidResponse, result *models.AuctionResult) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}

	var campaignID, adID sql.NullString
	var price float64
	if result.HasWinner() {
		campaignID = nullString(result.Winner.CampaignID)
		adID = nullString(result.Winner.AdID)
		price = result.Winner.Price
	}
	country, _ := req.Country()

	if _, err := a.DB.ExecContext(ctx, insertEventSQL, time.Now(), EventAuction, req.ID, result.AuctionID, req.ZoneID,
		campaignID, adID, price, result.SecondPrice, int32(len(result.AllBids)),
		nullString(req.Device.Type), nullString(country), resp.ProcessingTime); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", EventAuction))
		return fmt.Errorf("insert %s event: %w", EventAuction, err)
	}
	return nil
}

// RecordWin inserts one win row and publishes the campaign's new spend total.
func (a *Analytics) RecordWin(ctx context.Context, win WinEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if a.Metrics != nil {
		a.Metrics.SetSpendTotal(win.CampaignID, win.TotalSpent)
	}

	if _, err := a.DB.ExecContext(ctx, insertEventSQL, time.Now(), EventWin, win.RequestID, win.AuctionID, "",
		nullString(win.CampaignID), nullString(win.AdID), win.Price, 0.0, int32(0),
		sql.NullString{}, sql.NullString{}, int64(0)); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", EventWin))
		return fmt.Errorf("insert %s event: %w", EventWin, err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

const selectEventsSQL = `SELECT timestamp, event_type, request_id, auction_id, zone_id, campaign_id, ad_id, price, second_price, bid_count, device_type, country, processing_ms FROM events`

// GetEventsByRequestID returns all events for a given request ID ordered by timestamp.
func (a *Analytics) GetEventsByRequestID(ctx context.Context, id string) ([]EventRecord, error) {
	return a.queryEvents(ctx, selectEventsSQL+` WHERE request_id=? ORDER BY timestamp`, id)
}

// GetEventsByAuctionID returns the auction row and any confirmed win for one
// auction, oldest first.
func (a *Analytics) GetEventsByAuctionID(ctx context.Context, id string) ([]EventRecord, error) {
	return a.queryEvents(ctx, selectEventsSQL+` WHERE auction_id=? ORDER BY timestamp`, id)
}

func (a *Analytics) queryEvents(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.RequestID, &ev.AuctionID, &ev.ZoneID, &ev.CampaignID, &ev.AdID,
			&ev.Price, &ev.SecondPrice, &ev.BidCount, &ev.DeviceType, &ev.Country, &ev.ProcessingMS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
