package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS advertisers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    balance DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    advertiser_id TEXT NOT NULL REFERENCES advertisers(id),
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    campaign_type TEXT NOT NULL DEFAULT 'cpm',
    bid_amount DOUBLE PRECISION NOT NULL CHECK (bid_amount >= 0),
    budget DOUBLE PRECISION NOT NULL CHECK (budget >= 0),
    total_spent DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (total_spent >= 0),
    zone_ids TEXT[] NOT NULL DEFAULT '{}',
    target_devices TEXT[] NOT NULL DEFAULT '{}',
    target_countries TEXT[] NOT NULL DEFAULT '{}',
    target_pages TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS ads (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    weight DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK (weight >= 0),
    html TEXT NOT NULL DEFAULT '',
    position INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status);
CREATE INDEX IF NOT EXISTS idx_campaigns_advertiser_id ON campaigns (advertiser_id);
CREATE INDEX IF NOT EXISTS idx_ads_campaign_id ON ads (campaign_id, position);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.connection_string", dsn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	// Configure connection pooling for production use
	db.SetMaxOpenConns(maxOpenConns)       // Maximum number of open connections
	db.SetMaxIdleConns(maxIdleConns)       // Maximum number of idle connections
	db.SetConnMaxLifetime(connMaxLifetime) // Maximum lifetime of a connection
	db.SetConnMaxIdleTime(connMaxIdleTime) // Maximum idle time before closing connection

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// loadCampaignsSQL applies only the broad activity filter; fine-grained
// eligibility happens per auction.
const loadCampaignsSQL = `SELECT c.id, c.name, c.status, c.campaign_type, c.bid_amount, c.budget, c.total_spent,
       c.zone_ids, c.target_devices, c.target_countries, c.target_pages, a.id, a.balance
FROM campaigns c JOIN advertisers a ON a.id = c.advertiser_id
WHERE c.status <> 'ended'
ORDER BY c.id`

const loadAdsSQL = `SELECT a.id, a.campaign_id, a.name, a.status, a.weight, a.html
FROM ads a JOIN campaigns c ON c.id = a.campaign_id
WHERE c.status <> 'ended'
ORDER BY a.campaign_id, a.position, a.id`

// LoadCampaigns retrieves all non-ended campaigns with their advertiser and ads.
func (p *Postgres) LoadCampaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(ctx, loadCampaignsSQL)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	index := make(map[string]int)
	for rows.Next() {
		var c models.Campaign
		var devices, countries, pages []string
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Type, &c.BidAmount, &c.Budget, &c.TotalSpent,
			pq.Array(&c.ZoneIDs), pq.Array(&devices), pq.Array(&countries), pq.Array(&pages),
			&c.Advertiser.ID, &c.Advertiser.Balance); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		c.TargetDevices = models.NewStringSet(devices...)
		c.TargetCountries = models.NewStringSet(countries...)
		c.TargetPages = models.NewStringSet(pages...)
		index[c.ID] = len(campaigns)
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}

	adRows, err := p.DB.QueryContext(ctx, loadAdsSQL)
	if err != nil {
		return nil, fmt.Errorf("query ads: %w", err)
	}
	defer adRows.Close()

	for adRows.Next() {
		var ad models.Ad
		var campaignID string
		if err := adRows.Scan(&ad.ID, &campaignID, &ad.Name, &ad.Status, &ad.Weight, &ad.HTML); err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		i, ok := index[campaignID]
		if !ok {
			continue
		}
		campaigns[i].Ads = append(campaigns[i].Ads, ad)
	}
	if err := adRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ads: %w", err)
	}
	return campaigns, nil
}

// incrementSpendSQL refuses the update rather than crossing the budget, so two
// concurrent wins cannot both spend the last of it.
const incrementSpendSQL = `UPDATE campaigns SET total_spent = total_spent + $1
WHERE id = $2 AND total_spent + $1 <= budget
RETURNING total_spent`

// IncrementSpend adds amount to the campaign's total spend in a single
// conditional update. It returns ErrBudgetExceeded when the budget would be
// crossed and models.ErrNotFound for unknown campaigns.
func (p *Postgres) IncrementSpend(ctx context.Context, campaignID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	var total float64
	err := p.DB.QueryRowContext(ctx, incrementSpendSQL, amount, campaignID).Scan(&total)
	if err == nil {
		return total, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment spend for campaign %s: %w", campaignID, err)
	}

	var exists bool
	if err := p.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, campaignID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check campaign %s: %w", campaignID, err)
	}
	if !exists {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, models.ErrNotFound)
	}
	return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrBudgetExceeded)
}

// UpsertCampaign writes a campaign, its advertiser and its ads in one transaction.
// Existing ads for the campaign are replaced.
func (p *Postgres) UpsertCampaign(ctx context.Context, c models.Campaign) error {
	if err := models.ValidateCampaign(&c); err != nil {
		return err
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO advertisers (id, balance) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance`, c.Advertiser.ID, c.Advertiser.Balance); err != nil {
		return fmt.Errorf("upsert advertiser: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO campaigns (id, advertiser_id, name, status, campaign_type, bid_amount, budget, total_spent, zone_ids, target_devices, target_countries, target_pages)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET advertiser_id=EXCLUDED.advertiser_id, name=EXCLUDED.name, status=EXCLUDED.status,
    campaign_type=EXCLUDED.campaign_type, bid_amount=EXCLUDED.bid_amount, budget=EXCLUDED.budget,
    zone_ids=EXCLUDED.zone_ids, target_devices=EXCLUDED.target_devices,
    target_countries=EXCLUDED.target_countries, target_pages=EXCLUDED.target_pages`,
		c.ID, c.Advertiser.ID, c.Name, c.Status, c.Type, c.BidAmount, c.Budget, c.TotalSpent,
		pq.Array(c.ZoneIDs), pq.Array(c.TargetDevices.Values()), pq.Array(c.TargetCountries.Values()), pq.Array(c.TargetPages.Values())); err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ads WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear ads: %w", err)
	}
	for i, ad := range c.Ads {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ads (id, campaign_id, name, status, weight, html, position) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ad.ID, c.ID, ad.Name, ad.Status, ad.Weight, ad.HTML, i); err != nil {
			return fmt.Errorf("insert ad %s: %w", ad.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
