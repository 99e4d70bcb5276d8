package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/rtbengine/internal/config"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/macros"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"
)

var (
	advCount     = flag.Int("advertisers", 3, "number of advertisers")
	campPerAdv   = flag.Int("campaigns", 10, "campaigns per advertiser")
	adsPerCamp   = flag.Int("ads", 3, "ads per campaign")
	zoneCount    = flag.Int("zones", 4, "number of zones campaigns are booked on")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload   = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
	skipDemoData = flag.Bool("skip-demo", false, "skip the fixed demo campaigns")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))
	expander := macros.NewMacroExpander(logger)

	inserted := 0
	if !*skipDemoData {
		for _, c := range demoCampaigns() {
			if err := models.ValidateAdMarkup(&c, expander); err != nil {
				logger.Fatal("demo campaign markup", zap.Error(err))
			}
			if err := pg.UpsertCampaign(ctx, c); err != nil {
				logger.Fatal("insert demo campaign", zap.String("campaign_id", c.ID), zap.Error(err))
			}
			inserted++
		}
	}

	for a := 0; a < *advCount; a++ {
		adv := models.Advertiser{
			ID:      fmt.Sprintf("adv-%s", randomString(r, 6)),
			Balance: float64(500 + r.Intn(5000)),
		}
		for c := 0; c < *campPerAdv; c++ {
			camp := randomCampaign(r, adv)
			if err := models.ValidateAdMarkup(&camp, expander); err != nil {
				logger.Fatal("campaign markup", zap.Error(err))
			}
			if err := pg.UpsertCampaign(ctx, camp); err != nil {
				logger.Fatal("insert campaign", zap.String("campaign_id", camp.ID), zap.Error(err))
			}
			inserted++
		}
	}

	fmt.Printf("fake data inserted: %d campaigns\n", inserted)

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

// demoCampaigns is a small fixed set on zone-1 whose auction outcome is easy
// to reason about by hand.
func demoCampaigns() []models.Campaign {
	adv := models.Advertiser{ID: "adv-demo", Balance: 10000}
	ad := func(id, color string, weight float64) models.Ad {
		return models.Ad{
			ID:     id,
			Name:   id,
			Status: models.StatusActive,
			Weight: weight,
			HTML:   fmt.Sprintf(`<div style="background:%s" data-auction="${AUCTION_ID}" data-price="${AUCTION_PRICE}">%s</div>`, color, id),
		}
	}
	return []models.Campaign{
		{
			ID: "demo-premium", Name: "Demo Premium", Status: models.StatusActive, Type: models.CampaignTypeCPM,
			BidAmount: 2.50, Budget: 1000, ZoneIDs: []string{"zone-1"},
			TargetDevices: models.NewStringSet("desktop"),
			Advertiser:    adv,
			Ads:           []models.Ad{ad("demo-premium-blue", "blue", 3), ad("demo-premium-red", "red", 1)},
		},
		{
			ID: "demo-standard", Name: "Demo Standard", Status: models.StatusActive, Type: models.CampaignTypeCPM,
			BidAmount: 1.75, Budget: 500, ZoneIDs: []string{"zone-1"},
			Advertiser: adv,
			Ads:        []models.Ad{ad("demo-standard-green", "green", 1)},
		},
		{
			ID: "demo-us-mobile", Name: "Demo US Mobile", Status: models.StatusActive, Type: models.CampaignTypeCPC,
			BidAmount: 3.00, Budget: 200, ZoneIDs: []string{"zone-1"},
			TargetDevices:   models.NewStringSet("mobile", "tablet"),
			TargetCountries: models.NewStringSet("US"),
			Advertiser:      adv,
			Ads:             []models.Ad{ad("demo-us-mobile-orange", "orange", 1)},
		},
	}
}

// random helpers

var (
	deviceTypes = []string{"desktop", "mobile", "tablet"}
	countries   = []string{"US", "CA", "GB", "DE", "FR", "JP", "BR"}
	pages       = []string{"/home", "/news", "/sports", "/tech", "/travel"}
	statuses    = []string{models.StatusActive, models.StatusActive, models.StatusActive, models.StatusPaused}
)

func randomString(r *rand.Rand, n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

func fakeCampaignName(r *rand.Rand) string {
	seasons := []string{"Spring", "Summer", "Fall", "Winter", "Holiday"}
	products := []string{"Sale", "Launch", "Promo", "Special"}
	return fmt.Sprintf("%s %s %d", seasons[r.Intn(len(seasons))], products[r.Intn(len(products))], r.Intn(100))
}

// pick returns up to n distinct values from pool. Zero means no restriction.
func pick(r *rand.Rand, pool []string, n int) models.StringSet {
	if n == 0 {
		return models.StringSet{}
	}
	idx := r.Perm(len(pool))
	out := make([]string, 0, n)
	for _, i := range idx[:min(n, len(pool))] {
		out = append(out, pool[i])
	}
	return models.NewStringSet(out...)
}

func randomCampaign(r *rand.Rand, adv models.Advertiser) models.Campaign {
	id := "camp-" + randomString(r, 8)
	budget := float64(50 + r.Intn(950))
	camp := models.Campaign{
		ID:        id,
		Name:      fakeCampaignName(r),
		Status:    statuses[r.Intn(len(statuses))],
		Type:      []string{models.CampaignTypeCPM, models.CampaignTypeCPC}[r.Intn(2)],
		BidAmount: float64(r.Intn(500)) / 100,
		Budget:    budget,
		// some campaigns start close to exhaustion so budget filtering shows up
		TotalSpent:      budget * float64(r.Intn(100)) / 100,
		TargetDevices:   pick(r, deviceTypes, r.Intn(3)),
		TargetCountries: pick(r, countries, r.Intn(3)),
		TargetPages:     pick(r, pages, r.Intn(2)),
		Advertiser:      adv,
	}
	// a quarter of campaigns run on every zone
	if r.Intn(4) > 0 {
		camp.ZoneIDs = []string{fmt.Sprintf("zone-%d", 1+r.Intn(*zoneCount))}
	}
	for i := 0; i < 1+r.Intn(*adsPerCamp); i++ {
		camp.Ads = append(camp.Ads, models.Ad{
			ID:     fmt.Sprintf("%s-ad-%d", id, i),
			Name:   fmt.Sprintf("Creative %d", i),
			Status: models.StatusActive,
			Weight: float64(r.Intn(10)),
			HTML:   fmt.Sprintf(`<a href="https://example.com/%s?p=${AUCTION_PRICE}"><img src="https://cdn.example.com/%s.png"></a>`, id, randomString(r, 10)),
		})
	}
	return camp
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
