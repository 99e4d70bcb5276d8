package api

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/rtbengine/internal/analytics"
	"github.com/patrickwarner/rtbengine/internal/auction"
	"github.com/patrickwarner/rtbengine/internal/config"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/geoip"
	"github.com/patrickwarner/rtbengine/internal/logic/ratelimit"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"

	"go.uber.org/zap"
)

// Server groups dependencies for HTTP handlers. ReportDB is the ClickHouse
// handle campaign reports query; nil disables /campaigns/{id}/report. When
// Macros is set, reloads reject campaigns whose markup uses unknown macros.
type Server struct {
	Logger      *zap.Logger
	Engine      *auction.Engine
	Store       *models.CampaignStore
	Loader      db.CampaignLoader
	Ledger      db.SpendLedger
	Redis       *db.RedisStore
	Analytics   analytics.AnalyticsService
	ReportDB    *sql.DB
	GeoIP       *geoip.GeoIP
	Macros      models.MarkupChecker
	Limiter     *ratelimit.ZoneLimiter
	DebugTrace  bool
	TokenSecret []byte
	TokenTTL    time.Duration
	Metrics     observability.MetricsRegistry
	Config      config.Config
	// InstanceID tags reload notifications so an instance ignores its own.
	InstanceID string
	reloadMu   sync.Mutex
}

// NewServer constructs a Server. Analytics may be nil when disabled.
func NewServer(logger *zap.Logger, engine *auction.Engine, store *models.CampaignStore, loader db.CampaignLoader, ledger db.SpendLedger, redisStore *db.RedisStore, analyticsSvc analytics.AnalyticsService, geo *geoip.GeoIP, metrics observability.MetricsRegistry, cfg config.Config, instanceID string) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	limiter := ratelimit.NewZoneLimiter(ratelimit.Config{
		Capacity:   cfg.ZoneRateLimitCapacity,
		RefillRate: cfg.ZoneRateLimitRefill,
		Enabled:    cfg.ZoneRateLimitEnabled,
	}, metrics)
	return &Server{
		Logger:      logger,
		Engine:      engine,
		Store:       store,
		Loader:      loader,
		Ledger:      ledger,
		Redis:       redisStore,
		Analytics:   analyticsSvc,
		GeoIP:       geo,
		Limiter:     limiter,
		DebugTrace:  cfg.DebugTrace,
		TokenSecret: []byte(cfg.TokenSecret),
		TokenTTL:    cfg.TokenTTL,
		Metrics:     metrics,
		Config:      cfg,
		InstanceID:  instanceID,
	}
}

// Routes registers every handler on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/bid", s.BidHandler).Methods("POST")
	r.HandleFunc("/win", s.WinHandler).Methods("POST", "GET")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/campaigns/{id}/report", s.CampaignReportHandler).Methods("GET")
}

// Reload refreshes the campaign snapshot from durable storage. When the Redis
// ledger is active its budgets are resynced after the swap.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.Loader == nil {
		return fmt.Errorf("campaign loader unavailable")
	}

	var syncers []db.BudgetSyncer
	if s.Redis != nil && s.Config.SpendLedger == config.LedgerRedis {
		syncers = append(syncers, s.Redis)
	}

	loader := s.Loader
	if s.Macros != nil {
		loader = db.WithMarkupCheck(loader, s.Macros)
	}
	n, err := db.ReloadSnapshot(ctx, loader, s.Store, syncers...)
	if err != nil {
		return err
	}
	s.Metrics.SetSnapshotSize(n)
	return nil
}

// notifyReload tells other instances to reload. Failures are logged only.
func (s *Server) notifyReload(ctx context.Context) {
	if s.Redis == nil || !s.Config.RedisReloadNotify {
		return
	}
	if err := s.Redis.PublishReload(ctx, s.InstanceID); err != nil {
		s.Logger.Warn("publish reload notification", zap.Error(err))
	}
}
