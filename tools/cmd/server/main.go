package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickwarner/rtbengine/internal/analytics"
	"github.com/patrickwarner/rtbengine/internal/api"
	"github.com/patrickwarner/rtbengine/internal/auction"
	"github.com/patrickwarner/rtbengine/internal/config"
	"github.com/patrickwarner/rtbengine/internal/db"
	"github.com/patrickwarner/rtbengine/internal/geoip"
	"github.com/patrickwarner/rtbengine/internal/macros"
	"github.com/patrickwarner/rtbengine/internal/middleware"
	"github.com/patrickwarner/rtbengine/internal/models"
	"github.com/patrickwarner/rtbengine/internal/observability"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	var ledger db.SpendLedger = pg
	if cfg.SpendLedger == config.LedgerRedis {
		ledger = redisStore
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	var analyticsSvc analytics.AnalyticsService
	var reportDB *sql.DB
	if cfg.AnalyticsEnabled {
		ch, err := analytics.InitClickHouse(cfg.ClickHouseDSN, metricsRegistry, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		analyticsSvc = ch
		reportDB = ch.DB
	}

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		return fmt.Errorf("failed to load geoip db: %w", err)
	}
	defer func() { _ = geoSvc.Close() }()

	store := models.NewCampaignStore()
	expander := macros.NewMacroExpanderWithMode(logger, cfg.MacroStrictMode)
	engine := auction.NewEngine(store,
		auction.WithLogger(logger),
		auction.WithMetrics(metricsRegistry),
		auction.WithFailOpen(cfg.AuctionFailOpen),
		auction.WithMacroExpander(expander),
		auction.WithWinNotices(auction.WinNoticeConfig{
			BaseURL: cfg.WinNoticeBaseURL,
			Secret:  []byte(cfg.TokenSecret),
		}),
	)
	if cfg.TokenSecret == "" {
		logger.Warn("TOKEN_SECRET not set, win notices disabled")
	}

	instanceID := uuid.NewString()
	srvDeps := api.NewServer(logger, engine, store, pg, ledger, redisStore, analyticsSvc, geoSvc, metricsRegistry, cfg, instanceID)
	srvDeps.ReportDB = reportDB
	srvDeps.Macros = expander
	if err := srvDeps.Reload(ctx); err != nil {
		return fmt.Errorf("initial campaign load: %w", err)
	}

	r := mux.NewRouter()
	srvDeps.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	handler := otelhttp.NewHandler(middleware.WithTraceLogger(logger)(r), "rtbengine")

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Auction server running",
		zap.String("addr", addr),
		zap.String("spend_ledger", cfg.SpendLedger),
		zap.Bool("fail_open", cfg.AuctionFailOpen),
		zap.Int("campaigns", store.Len()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				observability.LogSamplingStats(logger)
				observability.ResetSamplingStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	if cfg.RedisReloadNotify {
		go redisStore.SubscribeReload(ctx, instanceID, func(ctx context.Context) {
			if err := srvDeps.Reload(ctx); err != nil {
				logger.Error("notified reload", zap.Error(err))
			}
		})
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
