package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/seismic-alert-service/internal/adapter/bigdatacloud"
	"github.com/couchcryptid/seismic-alert-service/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/seismic-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/seismic-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/seismic-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/seismic-alert-service/internal/adapter/sqlite"
	"github.com/couchcryptid/seismic-alert-service/internal/adapter/telegram"
	"github.com/couchcryptid/seismic-alert-service/internal/config"
	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/couchcryptid/seismic-alert-service/internal/lock"
	"github.com/couchcryptid/seismic-alert-service/internal/observability"
	"github.com/couchcryptid/seismic-alert-service/internal/pipeline"
	"github.com/couchcryptid/seismic-alert-service/internal/settings"
	"github.com/couchcryptid/seismic-alert-service/internal/subscription"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.TenantsFile != "" {
		seeds, err := config.LoadTenantSeeds(cfg.TenantsFile)
		if err != nil {
			logger.Error("failed to load tenants file", "path", cfg.TenantsFile, "error", err)
			os.Exit(1)
		}
		tenants := make([]domain.TenantConfig, 0, len(seeds))
		for _, s := range seeds {
			tenants = append(tenants, s.TenantConfig())
		}
		if _, err := settings.SeedTenants(ctx, store, tenants, logger); err != nil {
			logger.Error("failed to seed tenants", "error", err)
			os.Exit(1)
		}
	}

	// Subscription cities are validated only when Mapbox is configured.
	var cityValidator domain.CityValidator
	if cfg.MapboxEnabled {
		cityValidator = mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		logger.Info("mapbox city validation enabled", "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox city validation disabled")
	}

	geocoder := bigdatacloud.NewCachedGeocoder(
		bigdatacloud.NewClient(cfg.GeocodeURL, cfg.GeocodeTimeout, metrics, logger),
		cfg.GeocodeCacheSize,
		metrics,
	)

	checks := readinessChecks{store}

	var locker pipeline.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		redisLocker, err := lock.NewRedis(ctx, cfg.RedisAddr, cfg.LockTTL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisLocker.Close()
		locker = redisLocker
		checks = append(checks, redisLocker)
		logger.Info("redis tenant locks enabled", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	}

	var publisher pipeline.DeliveryPublisher
	if cfg.KafkaEnabled() {
		kafkaPublisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kafkaPublisher
		logger.Info("delivery publishing enabled", "topic", cfg.KafkaDeliveryTopic)
	}

	bot, err := telegram.NewBot(cfg.TelegramToken, logger)
	if err != nil {
		logger.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}

	subs := subscription.NewService(store, cityValidator, clock, logger)
	settingsSvc := settings.NewService(store, clock, logger)
	telegram.NewCommands(bot, subs, settingsSvc, logger).Register(bot)

	p := pipeline.New(pipeline.Deps{
		Tenants:     store,
		Feed:        feed.NewClient(cfg.FeedTimeout, logger),
		Ledger:      store,
		Subscribers: store,
		Geocoder:    geocoder,
		Notifier:    telegram.NewNotifier(bot, cfg.TelegramDMRate, logger),
		Publisher:   publisher,
		Locker:      locker,
	}, clock, logger, metrics)
	checks = append(checks, p)

	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, prometheus.DefaultGatherer, logger)
	scheduler := pipeline.NewScheduler(p, cfg.PollSchedule, logger, metrics)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go bot.Run(ctx)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("in-flight poll cycle did not finish before shutdown timeout")
	}

	logger.Info("shutdown complete")
}

// readinessChecks is ready when every check passes.
type readinessChecks []sharedobs.ReadinessChecker

func (r readinessChecks) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
