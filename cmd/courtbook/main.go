package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courtbook/internal/api"
	"courtbook/internal/audit"
	"courtbook/internal/cache"
	"courtbook/internal/catalog"
	"courtbook/internal/config"
	"courtbook/internal/coordinator"
	"courtbook/internal/db"
	"courtbook/internal/events"
	"courtbook/internal/ledger"
	"courtbook/internal/metrics"
	"courtbook/internal/payment"
)

func main() {
	cfg, err := config.Load(os.Getenv("COURTBOOK_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slots := catalog.New(nil)
	watcher := config.NewSlotWatcher(cfg.Catalog.Path, cfg.CatalogReloadInterval(),
		func(updated *config.SlotsConfig) {
			slots.Replace(updated.Definitions())
			logger.Info().Int("slots", len(updated.Slots)).Str("path", cfg.Catalog.Path).Msg("slot catalog loaded")
		},
		func(err error) {
			logger.Warn().Err(err).Str("path", cfg.Catalog.Path).Msg("slot catalog reload rejected, keeping previous")
		})
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load slot catalog")
	}

	bus := events.NewEventBus(&logger)
	availability := cache.NewAvailability(rdb, cfg.AvailabilityTTL(), &logger)
	availability.Subscribe(bus)
	audit.NewTrail(&logger).Subscribe(bus)

	l := ledger.New(database, slots, availability, bus, &logger)
	coord := coordinator.New(database, l, slots, newGateway(cfg, &logger), bus, coordinator.Config{
		CallbackURL:    cfg.Payment.CallbackURL,
		ReturnURL:      cfg.Payment.ReturnURL,
		GatewayTimeout: cfg.PaymentTimeout(),
	}, &logger)

	exporter := audit.NewExporter(database, cfg.Audit.Path, &logger)
	if cfg.Audit.Enabled {
		go exporter.Run(ctx, cfg.AuditInterval())
	}

	checks := []readinessCheck{{name: "db", ping: database.PingContext}}
	if rdb != nil {
		checks = append(checks, readinessCheck{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	go serveUntilDone(ctx, "health", healthServer(cfg.Monitoring.HealthCheckPort, checks), &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveUntilDone(ctx, "metrics", metricsServer(cfg.Monitoring.PrometheusPort), &logger)
	}

	if cfg.Backup.Enabled {
		job := &backupJob{db: database, dir: cfg.Backup.Path, retention: cfg.BackupRetention(), logger: &logger}
		go job.run(ctx, time.Minute, cfg.BackupInterval())
	}

	srv := api.NewHTTPServer(api.Config{
		Port:                cfg.Server.Port,
		AdminAPIKey:         cfg.Server.AdminAPIKey,
		PublicRatePerSecond: cfg.Server.PublicRatePerSecond,
		PublicBurst:         cfg.Server.PublicBurst,
	}, l, coord, exporter, &logger)
	if cfg.Server.PublicRatePerSecond < 0 {
		logger.Warn().Msg("server.public_rate_per_second is negative, public rate limiting is disabled")
	}
	if cfg.Server.AdminAPIKey == "" {
		logger.Warn().Msg("server.admin_api_key is empty, admin endpoints are disabled")
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("payment_provider", cfg.Payment.Provider).Msg("courtbook started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("courtbook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) payment.Gateway {
	if cfg.Payment.Provider == "http" && cfg.Payment.BaseURL != "" && cfg.Payment.ClientID != "" {
		return payment.NewHTTPGateway(payment.HTTPConfig{
			BaseURL:           cfg.Payment.BaseURL,
			TokenURL:          cfg.Payment.TokenURL,
			ClientID:          cfg.Payment.ClientID,
			ClientSecret:      cfg.Payment.ClientSecret,
			Timeout:           cfg.PaymentTimeout(),
			RequestsPerSecond: cfg.Payment.RequestsPerSecond,
		})
	}
	if cfg.Payment.Provider == "http" {
		logger.Warn().Msg("payment.base_url or client_id missing, falling back to mock checkout")
	}
	return payment.NewMockGateway(cfg.Payment.ReturnURL)
}
