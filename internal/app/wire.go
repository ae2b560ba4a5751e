package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/openarb/venuewatch/internal/blob/s3"
	"github.com/openarb/venuewatch/internal/cache/memory"
	"github.com/openarb/venuewatch/internal/cache/redis"
	"github.com/openarb/venuewatch/internal/config"
	"github.com/openarb/venuewatch/internal/costs"
	"github.com/openarb/venuewatch/internal/detector"
	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/engine"
	"github.com/openarb/venuewatch/internal/liquidity"
	"github.com/openarb/venuewatch/internal/notify"
	"github.com/openarb/venuewatch/internal/oracle"
	"github.com/openarb/venuewatch/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Engine core.
	Cache       domain.ObservationCache
	Validator   *oracle.Validator
	Monitor     *liquidity.Monitor
	Coordinator *engine.Coordinator

	// Shared infrastructure.
	SignalBus   domain.SignalBus
	Mirror      domain.LivePriceCache
	RateLimiter domain.RateLimiter

	// Persistence (nil outside full mode).
	OpportunityStore domain.OpportunityStore
	AlertStore       domain.AlertStore
	Archiver         domain.Archiver

	// Notifications.
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Mirror = redis.NewLivePriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- PostgreSQL (full mode only) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.AlertStore = postgres.NewAlertStore(pool)
	}

	// --- S3 archival (requires Postgres stores) ---
	if cfg.Archive.Enabled {
		if deps.OpportunityStore == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive requires mode %q with postgres", "full")
		}
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.OpportunityStore,
			deps.AlertStore,
			logger,
		)
	}

	// --- Engine core ---
	clock := domain.RealClock{}
	cache := memory.NewObservationCache()
	deps.Cache = cache

	feeRates := make(map[string]float64, len(cfg.Venues))
	reliability := make(map[string]float64, len(cfg.Venues))
	for name, venue := range cfg.Venues {
		feeRates[name] = venue.FeeRate
		reliability[name] = venue.Reliability
	}

	model := costs.NewModel(costs.Config{
		FeeRates:        feeRates,
		BaseGasPerTrade: cfg.Detector.BaseGasPerTrade,
		GasUnitPrice:    cfg.Detector.GasUnitPrice,
		ProtocolFeeRate: cfg.Detector.ProtocolFeeRate,
		ProtectionFee:   cfg.Detector.ProtectionFee,
	}, clock)

	deps.Validator = oracle.NewValidator(oracle.Config{
		MaxDeviationPercent: cfg.Oracle.MaxDeviationPercent,
		MaxAge:              cfg.Oracle.MaxAge(),
		StalenessDecay:      cfg.Oracle.StalenessDecay(),
	}, clock, logger)

	oppCh := make(chan domain.ArbitrageOpportunity, cfg.Engine.EventBufferSize)
	alertCh := make(chan domain.LiquidityAlert, cfg.Engine.EventBufferSize)

	det := detector.New(cache, model, deps.Validator, detector.Config{
		MinProfitPercent: cfg.Detector.MinProfitPercent,
		RescanInterval:   cfg.Detector.RescanInterval(),
		Reliability:      reliability,
	}, oppCh, clock, logger)

	deps.Monitor = liquidity.NewMonitor(liquidity.Config{
		HistoryCapacity:  cfg.Liquidity.HistoryCapacity,
		DefaultThreshold: cfg.Liquidity.DefaultThreshold,
		Thresholds:       cfg.Liquidity.Thresholds,
	}, alertCh, clock, logger)

	deps.Coordinator = engine.New(engine.Config{
		HealthCheckInterval: cfg.Engine.HealthCheckInterval(),
		EventBufferSize:     cfg.Engine.EventBufferSize,
		DedupeTTL:           time.Duration(cfg.Detector.DedupeTTLSec) * time.Second,
		ObservationMaxAge:   cfg.Oracle.MaxAge(),
	}, engine.Deps{
		Cache:         cache,
		Detector:      det,
		Monitor:       deps.Monitor,
		Validator:     deps.Validator,
		Mirror:        deps.Mirror,
		Bus:           deps.SignalBus,
		Opportunities: oppCh,
		Alerts:        alertCh,
	}, clock, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramBotToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
