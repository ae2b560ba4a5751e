// Package config defines the top-level configuration for the venuewatch
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VENUEWATCH_* environment
// variables.
type Config struct {
	Engine    EngineConfig           `toml:"engine"`
	Detector  DetectorConfig         `toml:"detector"`
	Liquidity LiquidityConfig        `toml:"liquidity"`
	Oracle    OracleConfig           `toml:"oracle"`
	Venues    map[string]VenueConfig `toml:"venues"`
	Feed      FeedConfig             `toml:"feed"`
	Redis     RedisConfig            `toml:"redis"`
	Postgres  PostgresConfig         `toml:"postgres"`
	S3        S3Config               `toml:"s3"`
	Archive   ArchiveConfig          `toml:"archive"`
	Server    ServerConfig           `toml:"server"`
	Notify    NotifyConfig           `toml:"notify"`
	Mode      string                 `toml:"mode"`
	LogLevel  string                 `toml:"log_level"`
}

// EngineConfig holds coordinator-level parameters.
type EngineConfig struct {
	HealthCheckIntervalSec int `toml:"health_check_interval_sec"`
	EventBufferSize        int `toml:"event_buffer_size"`
}

// HealthCheckInterval returns the health check period as a duration.
func (c EngineConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSec) * time.Second
}

// DetectorConfig holds opportunity detector parameters.
type DetectorConfig struct {
	MinProfitPercent float64 `toml:"min_profit_percent"`
	RescanIntervalMs int64   `toml:"rescan_interval_ms"`
	// DedupeTTLSec enables the optional de-bounce stage when > 0: repeated
	// emissions with the same dedupe key within the TTL are dropped by the
	// coordinator. 0 preserves free duplicate emission.
	DedupeTTLSec int `toml:"dedupe_ttl_sec"`

	// Gas model inputs.
	BaseGasPerTrade float64 `toml:"base_gas_per_trade"`
	GasUnitPrice    float64 `toml:"gas_unit_price"`
	ProtocolFeeRate float64 `toml:"protocol_fee_rate"`
	ProtectionFee   float64 `toml:"protection_fee"`
}

// RescanInterval returns the periodic rescan period as a duration.
func (c DetectorConfig) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalMs) * time.Millisecond
}

// LiquidityConfig holds liquidity monitor parameters.
type LiquidityConfig struct {
	HistoryCapacity  int                `toml:"history_capacity"`
	DefaultThreshold float64            `toml:"default_threshold"`
	Thresholds       map[string]float64 `toml:"thresholds"`
}

// Threshold returns the instrument-specific low-liquidity threshold, falling
// back to the default for unknown instruments.
func (c LiquidityConfig) Threshold(instrument string) float64 {
	if v, ok := c.Thresholds[instrument]; ok {
		return v
	}
	return c.DefaultThreshold
}

// OracleConfig holds oracle consensus validation parameters.
type OracleConfig struct {
	MaxDeviationPercent float64 `toml:"max_deviation_percent"`
	MaxAgeSec           int     `toml:"max_age_sec"`
	StalenessDecaySec   int     `toml:"staleness_decay_sec"`
}

// MaxAge returns the maximum tolerated consensus age as a duration.
func (c OracleConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSec) * time.Second
}

// StalenessDecay returns the age beyond which validation confidence decays.
func (c OracleConfig) StalenessDecay() time.Duration {
	return time.Duration(c.StalenessDecaySec) * time.Second
}

// VenueConfig holds the static per-venue lookup entries. Unknown venues fall
// back to the documented defaults (fee 0.30%, reliability 0.95).
type VenueConfig struct {
	FeeRate     float64 `toml:"fee_rate"`
	Reliability float64 `toml:"reliability"`
}

// FeedConfig holds the normalized observation/oracle feed parameters.
type FeedConfig struct {
	WSURL       string   `toml:"ws_url"`
	Instruments []string `toml:"instruments"`
	// BusChannel is the Redis pub/sub channel replayed by the bus feeder.
	BusChannel string `toml:"bus_channel"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds history archival parameters.
type ArchiveConfig struct {
	Enabled     bool `toml:"enabled"`
	IntervalMin int  `toml:"interval_min"`
	RetainDays  int  `toml:"retain_days"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerSec caps requests per second per client IP. 0 disables
	// rate limiting.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// NotifyConfig holds notification channel parameters.
type NotifyConfig struct {
	Events           []string `toml:"events"`
	TelegramBotToken string   `toml:"telegram_bot_token"`
	TelegramChatID   string   `toml:"telegram_chat_id"`
	DiscordWebhook   string   `toml:"discord_webhook"`
}

// Defaults returns a Config pre-populated with sane defaults. Load merges the
// TOML file on top of these.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			HealthCheckIntervalSec: 30,
			EventBufferSize:        256,
		},
		Detector: DetectorConfig{
			MinProfitPercent: 0.5,
			RescanIntervalMs: 10_000,
			DedupeTTLSec:     0,
			BaseGasPerTrade:  5000,
			GasUnitPrice:     0.000001,
			ProtocolFeeRate:  0.0001,
			ProtectionFee:    0.01,
		},
		Liquidity: LiquidityConfig{
			HistoryCapacity:  2000,
			DefaultThreshold: 1_000_000,
		},
		Oracle: OracleConfig{
			MaxDeviationPercent: 5,
			MaxAgeSec:           60,
			StalenessDecaySec:   10,
		},
		Feed: FeedConfig{
			BusChannel: "observations",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
		},
		Archive: ArchiveConfig{
			IntervalMin: 60,
			RetainDays:  30,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It collects all
// problems and returns them as one error so operators can fix everything in
// a single pass.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Mode) {
	case "monitor", "serve", "full":
	default:
		errs = append(errs, fmt.Sprintf("mode: unsupported mode %q", c.Mode))
	}

	if c.Engine.HealthCheckIntervalSec <= 0 {
		errs = append(errs, "engine: health_check_interval_sec must be > 0")
	}
	if c.Engine.EventBufferSize < 1 {
		errs = append(errs, "engine: event_buffer_size must be >= 1")
	}

	if c.Detector.MinProfitPercent < 0 {
		errs = append(errs, "detector: min_profit_percent must be >= 0")
	}
	if c.Detector.RescanIntervalMs <= 0 {
		errs = append(errs, "detector: rescan_interval_ms must be > 0")
	}
	if c.Detector.BaseGasPerTrade < 0 {
		errs = append(errs, "detector: base_gas_per_trade must be >= 0")
	}
	if c.Detector.ProtocolFeeRate < 0 {
		errs = append(errs, "detector: protocol_fee_rate must be >= 0")
	}

	if c.Liquidity.HistoryCapacity < 10 {
		errs = append(errs, "liquidity: history_capacity must be >= 10")
	}
	if c.Liquidity.DefaultThreshold < 0 {
		errs = append(errs, "liquidity: default_threshold must be >= 0")
	}
	for inst, v := range c.Liquidity.Thresholds {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("liquidity: threshold for %s must be >= 0", inst))
		}
	}

	if c.Oracle.MaxDeviationPercent <= 0 {
		errs = append(errs, "oracle: max_deviation_percent must be > 0")
	}
	if c.Oracle.MaxAgeSec <= 0 {
		errs = append(errs, "oracle: max_age_sec must be > 0")
	}

	for name, venue := range c.Venues {
		if venue.FeeRate < 0 || venue.FeeRate > 0.1 {
			errs = append(errs, fmt.Sprintf("venues.%s: fee_rate must be in [0, 0.1], got %g", name, venue.FeeRate))
		}
		if venue.Reliability <= 0 || venue.Reliability > 1 {
			errs = append(errs, fmt.Sprintf("venues.%s: reliability must be in (0, 1], got %g", name, venue.Reliability))
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	mode := strings.ToLower(c.Mode)
	if mode == "full" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.IntervalMin < 1 {
			errs = append(errs, "archive: interval_min must be >= 1")
		}
		if c.Archive.RetainDays < 1 {
			errs = append(errs, "archive: retain_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerSec < 0 {
			errs = append(errs, "server: rate_limit_per_sec must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
