package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VENUEWATCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VENUEWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "VENUEWATCH_MODE")
	setStr(&cfg.LogLevel, "VENUEWATCH_LOG_LEVEL")

	setFloat64(&cfg.Detector.MinProfitPercent, "VENUEWATCH_DETECTOR_MIN_PROFIT_PERCENT")
	setInt64(&cfg.Detector.RescanIntervalMs, "VENUEWATCH_DETECTOR_RESCAN_INTERVAL_MS")
	setInt(&cfg.Detector.DedupeTTLSec, "VENUEWATCH_DETECTOR_DEDUPE_TTL_SEC")

	setInt(&cfg.Liquidity.HistoryCapacity, "VENUEWATCH_LIQUIDITY_HISTORY_CAPACITY")
	setFloat64(&cfg.Liquidity.DefaultThreshold, "VENUEWATCH_LIQUIDITY_DEFAULT_THRESHOLD")

	setFloat64(&cfg.Oracle.MaxDeviationPercent, "VENUEWATCH_ORACLE_MAX_DEVIATION_PERCENT")
	setInt(&cfg.Oracle.MaxAgeSec, "VENUEWATCH_ORACLE_MAX_AGE_SEC")

	setStr(&cfg.Feed.WSURL, "VENUEWATCH_FEED_WS_URL")
	setStr(&cfg.Feed.BusChannel, "VENUEWATCH_FEED_BUS_CHANNEL")

	setStr(&cfg.Redis.Addr, "VENUEWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUEWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUEWATCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "VENUEWATCH_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "VENUEWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VENUEWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VENUEWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VENUEWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VENUEWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VENUEWATCH_POSTGRES_PASSWORD")
	setBool(&cfg.Postgres.RunMigrations, "VENUEWATCH_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "VENUEWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VENUEWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "VENUEWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VENUEWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VENUEWATCH_S3_SECRET_KEY")

	setBool(&cfg.Server.Enabled, "VENUEWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VENUEWATCH_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "VENUEWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerSec, "VENUEWATCH_SERVER_RATE_LIMIT_PER_SEC")

	setStr(&cfg.Notify.TelegramBotToken, "VENUEWATCH_NOTIFY_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VENUEWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "VENUEWATCH_NOTIFY_DISCORD_WEBHOOK")
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
