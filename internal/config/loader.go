package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRYPTOBET_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CRYPTOBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CRYPTOBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CRYPTOBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CRYPTOBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CRYPTOBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CRYPTOBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CRYPTOBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CRYPTOBET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CRYPTOBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CRYPTOBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CRYPTOBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CRYPTOBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTOBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTOBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTOBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRYPTOBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTOBET_REDIS_TLS_ENABLED")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "CRYPTOBET_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "CRYPTOBET_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "CRYPTOBET_KAFKA_TOPIC")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CRYPTOBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CRYPTOBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRYPTOBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRYPTOBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CRYPTOBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRYPTOBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRYPTOBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRYPTOBET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CRYPTOBET_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "CRYPTOBET_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "CRYPTOBET_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CRYPTOBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CRYPTOBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CRYPTOBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CRYPTOBET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CRYPTOBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "CRYPTOBET_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRYPTOBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRYPTOBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRYPTOBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRYPTOBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRYPTOBET_MODE")
	setStr(&cfg.LogLevel, "CRYPTOBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
