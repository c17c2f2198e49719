package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEPTHBOT_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEPTHBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Log ──
	setStr(&cfg.Log.File, "DEPTHBOT_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "DEPTHBOT_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "DEPTHBOT_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "DEPTHBOT_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "DEPTHBOT_LOG_COMPRESS")

	// ── Venue ──
	setStr(&cfg.Venue.Symbol, "DEPTHBOT_VENUE_SYMBOL")
	setStr(&cfg.Venue.RestURL, "DEPTHBOT_VENUE_REST_URL")
	setStr(&cfg.Venue.WsURL, "DEPTHBOT_VENUE_WS_URL")
	setInt(&cfg.Venue.SnapshotLimit, "DEPTHBOT_VENUE_SNAPSHOT_LIMIT")
	setDuration(&cfg.Venue.ReadTimeout, "DEPTHBOT_VENUE_READ_TIMEOUT")
	setStr(&cfg.Venue.APIKey, "DEPTHBOT_VENUE_API_KEY")
	setStr(&cfg.Venue.APISecret, "DEPTHBOT_VENUE_API_SECRET")
	setStr(&cfg.Venue.EncryptedSecretPath, "DEPTHBOT_VENUE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Venue.SecretPassword, "DEPTHBOT_VENUE_SECRET_PASSWORD")
	setDuration(&cfg.Venue.RecvWindow, "DEPTHBOT_VENUE_RECV_WINDOW")
	setBool(&cfg.Venue.DryRun, "DEPTHBOT_VENUE_DRY_RUN")
	setDuration(&cfg.Venue.RequestTimeout, "DEPTHBOT_VENUE_REQUEST_TIMEOUT")
	setFloat64(&cfg.Venue.OrdersPerSecond, "DEPTHBOT_VENUE_ORDERS_PER_SECOND")
	setInt(&cfg.Venue.OrderBurst, "DEPTHBOT_VENUE_ORDER_BURST")
	setInt(&cfg.Venue.BreakerFailures, "DEPTHBOT_VENUE_BREAKER_FAILURES")
	setDuration(&cfg.Venue.BreakerCooldown, "DEPTHBOT_VENUE_BREAKER_COOLDOWN")

	// ── Book ──
	setInt(&cfg.Book.LevelsPerSide, "DEPTHBOT_BOOK_LEVELS_PER_SIDE")

	// ── Signal ──
	setFloat64(&cfg.Signal.BuyAbove, "DEPTHBOT_SIGNAL_BUY_ABOVE")
	setFloat64(&cfg.Signal.SellBelow, "DEPTHBOT_SIGNAL_SELL_BELOW")
	setFloat64(&cfg.Signal.Quantity, "DEPTHBOT_SIGNAL_QUANTITY")
	setStr(&cfg.Signal.Pricing, "DEPTHBOT_SIGNAL_PRICING")
	setStr(&cfg.Signal.CooldownPolicy, "DEPTHBOT_SIGNAL_COOLDOWN_POLICY")
	setInt(&cfg.Signal.FilledCooldown, "DEPTHBOT_SIGNAL_FILLED_COOLDOWN")
	setInt(&cfg.Signal.RejectedCooldown, "DEPTHBOT_SIGNAL_REJECTED_COOLDOWN")
	setInt(&cfg.Signal.FixedCooldown, "DEPTHBOT_SIGNAL_FIXED_COOLDOWN")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxNotional, "DEPTHBOT_RISK_MAX_NOTIONAL")
	setFloat64(&cfg.Risk.MaxPosition, "DEPTHBOT_RISK_MAX_POSITION")

	// ── Execution ──
	setFloat64(&cfg.Execution.StartingCash, "DEPTHBOT_EXECUTION_STARTING_CASH")
	setFloat64(&cfg.Execution.DefaultMarkPrice, "DEPTHBOT_EXECUTION_DEFAULT_MARK_PRICE")
	setInt(&cfg.Execution.JournalQueue, "DEPTHBOT_EXECUTION_JOURNAL_QUEUE")
	setDuration(&cfg.Execution.JournalTimeout, "DEPTHBOT_EXECUTION_JOURNAL_TIMEOUT")

	// ── Replay ──
	setStr(&cfg.Replay.Path, "DEPTHBOT_REPLAY_PATH")
	setBool(&cfg.Replay.ApplyRisk, "DEPTHBOT_REPLAY_APPLY_RISK")
	setStr(&cfg.Replay.CooldownPolicy, "DEPTHBOT_REPLAY_COOLDOWN_POLICY")
	setInt64(&cfg.Replay.ProgressEvery, "DEPTHBOT_REPLAY_PROGRESS_EVERY")

	// ── Recorder ──
	setBool(&cfg.Recorder.Enabled, "DEPTHBOT_RECORDER_ENABLED")
	setStr(&cfg.Recorder.Path, "DEPTHBOT_RECORDER_PATH")
	setBool(&cfg.Recorder.Archive, "DEPTHBOT_RECORDER_ARCHIVE")
	setDuration(&cfg.Recorder.ArchiveInterval, "DEPTHBOT_RECORDER_ARCHIVE_INTERVAL")
	setStr(&cfg.Recorder.ArchivePrefix, "DEPTHBOT_RECORDER_ARCHIVE_PREFIX")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "DEPTHBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "DEPTHBOT_METRICS_ADDR")
	setInt64(&cfg.Metrics.ProgressEvery, "DEPTHBOT_METRICS_PROGRESS_EVERY")
	setStr(&cfg.Metrics.APIKey, "DEPTHBOT_METRICS_API_KEY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEPTHBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEPTHBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEPTHBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEPTHBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEPTHBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEPTHBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEPTHBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.FillChannel, "DEPTHBOT_REDIS_FILL_CHANNEL")
	setStr(&cfg.Redis.KeyPrefix, "DEPTHBOT_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DEPTHBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DEPTHBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEPTHBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEPTHBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEPTHBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEPTHBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEPTHBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEPTHBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEPTHBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEPTHBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEPTHBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEPTHBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEPTHBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEPTHBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEPTHBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEPTHBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEPTHBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEPTHBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEPTHBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEPTHBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEPTHBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEPTHBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEPTHBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEPTHBOT_MODE")
	setStr(&cfg.LogLevel, "DEPTHBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

// setStringSlice splits a comma-separated value, dropping empty entries.
func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
