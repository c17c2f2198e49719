// Package config defines the depthbot configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEPTHBOT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Log       LogConfig       `toml:"log"`
	Venue     VenueConfig     `toml:"venue"`
	Book      BookConfig      `toml:"book"`
	Signal    SignalConfig    `toml:"signal"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Replay    ReplayConfig    `toml:"replay"`
	Recorder  RecorderConfig  `toml:"recorder"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
}

// LogConfig controls optional file output with rotation. Logs always go to
// stdout; File adds a rotated copy.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// VenueConfig holds exchange endpoints, credentials and order-path limits.
type VenueConfig struct {
	Symbol        string   `toml:"symbol"`
	RestURL       string   `toml:"rest_url"`
	WsURL         string   `toml:"ws_url"`
	SnapshotLimit int      `toml:"snapshot_limit"`
	ReadTimeout   duration `toml:"read_timeout"`

	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	RecvWindow          duration `toml:"recv_window"`

	// DryRun logs order payloads instead of submitting them.
	DryRun          bool     `toml:"dry_run"`
	RequestTimeout  duration `toml:"request_timeout"`
	OrdersPerSecond float64  `toml:"orders_per_second"`
	OrderBurst      int      `toml:"order_burst"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
}

// BookConfig sizes the level arena.
type BookConfig struct {
	LevelsPerSide int `toml:"levels_per_side"`
}

// SignalConfig holds the imbalance signal parameters used by the live engine.
type SignalConfig struct {
	BuyAbove         float64 `toml:"buy_above"`
	SellBelow        float64 `toml:"sell_below"`
	Quantity         float64 `toml:"quantity"`
	Pricing          string  `toml:"pricing"`
	CooldownPolicy   string  `toml:"cooldown_policy"`
	FilledCooldown   int     `toml:"filled_cooldown"`
	RejectedCooldown int     `toml:"rejected_cooldown"`
	FixedCooldown    int     `toml:"fixed_cooldown"`
}

// RiskConfig holds pre-trade limits.
type RiskConfig struct {
	MaxNotional float64 `toml:"max_notional"`
	MaxPosition float64 `toml:"max_position"`
}

// ExecutionConfig holds the simulated wallet parameters and the delivery
// limits for fills and top-of-book updates sent to Redis and Postgres.
type ExecutionConfig struct {
	StartingCash     float64 `toml:"starting_cash"`
	DefaultMarkPrice float64 `toml:"default_mark_price"`

	JournalQueue   int      `toml:"journal_queue"`
	JournalTimeout duration `toml:"journal_timeout"`
}

// ReplayConfig holds replay-harness parameters.
type ReplayConfig struct {
	// Path is a local file or an s3://key in the configured bucket.
	Path string `toml:"path"`
	// ApplyRisk runs the risk gate in replay as well.
	ApplyRisk bool `toml:"apply_risk"`
	// CooldownPolicy overrides signal.cooldown_policy in replay.
	CooldownPolicy string `toml:"cooldown_policy"`
	ProgressEvery  int64  `toml:"progress_every"`
}

// RecorderConfig controls the live market-data log.
type RecorderConfig struct {
	Enabled         bool     `toml:"enabled"`
	Path            string   `toml:"path"`
	Archive         bool     `toml:"archive"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchivePrefix   string   `toml:"archive_prefix"`
}

// MetricsConfig controls the collectors and the operations HTTP API.
type MetricsConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	ProgressEvery int64  `toml:"progress_every"`
	// APIKey guards /api/status, /metrics and /ws. Empty leaves them open.
	APIKey string `toml:"api_key"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled     bool   `toml:"enabled"`
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	PoolSize    int    `toml:"pool_size"`
	MaxRetries  int    `toml:"max_retries"`
	TLSEnabled  bool   `toml:"tls_enabled"`
	FillChannel string `toml:"fill_channel"`
	KeyPrefix   string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds operator alert channels. Alerts are off when no channel
// is configured.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values the bot was tuned with
// on Binance.US BTCUSD.
func Defaults() Config {
	return Config{
		Mode:     "replay",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Venue: VenueConfig{
			Symbol:          "BTCUSD",
			RestURL:         "https://api.binance.us",
			WsURL:           "wss://stream.binance.us:9443",
			SnapshotLimit:   1000,
			ReadTimeout:     duration{60 * time.Second},
			RecvWindow:      duration{5 * time.Second},
			DryRun:          true,
			RequestTimeout:  duration{10 * time.Second},
			OrdersPerSecond: 5,
			OrderBurst:      1,
			BreakerFailures: 5,
			BreakerCooldown: duration{30 * time.Second},
		},
		Book: BookConfig{
			LevelsPerSide: 5000,
		},
		Signal: SignalConfig{
			BuyAbove:         0.8,
			SellBelow:        0.2,
			Quantity:         0.002,
			Pricing:          "aggressive",
			CooldownPolicy:   "split",
			FilledCooldown:   2000,
			RejectedCooldown: 5000,
			FixedCooldown:    100,
		},
		Risk: RiskConfig{
			MaxNotional: 2000,
			MaxPosition: 0.01,
		},
		Execution: ExecutionConfig{
			StartingCash:     10000,
			DefaultMarkPrice: 90000,
			JournalQueue:     1024,
			JournalTimeout:   duration{2 * time.Second},
		},
		Replay: ReplayConfig{
			Path:           "market_data.log",
			ApplyRisk:      false,
			CooldownPolicy: "fixed",
		},
		Recorder: RecorderConfig{
			Enabled:         true,
			Path:            "market_data.log",
			ArchiveInterval: duration{time.Hour},
			ArchivePrefix:   "market-data",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Addr:          ":9100",
			ProgressEvery: 2000,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			MaxRetries:  3,
			FillChannel: "depthbot:fills",
			KeyPrefix:   "depthbot",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "depthbot-data",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"run_started", "run_finished", "run_failed"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":   true,
	"replay": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPricing = map[string]bool{"passive": true, "aggressive": true}

var validCooldown = map[string]bool{"split": true, "fixed": true}

var validEvents = map[string]bool{
	"run_started":  true,
	"run_finished": true,
	"run_failed":   true,
	"fill":         true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue
	if c.Venue.Symbol == "" {
		errs = append(errs, "venue: symbol must not be empty")
	}
	if c.IsLive() {
		if c.Venue.RestURL == "" || c.Venue.WsURL == "" {
			errs = append(errs, "venue: rest_url and ws_url must be set for live mode")
		}
		if !c.Venue.DryRun {
			if c.Venue.APIKey == "" {
				errs = append(errs, "venue: api_key is required unless dry_run is set")
			}
			if c.Venue.APISecret == "" && c.Venue.EncryptedSecretPath == "" {
				errs = append(errs, "venue: either api_secret or encrypted_secret_path must be set unless dry_run is set")
			}
		}
		if c.Venue.EncryptedSecretPath != "" && c.Venue.SecretPassword == "" {
			errs = append(errs, "venue: secret_password is required when encrypted_secret_path is set")
		}
	}
	if c.Venue.SnapshotLimit <= 0 {
		errs = append(errs, "venue: snapshot_limit must be > 0")
	}
	if c.Venue.OrdersPerSecond < 0 {
		errs = append(errs, "venue: orders_per_second must be >= 0")
	}

	// Book
	if c.Book.LevelsPerSide < 1 {
		errs = append(errs, "book: levels_per_side must be >= 1")
	}

	// Signal
	s := c.Signal
	if !(s.SellBelow >= 0 && s.SellBelow < s.BuyAbove && s.BuyAbove <= 1) {
		errs = append(errs, fmt.Sprintf("signal: thresholds must satisfy 0 <= sell_below < buy_above <= 1, got %v / %v", s.SellBelow, s.BuyAbove))
	}
	if s.Quantity <= 0 {
		errs = append(errs, "signal: quantity must be > 0")
	}
	if !validPricing[s.Pricing] {
		errs = append(errs, fmt.Sprintf("signal: unknown pricing %q (valid: passive, aggressive)", s.Pricing))
	}
	if !validCooldown[s.CooldownPolicy] {
		errs = append(errs, fmt.Sprintf("signal: unknown cooldown_policy %q (valid: split, fixed)", s.CooldownPolicy))
	}
	if s.FilledCooldown < 0 || s.RejectedCooldown < 0 || s.FixedCooldown < 0 {
		errs = append(errs, "signal: cooldowns must be >= 0")
	}

	// Risk
	if c.Risk.MaxNotional <= 0 {
		errs = append(errs, "risk: max_notional must be > 0")
	}
	if c.Risk.MaxPosition <= 0 {
		errs = append(errs, "risk: max_position must be > 0")
	}

	// Execution
	if c.Execution.StartingCash < 0 {
		errs = append(errs, "execution: starting_cash must be >= 0")
	}
	if c.Execution.DefaultMarkPrice <= 0 {
		errs = append(errs, "execution: default_mark_price must be > 0")
	}
	if c.Execution.JournalQueue < 0 {
		errs = append(errs, "execution: journal_queue must be >= 0")
	}
	if c.Execution.JournalTimeout.Duration < 0 {
		errs = append(errs, "execution: journal_timeout must be >= 0")
	}

	// Replay
	if !c.IsLive() {
		if c.Replay.Path == "" {
			errs = append(errs, "replay: path must not be empty")
		}
		if strings.HasPrefix(c.Replay.Path, "s3://") && !c.S3.Enabled {
			errs = append(errs, "replay: s3:// path requires s3.enabled")
		}
	}
	if c.Replay.CooldownPolicy != "" && !validCooldown[c.Replay.CooldownPolicy] {
		errs = append(errs, fmt.Sprintf("replay: unknown cooldown_policy %q (valid: split, fixed)", c.Replay.CooldownPolicy))
	}

	// Recorder
	if c.Recorder.Enabled && c.Recorder.Path == "" {
		errs = append(errs, "recorder: path must not be empty when enabled")
	}
	if c.Recorder.Archive {
		if !c.S3.Enabled {
			errs = append(errs, "recorder: archive requires s3.enabled")
		}
		if c.Recorder.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "recorder: archive_interval must be > 0")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[strings.TrimSpace(e)] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: run_started, run_finished, run_failed, fill)", e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsLive reports whether the configured mode is the live engine.
func (c *Config) IsLive() bool {
	return strings.EqualFold(c.Mode, "live")
}
