package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/depthbot/internal/blob/s3"
	"github.com/alanyoungcy/depthbot/internal/cache/redis"
	"github.com/alanyoungcy/depthbot/internal/config"
	"github.com/alanyoungcy/depthbot/internal/domain"
	"github.com/alanyoungcy/depthbot/internal/metrics"
	"github.com/alanyoungcy/depthbot/internal/notify"
	"github.com/alanyoungcy/depthbot/internal/store/postgres"
)

// Dependencies bundles the optional backends. Every interface field is nil
// when its backend is disabled, and the pipeline treats nil as "off".
type Dependencies struct {
	Metrics *metrics.Metrics

	// Redis
	FillBus  domain.FillBus
	FillFeed *redis.FillBus
	TopCache domain.TopOfBookCache

	// PostgreSQL
	FillStore domain.FillStore
	RunStore  domain.RunStore

	// Object storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Notifier is never nil; it is disabled when no sender is configured.
	Notifier *notify.Notifier
}

// fanoutBus publishes each fill to every bus and joins their errors.
type fanoutBus []domain.FillBus

func (f fanoutBus) PublishFill(ctx context.Context, fill domain.Fill) error {
	var errs []error
	for _, b := range f {
		if err := b.PublishFill(ctx, fill); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// liveFillBus combines the Redis bus, fill alerts and any extra buses such as
// the websocket hub. It returns nil when there is nothing to publish to.
func liveFillBus(deps *Dependencies, extra ...domain.FillBus) domain.FillBus {
	var buses fanoutBus
	if deps.FillBus != nil {
		buses = append(buses, deps.FillBus)
	}
	if deps.Notifier.Enabled() {
		buses = append(buses, deps.Notifier)
	}
	buses = append(buses, extra...)
	switch len(buses) {
	case 0:
		return nil
	case 1:
		return buses[0]
	default:
		return buses
	}
}

// Wire constructs every enabled backend from cfg and returns them together
// with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		}, logger)
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
		deps.FillStore = postgres.NewFillStore(pool)
		deps.RunStore = postgres.NewRunStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewFillBus(redisClient, cfg.Redis.FillChannel)
		deps.FillBus = bus
		deps.FillFeed = bus
		deps.TopCache = redis.NewTopOfBookCache(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		objects := s3blob.NewObjects(s3Client)
		deps.BlobWriter = objects
		deps.BlobReader = objects
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.Info("dependencies wired",
		slog.Bool("metrics", deps.Metrics != nil),
		slog.Bool("postgres", deps.FillStore != nil),
		slog.Bool("redis", deps.FillBus != nil),
		slog.Bool("s3", deps.BlobWriter != nil),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, cleanup, nil
}
