package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/polyvol/internal/blob/s3"
	"github.com/alanyoungcy/polyvol/internal/blocks"
	"github.com/alanyoungcy/polyvol/internal/cache/redis"
	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/catalog"
	"github.com/alanyoungcy/polyvol/internal/config"
	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/notify"
	"github.com/alanyoungcy/polyvol/internal/platform/etherscan"
	"github.com/alanyoungcy/polyvol/internal/platform/goldsky"
	"github.com/alanyoungcy/polyvol/internal/platform/polymarket"
	"github.com/alanyoungcy/polyvol/internal/pricing"
	"github.com/alanyoungcy/polyvol/internal/ranking"
	"github.com/alanyoungcy/polyvol/internal/store/file"
	"github.com/alanyoungcy/polyvol/internal/store/postgres"
)

// etherscanLimitKey is the shared rate-limit bucket for block lookups.
const etherscanLimitKey = "etherscan"

// Dependencies bundles everything the commands need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Location *time.Location
	Files    *file.Store

	// Loader always hits Gamma; Catalog may serve from Redis.
	Loader  *catalog.Loader
	Catalog catalog.Source

	Ranker *ranking.Ranker
	Prices *pricing.Calculator

	// Optional.
	Lock      domain.LockManager
	Publisher *s3blob.Publisher
	Sinks     []domain.ScoreSink
	Notifier  *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Redis, S3, Postgres and the RPC
// fallback are only touched when configured.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	loc, err := calendar.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	formula, err := pricing.ParseFormula(cfg.Score.ChangeFormula)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	deps := &Dependencies{
		Location: loc,
		Files:    file.New(cfg.Storage.DataDir),
	}

	// --- Redis ---
	var (
		limiter      domain.RateLimiter
		blockCache   domain.BlockCache
		catalogCache domain.CatalogCache
	)
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

		limiter = redis.NewRateLimiter(redisClient)
		blockCache = redis.NewBlockCache(redisClient)
		catalogCache = redis.NewCatalogCache(redisClient)
		deps.Lock = redis.NewLockManager(redisClient)
	}

	// --- Catalog ---
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Loader = catalog.NewLoader(gamma, loc, logger)
	deps.Catalog = deps.Loader
	if catalogCache != nil {
		deps.Catalog = catalog.NewCachedSource(deps.Loader, catalogCache, cfg.Redis.CatalogTTL.Duration, logger)
	}

	// --- Block resolution: etherscan, throttled, with RPC fallback, cached ---
	ether := etherscan.NewClient(cfg.Etherscan.BaseURL, cfg.Etherscan.APIKey,
		etherscan.WithChainID(cfg.Etherscan.ChainID),
		etherscan.WithRetry(cfg.Etherscan.MaxRetries, cfg.Etherscan.RetryDelay.Duration),
	)
	var resolver blocks.Resolver = ether
	if limiter != nil {
		resolver = blocks.NewThrottled(resolver, limiter, etherscanLimitKey, cfg.Etherscan.RateLimit, time.Second, logger)
	}
	if cfg.RPC.URL != "" {
		rpc, closeRPC, err := blocks.DialRPC(ctx, cfg.RPC.URL)
		if err != nil {
			logger.WarnContext(ctx, "rpc fallback unavailable", slog.String("error", err.Error()))
		} else {
			closers = append(closers, closeRPC)
			resolver = blocks.Fallback{resolver, rpc}
		}
	}
	if blockCache != nil {
		resolver = blocks.NewCached(resolver, blockCache, ether.ChainID(), logger)
	}

	oi := goldsky.NewClient(cfg.Goldsky.OpenInterestURL, cfg.Goldsky.APIKey)
	deps.Ranker = ranking.NewRanker(oi, resolver, logger)

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost)
	deps.Prices = pricing.NewCalculator(clob, formula, logger)

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
		deps.Sinks = append(deps.Sinks, postgres.NewScoreStore(pgClient.Pool()))
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
		deps.Publisher = s3blob.NewPublisher(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
		deps.Sinks = append(deps.Sinks, deps.Publisher)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.Notifier.Enabled() {
		deps.Sinks = append(deps.Sinks, notify.NewHighlightSink(deps.Notifier))
	}

	return deps, cleanup, nil
}
