package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tokenduel/internal/blob/s3"
	"github.com/alanyoungcy/tokenduel/internal/cache/redis"
	"github.com/alanyoungcy/tokenduel/internal/config"
	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/platform/dexscreener"
	"github.com/alanyoungcy/tokenduel/internal/platform/geckoterminal"
	"github.com/alanyoungcy/tokenduel/internal/quote"
	"github.com/alanyoungcy/tokenduel/internal/store/postgres"
)

// Dependencies bundles the concrete infrastructure every mode draws from. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Redis    *redis.Client
	Postgres *postgres.Client
	S3       *s3blob.Client // nil unless s3.enabled

	// Redis-backed
	LivePrices  domain.LivePriceCache
	Rooms       domain.RoomStore
	Locks       domain.LockManager
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter

	// Postgres-backed
	Ledger    domain.Ledger
	Snapshots *postgres.SnapshotStore

	// Blob is nil unless s3.enabled.
	Blob domain.BlobWriter

	Quotes *quote.Service
}

// Wire constructs the dependencies from cfg and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Redis ---
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
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.LivePrices = redis.NewLivePriceCache(redisClient)
	deps.Rooms = redis.NewRoomStore(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- PostgreSQL ---
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
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}
	deps.Postgres = pgClient
	deps.Ledger = postgres.NewLedgerStore(pgClient.Pool())
	deps.Snapshots = postgres.NewSnapshotStore(pgClient.Pool())

	// --- S3 snapshot archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		deps.Blob = s3blob.NewWriter(s3Client, 0)
	}

	// --- Quote service ---
	var qcache domain.QuoteCache
	if cfg.Quote.SharedCache {
		qcache = redis.NewQuoteCache(redisClient, cfg.Quote.HitTTL.Duration, cfg.Quote.MissTTL.Duration)
	} else {
		mem, err := quote.NewMemoryCache(cfg.Quote.CacheSize, cfg.Quote.HitTTL.Duration, cfg.Quote.MissTTL.Duration)
		if err != nil {
			return fail(fmt.Errorf("wire: quote cache: %w", err))
		}
		qcache = mem
	}

	primary := dexscreener.NewClient(cfg.Upstream.DexScreenerURL, cfg.Upstream.UserAgent, cfg.Upstream.Timeout.Duration)
	var secondary quote.Secondary
	if cfg.Upstream.SecondaryEnabled {
		secondary = geckoterminal.NewClient(cfg.Upstream.GeckoTerminalURL, cfg.Upstream.UserAgent, cfg.Upstream.Timeout.Duration)
	}
	deps.Quotes = quote.NewService(primary, secondary, qcache, quote.Config{
		Retry: quote.RetryPolicy{
			MaxAttempts:   cfg.Quote.MaxAttempts,
			RateLimitBase: cfg.Quote.RateLimitBase.Duration,
			TransientStep: cfg.Quote.TransientStep.Duration,
		},
		FlushWindow:   cfg.Quote.FlushWindow.Duration,
		ChunkSize:     cfg.Quote.ChunkSize,
		SearchSpacing: cfg.Quote.SearchSpacing.Duration,
	}, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("shared_quote_cache", cfg.Quote.SharedCache),
		slog.Bool("secondary_provider", secondary != nil),
		slog.Bool("snapshot_archive", deps.Blob != nil),
	)
	return deps, cleanup, nil
}
