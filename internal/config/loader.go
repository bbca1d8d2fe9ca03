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
// built-in defaults, applies TOKENDUEL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TOKENDUEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "TOKENDUEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TOKENDUEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TOKENDUEL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TOKENDUEL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "TOKENDUEL_SERVER_RATE_LIMIT_WINDOW")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TOKENDUEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TOKENDUEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TOKENDUEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TOKENDUEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TOKENDUEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TOKENDUEL_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "TOKENDUEL_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TOKENDUEL_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "TOKENDUEL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TOKENDUEL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TOKENDUEL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TOKENDUEL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TOKENDUEL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TOKENDUEL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TOKENDUEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TOKENDUEL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TOKENDUEL_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TOKENDUEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TOKENDUEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TOKENDUEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "TOKENDUEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TOKENDUEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TOKENDUEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TOKENDUEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TOKENDUEL_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "TOKENDUEL_S3_PREFIX")

	// ── Upstream ──
	setStr(&cfg.Upstream.DexScreenerURL, "TOKENDUEL_UPSTREAM_DEXSCREENER_URL")
	setStr(&cfg.Upstream.GeckoTerminalURL, "TOKENDUEL_UPSTREAM_GECKOTERMINAL_URL")
	setBool(&cfg.Upstream.SecondaryEnabled, "TOKENDUEL_UPSTREAM_SECONDARY_ENABLED")
	setStr(&cfg.Upstream.UserAgent, "TOKENDUEL_UPSTREAM_USER_AGENT")
	setDuration(&cfg.Upstream.Timeout, "TOKENDUEL_UPSTREAM_TIMEOUT")

	// ── Quote ──
	setBool(&cfg.Quote.SharedCache, "TOKENDUEL_QUOTE_SHARED_CACHE")
	setInt(&cfg.Quote.CacheSize, "TOKENDUEL_QUOTE_CACHE_SIZE")
	setDuration(&cfg.Quote.HitTTL, "TOKENDUEL_QUOTE_HIT_TTL")
	setDuration(&cfg.Quote.MissTTL, "TOKENDUEL_QUOTE_MISS_TTL")
	setDuration(&cfg.Quote.FlushWindow, "TOKENDUEL_QUOTE_FLUSH_WINDOW")
	setInt(&cfg.Quote.ChunkSize, "TOKENDUEL_QUOTE_CHUNK_SIZE")
	setInt(&cfg.Quote.MaxAttempts, "TOKENDUEL_QUOTE_MAX_ATTEMPTS")
	setDuration(&cfg.Quote.SearchSpacing, "TOKENDUEL_QUOTE_SEARCH_SPACING")

	// ── Orchestrator ──
	setDuration(&cfg.Orchestrator.PollInterval, "TOKENDUEL_ORCHESTRATOR_POLL_INTERVAL")

	// ── Duel ──
	setInt64(&cfg.Duel.EntryCost, "TOKENDUEL_DUEL_ENTRY_COST")
	setDuration(&cfg.Duel.LockTTL, "TOKENDUEL_DUEL_LOCK_TTL")
	setInt(&cfg.Duel.SweepLimit, "TOKENDUEL_DUEL_SWEEP_LIMIT")
	setStr(&cfg.Duel.SweepCron, "TOKENDUEL_DUEL_SWEEP_CRON")
	setStr(&cfg.Duel.SnapshotCron, "TOKENDUEL_DUEL_SNAPSHOT_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "TOKENDUEL_MODE")
	setStr(&cfg.LogLevel, "TOKENDUEL_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
