// Package config defines the top-level configuration for the tokenduel
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/tokenduel/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TOKENDUEL_* environment variables.
type Config struct {
	Mode         string               `toml:"mode"`
	LogLevel     string               `toml:"log_level"`
	Server       ServerConfig         `toml:"server"`
	Redis        RedisConfig          `toml:"redis"`
	Postgres     PostgresConfig       `toml:"postgres"`
	S3           S3Config             `toml:"s3"`
	Upstream     UpstreamConfig       `toml:"upstream"`
	Quote        QuoteConfig          `toml:"quote"`
	Orchestrator OrchestratorConfig   `toml:"orchestrator"`
	Duel         DuelConfig           `toml:"duel"`
	Tokens       []domain.TokenConfig `toml:"tokens"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is the per-client request budget per RateLimitWindow. Zero
	// disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger.
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

// S3Config holds S3-compatible object storage parameters for the price
// snapshot archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// UpstreamConfig holds the price provider endpoints.
type UpstreamConfig struct {
	DexScreenerURL   string   `toml:"dexscreener_url"`
	GeckoTerminalURL string   `toml:"geckoterminal_url"`
	SecondaryEnabled bool     `toml:"secondary_enabled"`
	UserAgent        string   `toml:"user_agent"`
	Timeout          duration `toml:"timeout"`
}

// QuoteConfig tunes the quote cache, coalescer and retry policy.
type QuoteConfig struct {
	// SharedCache stores quotes in Redis instead of the in-process LRU.
	SharedCache   bool     `toml:"shared_cache"`
	CacheSize     int      `toml:"cache_size"`
	HitTTL        duration `toml:"hit_ttl"`
	MissTTL       duration `toml:"miss_ttl"`
	FlushWindow   duration `toml:"flush_window"`
	ChunkSize     int      `toml:"chunk_size"`
	MaxAttempts   int      `toml:"max_attempts"`
	RateLimitBase duration `toml:"rate_limit_base"`
	TransientStep duration `toml:"transient_step"`
	SearchSpacing duration `toml:"search_spacing"`
}

// OrchestratorConfig holds live price polling parameters.
type OrchestratorConfig struct {
	PollInterval duration `toml:"poll_interval"`
}

// DuelConfig holds duel room parameters and job schedules.
type DuelConfig struct {
	EntryCost    int64    `toml:"entry_cost"`
	LockTTL      duration `toml:"lock_ttl"`
	SweepLimit   int      `toml:"sweep_limit"`
	SweepCron    string   `toml:"sweep_cron"`
	SnapshotCron string   `toml:"snapshot_cron"`
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "tokenduel",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tokenduel",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tokenduel-snapshots",
			ForcePathStyle: true,
			Prefix:         "snapshots",
		},
		Upstream: UpstreamConfig{
			DexScreenerURL:   "https://api.dexscreener.com",
			GeckoTerminalURL: "https://api.geckoterminal.com/api/v2",
			SecondaryEnabled: true,
			UserAgent:        "tokenduel/1.0",
			Timeout:          duration{10 * time.Second},
		},
		Quote: QuoteConfig{
			CacheSize:     4096,
			HitTTL:        duration{45 * time.Second},
			MissTTL:       duration{60 * time.Second},
			FlushWindow:   duration{25 * time.Millisecond},
			ChunkSize:     30,
			MaxAttempts:   3,
			RateLimitBase: duration{250 * time.Millisecond},
			TransientStep: duration{200 * time.Millisecond},
			SearchSpacing: duration{400 * time.Millisecond},
		},
		Orchestrator: OrchestratorConfig{
			PollInterval: duration{60 * time.Second},
		},
		Duel: DuelConfig{
			EntryCost:    100,
			LockTTL:      duration{30 * time.Second},
			SweepLimit:   100,
			SweepCron:    "30 * * * * *",
			SnapshotCron: "0 59 23 * * *",
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"server": true,
	"worker": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// cronParser matches the six-field schedules the cron runner accepts.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// VirtualTokenID returns the id of the token marked virtual, or "".
func (c *Config) VirtualTokenID() string {
	for _, t := range c.Tokens {
		if t.Virtual {
			return t.ID
		}
	}
	return ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, worker)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Mode != "worker" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Upstream
	if c.Upstream.DexScreenerURL == "" {
		errs = append(errs, "upstream: dexscreener_url must not be empty")
	}
	if c.Upstream.SecondaryEnabled && c.Upstream.GeckoTerminalURL == "" {
		errs = append(errs, "upstream: geckoterminal_url must not be empty when secondary_enabled")
	}
	if c.Upstream.Timeout.Duration <= 0 {
		errs = append(errs, "upstream: timeout must be > 0")
	}

	// Quote
	if c.Quote.ChunkSize < 1 || c.Quote.ChunkSize > 30 {
		errs = append(errs, fmt.Sprintf("quote: chunk_size must be 1-30, got %d", c.Quote.ChunkSize))
	}
	if c.Quote.MaxAttempts < 1 {
		errs = append(errs, "quote: max_attempts must be >= 1")
	}
	if c.Quote.HitTTL.Duration <= 0 || c.Quote.MissTTL.Duration <= 0 {
		errs = append(errs, "quote: hit_ttl and miss_ttl must be > 0")
	}
	if c.Quote.FlushWindow.Duration < 0 {
		errs = append(errs, "quote: flush_window must be >= 0")
	}

	// Duel
	if c.Duel.EntryCost < 0 {
		errs = append(errs, "duel: entry_cost must be >= 0")
	}
	if c.Mode != "server" {
		schedules := []struct{ name, spec string }{
			{"sweep_cron", c.Duel.SweepCron},
			{"snapshot_cron", c.Duel.SnapshotCron},
		}
		for _, s := range schedules {
			if s.spec == "" {
				continue
			}
			if _, err := cronParser.Parse(s.spec); err != nil {
				errs = append(errs, fmt.Sprintf("duel: %s %q: %v", s.name, s.spec, err))
			}
		}
	}

	errs = append(errs, validateTokens(c.Tokens)...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateTokens(tokens []domain.TokenConfig) []string {
	var errs []string
	seen := make(map[string]bool, len(tokens))
	virtual := 0
	for i, t := range tokens {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d]: id must not be empty", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("tokens[%d]: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = true
		if t.PairAddress != "" && t.Network == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d] %s: network is required with pair_address", i, t.ID))
		}
		if t.Virtual {
			virtual++
		}
	}
	if virtual > 1 {
		errs = append(errs, fmt.Sprintf("tokens: at most one virtual token, got %d", virtual))
	}
	return errs
}
