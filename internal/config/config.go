// Package config defines the top-level configuration for polyvol and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/pricing"
	"github.com/alanyoungcy/polyvol/internal/series"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYVOL_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Goldsky    GoldskyConfig    `toml:"goldsky"`
	Etherscan  EtherscanConfig  `toml:"etherscan"`
	RPC        RPCConfig        `toml:"rpc"`
	Score      ScoreConfig      `toml:"score"`
	Storage    StorageConfig    `toml:"storage"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Notify     NotifyConfig     `toml:"notify"`
	Timezone   string           `toml:"timezone"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
}

// GoldskyConfig holds the open-interest subgraph endpoint.
type GoldskyConfig struct {
	OpenInterestURL string `toml:"open_interest_url"`
	APIKey          string `toml:"api_key"`
}

// EtherscanConfig holds block-by-timestamp lookup parameters.
type EtherscanConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	ChainID    int64    `toml:"chain_id"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay duration `toml:"retry_delay"`
	// RateLimit is the shared calls-per-second budget, enforced through
	// Redis when it is enabled.
	RateLimit int `toml:"rate_limit"`
}

// RPCConfig optionally names a Polygon JSON-RPC endpoint used to resolve
// blocks by binary search when Etherscan is unavailable.
type RPCConfig struct {
	URL string `toml:"url"`
}

// ScoreConfig holds index parameters.
type ScoreConfig struct {
	TopN             int     `toml:"top_n"`
	BackfillFidelity int     `toml:"backfill_fidelity"` // minutes
	HourlyFidelity   int     `toml:"hourly_fidelity"`   // minutes
	EventThreshold   float64 `toml:"event_threshold"`
	MemberThreshold  float64 `toml:"member_threshold"`
	Decimals         int     `toml:"decimals"`
	ChangeFormula    string  `toml:"change_formula"`
	// HourlyRankAt is when the hourly snapshot is ranked: day_start or now.
	HourlyRankAt string `toml:"hourly_rank_at"`
	// Workers bounds backfill concurrency; 0 means NumCPU-1.
	Workers int `toml:"workers"`
}

// StorageConfig holds the local artifact directory.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// enabled it caches block lookups and catalogs, throttles Etherscan, and
// guards the hourly run with a lock.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	CatalogTTL duration `toml:"catalog_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
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

// NotifyConfig holds notification channel credentials.
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in polyvol.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Goldsky: GoldskyConfig{
			OpenInterestURL: "https://api.goldsky.com/api/public/project_cl6mb8i9h0003e201j6li0diw/subgraphs/oi-subgraph/0.0.6/gn",
		},
		Etherscan: EtherscanConfig{
			BaseURL:    "https://api.etherscan.io/v2/api",
			ChainID:    137,
			MaxRetries: 3,
			RetryDelay: duration{time.Second},
			RateLimit:  5,
		},
		Score: ScoreConfig{
			TopN:             10,
			BackfillFidelity: 60,
			HourlyFidelity:   60,
			EventThreshold:   8,
			MemberThreshold:  10,
			Decimals:         3,
			ChangeFormula:    string(pricing.FormulaLiteral),
			HourlyRankAt:     string(series.RankAtDayStart),
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "polyvol",
			CatalogTTL: duration{6 * time.Hour},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "polyvol",
			UseSSL: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  0,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"highlight", "run_failed"},
		},
		Timezone: calendar.DefaultTimezone,
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if _, err := calendar.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone: %v", err))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Goldsky.OpenInterestURL == "" {
		errs = append(errs, "goldsky: open_interest_url must not be empty")
	}

	if c.Etherscan.BaseURL == "" {
		errs = append(errs, "etherscan: base_url must not be empty")
	}
	if c.Etherscan.ChainID <= 0 {
		errs = append(errs, "etherscan: chain_id must be positive")
	}
	if c.Etherscan.MaxRetries < 1 {
		errs = append(errs, "etherscan: max_retries must be >= 1")
	}
	if c.Etherscan.RetryDelay.Duration < 0 {
		errs = append(errs, "etherscan: retry_delay must not be negative")
	}
	if c.Etherscan.RateLimit < 1 {
		errs = append(errs, "etherscan: rate_limit must be >= 1")
	}

	if c.Score.TopN < 1 {
		errs = append(errs, "score: top_n must be >= 1")
	}
	if c.Score.BackfillFidelity < 1 || c.Score.HourlyFidelity < 1 {
		errs = append(errs, "score: backfill_fidelity and hourly_fidelity must be >= 1 minute")
	}
	if c.Score.EventThreshold < 0 || c.Score.MemberThreshold < 0 {
		errs = append(errs, "score: thresholds must not be negative")
	}
	if _, err := pricing.ParseFormula(c.Score.ChangeFormula); err != nil {
		errs = append(errs, fmt.Sprintf("score: change_formula %q (valid: literal, percent)", c.Score.ChangeFormula))
	}
	if _, err := series.ParseRankAt(c.Score.HourlyRankAt); err != nil {
		errs = append(errs, fmt.Sprintf("score: hourly_rank_at %q (valid: day_start, now)", c.Score.HourlyRankAt))
	}
	if c.Score.Workers < 0 {
		errs = append(errs, "score: workers must be >= 0")
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, "storage: data_dir must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Postgres.Enabled {
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
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
