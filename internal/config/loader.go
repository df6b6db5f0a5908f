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
// built-in defaults, applies environment overrides, and returns the final
// Config. An empty path or a missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
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

// applyEnvOverrides reads well-known POLYVOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). ETHERSCAN_API_KEY is honoured as well, below the POLYVOL_ form.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYVOL_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYVOL_POLYMARKET_CLOB_HOST")

	// ── Goldsky ──
	setStr(&cfg.Goldsky.OpenInterestURL, "POLYVOL_GOLDSKY_OPEN_INTEREST_URL")
	setStr(&cfg.Goldsky.APIKey, "POLYVOL_GOLDSKY_API_KEY")

	// ── Etherscan ──
	setStr(&cfg.Etherscan.BaseURL, "POLYVOL_ETHERSCAN_BASE_URL")
	setStr(&cfg.Etherscan.APIKey, "ETHERSCAN_API_KEY")
	setStr(&cfg.Etherscan.APIKey, "POLYVOL_ETHERSCAN_API_KEY")
	setInt64(&cfg.Etherscan.ChainID, "POLYVOL_ETHERSCAN_CHAIN_ID")
	setInt(&cfg.Etherscan.MaxRetries, "POLYVOL_ETHERSCAN_MAX_RETRIES")
	setDuration(&cfg.Etherscan.RetryDelay, "POLYVOL_ETHERSCAN_RETRY_DELAY")
	setInt(&cfg.Etherscan.RateLimit, "POLYVOL_ETHERSCAN_RATE_LIMIT")

	// ── RPC ──
	setStr(&cfg.RPC.URL, "POLYVOL_RPC_URL")

	// ── Score ──
	setInt(&cfg.Score.TopN, "POLYVOL_SCORE_TOP_N")
	setInt(&cfg.Score.BackfillFidelity, "POLYVOL_SCORE_BACKFILL_FIDELITY")
	setInt(&cfg.Score.HourlyFidelity, "POLYVOL_SCORE_HOURLY_FIDELITY")
	setFloat64(&cfg.Score.EventThreshold, "POLYVOL_SCORE_EVENT_THRESHOLD")
	setFloat64(&cfg.Score.MemberThreshold, "POLYVOL_SCORE_MEMBER_THRESHOLD")
	setInt(&cfg.Score.Decimals, "POLYVOL_SCORE_DECIMALS")
	setStr(&cfg.Score.ChangeFormula, "POLYVOL_SCORE_CHANGE_FORMULA")
	setStr(&cfg.Score.HourlyRankAt, "POLYVOL_SCORE_HOURLY_RANK_AT")
	setInt(&cfg.Score.Workers, "POLYVOL_SCORE_WORKERS")

	// ── Storage ──
	setStr(&cfg.Storage.DataDir, "POLYVOL_STORAGE_DATA_DIR")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYVOL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYVOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYVOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYVOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYVOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYVOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYVOL_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYVOL_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CatalogTTL, "POLYVOL_REDIS_CATALOG_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYVOL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYVOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYVOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYVOL_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYVOL_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYVOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYVOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYVOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYVOL_S3_FORCE_PATH_STYLE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYVOL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYVOL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYVOL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYVOL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYVOL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYVOL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYVOL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYVOL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYVOL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYVOL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYVOL_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYVOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYVOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYVOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYVOL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Timezone, "POLYVOL_TIMEZONE")
	setStr(&cfg.LogLevel, "POLYVOL_LOG_LEVEL")
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
