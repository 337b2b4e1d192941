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
// built-in defaults, applies DEXBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known DEXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "DEXBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "DEXBOT_CHAIN_ID")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DEXBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DEXBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DEXBOT_WALLET_KEY_PASSWORD")

	// ── Tokens ──
	setStr(&cfg.Tokens.Base, "DEXBOT_TOKENS_BASE")
	setStr(&cfg.Tokens.Quote, "DEXBOT_TOKENS_QUOTE")
	setStr(&cfg.Tokens.WrappedNative, "DEXBOT_TOKENS_WRAPPED_NATIVE")

	// ── Trading ──
	setDuration(&cfg.Trading.SignalInterval, "DEXBOT_TRADING_SIGNAL_INTERVAL")
	setFloat64(&cfg.Trading.SlippagePct, "DEXBOT_TRADING_SLIPPAGE_PCT")
	setFloat64(&cfg.Trading.MinSpreadPct, "DEXBOT_TRADING_MIN_SPREAD_PCT")
	setFloat64(&cfg.Trading.TrailingStopPct, "DEXBOT_TRADING_TRAILING_STOP_PCT")
	setFloat64(&cfg.Trading.HardStopPct, "DEXBOT_TRADING_HARD_STOP_PCT")
	setBool(&cfg.Trading.MACDFilter, "DEXBOT_TRADING_MACD_FILTER")

	// ── Gas ──
	setFloat64(&cfg.Gas.MaxGasPriceGwei, "DEXBOT_GAS_MAX_GAS_PRICE_GWEI")
	setFloat64(&cfg.Gas.MaxGasFeeNative, "DEXBOT_GAS_MAX_GAS_FEE_NATIVE")
	setDuration(&cfg.Gas.TxTimeout, "DEXBOT_GAS_TX_TIMEOUT")
	setFloat64(&cfg.Gas.BumpFactor, "DEXBOT_GAS_BUMP_FACTOR")
	setInt(&cfg.Gas.MaxBumps, "DEXBOT_GAS_MAX_BUMPS")
	setDuration(&cfg.Gas.BumpInterval, "DEXBOT_GAS_BUMP_INTERVAL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTradePct, "DEXBOT_RISK_MAX_TRADE_PCT")
	setFloat64(&cfg.Risk.MinTradePct, "DEXBOT_RISK_MIN_TRADE_PCT")
	setFloat64(&cfg.Risk.MaxDailyLossPct, "DEXBOT_RISK_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Risk.CoolOffLosses, "DEXBOT_RISK_COOL_OFF_LOSSES")

	// ── Market data ──
	setStr(&cfg.MarketData.BinanceSymbol, "DEXBOT_MARKET_DATA_BINANCE_SYMBOL")
	setStr(&cfg.MarketData.TaapiSecret, "DEXBOT_MARKET_DATA_TAAPI_SECRET")
	setStr(&cfg.MarketData.TaapiSymbol, "DEXBOT_MARKET_DATA_TAAPI_SYMBOL")
	setStr(&cfg.MarketData.TaapiInterval, "DEXBOT_MARKET_DATA_TAAPI_INTERVAL")
	setStr(&cfg.MarketData.DexscreenerPair, "DEXBOT_MARKET_DATA_DEXSCREENER_PAIR")
	setDuration(&cfg.MarketData.CacheTTL, "DEXBOT_MARKET_DATA_CACHE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DEXBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveRetentionDays, "DEXBOT_S3_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DEXBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setBool(&cfg.AutoStart, "DEXBOT_AUTO_START")
	setStr(&cfg.LogLevel, "DEXBOT_LOG_LEVEL")
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
