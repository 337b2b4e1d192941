// Package config defines the top-level configuration for the DEX bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXBOT_* environment variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Wallet     WalletConfig     `toml:"wallet"`
	Tokens     TokensConfig     `toml:"tokens"`
	Venues     []VenueConfig    `toml:"venues"`
	Trading    TradingConfig    `toml:"trading"`
	Gas        GasConfig        `toml:"gas"`
	Risk       RiskConfig       `toml:"risk"`
	MarketData MarketDataConfig `toml:"market_data"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	AutoStart  bool             `toml:"auto_start"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds EVM node connection parameters.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
}

// WalletConfig holds trading wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// TokensConfig identifies the traded pair. Base is the asset the bot
// accumulates, Quote the asset it sizes positions in, WrappedNative the
// intermediate hop for multi-leg routes.
type TokensConfig struct {
	Base          string `toml:"base"`
	Quote         string `toml:"quote"`
	WrappedNative string `toml:"wrapped_native"`
	BaseDecimals  int32  `toml:"base_decimals"`
	QuoteDecimals int32  `toml:"quote_decimals"`
}

// VenueConfig is one DEX router the executor may swap through. Order in the
// config file is preference order for fallback.
type VenueConfig struct {
	Name   string `toml:"name"`
	Router string `toml:"router"`
}

// TradingConfig holds signal and exit parameters.
type TradingConfig struct {
	SignalInterval  duration `toml:"signal_interval"`
	SlippagePct     float64  `toml:"slippage_pct"`
	MinSpreadPct    float64  `toml:"min_spread_pct"`
	RSIBuyBelow     float64  `toml:"rsi_buy_below"`
	RSISellAbove    float64  `toml:"rsi_sell_above"`
	MACDFilter      bool     `toml:"macd_filter"`
	TrailingStopPct float64  `toml:"trailing_stop_pct"`
	HardStopPct     float64  `toml:"hard_stop_pct"`
	TP1Pct          float64  `toml:"tp1_pct"`
	TP2Pct          float64  `toml:"tp2_pct"`
	TP3Pct          float64  `toml:"tp3_pct"`
	TPInterval      duration `toml:"tp_interval"`
	SwapDeadline    duration `toml:"swap_deadline"`
}

// GasConfig holds submission ceilings and replace-by-fee parameters.
type GasConfig struct {
	MaxGasPriceGwei float64  `toml:"max_gas_price_gwei"`
	MaxGasFeeNative float64  `toml:"max_gas_fee_native"`
	TxTimeout       duration `toml:"tx_timeout"`
	BumpFactor      float64  `toml:"bump_factor"`
	MaxBumps        int      `toml:"max_bumps"`
	BumpInterval    duration `toml:"bump_interval"`
	SwapGasFallback uint64   `toml:"swap_gas_fallback"`
	ApproveGasLimit uint64   `toml:"approve_gas_limit"`
}

// RiskConfig holds position sizing and circuit-breaker parameters.
type RiskConfig struct {
	MaxTradePct     float64 `toml:"max_trade_pct"`
	MinTradePct     float64 `toml:"min_trade_pct"`
	VolatilityScale float64 `toml:"volatility_scale"`
	Lookback        int     `toml:"lookback"`
	MaxDailyLossPct float64 `toml:"max_daily_loss_pct"`
	CoolOffLosses   int     `toml:"cool_off_losses"`
}

// MarketDataConfig holds feed endpoints, symbols, and cache TTL.
type MarketDataConfig struct {
	BinanceSymbol   string   `toml:"binance_symbol"`
	TaapiSecret     string   `toml:"taapi_secret"`
	TaapiExchange   string   `toml:"taapi_exchange"`
	TaapiSymbol     string   `toml:"taapi_symbol"`
	TaapiInterval   string   `toml:"taapi_interval"`
	DexscreenerPair string   `toml:"dexscreener_pair"`
	CacheTTL        duration `toml:"cache_ttl"`
	IndicatorTTL    duration `toml:"indicator_ttl"`
	RequestTimeout  duration `toml:"request_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the trade
// archiver.
type S3Config struct {
	Enabled              bool     `toml:"enabled"`
	Endpoint             string   `toml:"endpoint"`
	Region               string   `toml:"region"`
	Bucket               string   `toml:"bucket"`
	AccessKey            string   `toml:"access_key"`
	SecretKey            string   `toml:"secret_key"`
	UseSSL               bool     `toml:"use_ssl"`
	ForcePathStyle       bool     `toml:"force_path_style"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values. The
// chain and token defaults target the BTCB/USDT pair on BSC.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "https://bsc-dataseed.binance.org",
			ChainID: 56,
		},
		Tokens: TokensConfig{
			Base:          "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c", // BTCB
			Quote:         "0x55d398326f99059fF775485246999027B3197955", // USDT
			WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
			BaseDecimals:  18,
			QuoteDecimals: 18,
		},
		Venues: []VenueConfig{
			{Name: "pancakeswap", Router: "0x10ED43C718714eb63d5aA57B78B54704E256024E"},
		},
		Trading: TradingConfig{
			SignalInterval:  duration{60 * time.Second},
			SlippagePct:     0.2,
			MinSpreadPct:    0.5,
			RSIBuyBelow:     45,
			RSISellAbove:    55,
			MACDFilter:      true,
			TrailingStopPct: 0.5,
			HardStopPct:     2.0,
			TP1Pct:          0.8,
			TP2Pct:          1.5,
			TP3Pct:          3.0,
			TPInterval:      duration{30 * time.Second},
			SwapDeadline:    duration{60 * time.Second},
		},
		Gas: GasConfig{
			MaxGasPriceGwei: 5,
			MaxGasFeeNative: 0.003,
			TxTimeout:       duration{120 * time.Second},
			BumpFactor:      1.2,
			MaxBumps:        3,
			BumpInterval:    duration{30 * time.Second},
			SwapGasFallback: 400_000,
			ApproveGasLimit: 60_000,
		},
		Risk: RiskConfig{
			MaxTradePct:     10,
			MinTradePct:     2,
			VolatilityScale: 10,
			Lookback:        20,
			MaxDailyLossPct: 5,
			CoolOffLosses:   3,
		},
		MarketData: MarketDataConfig{
			BinanceSymbol:  "BTCUSDT",
			TaapiExchange:  "binance",
			TaapiSymbol:    "BTC/USDT",
			TaapiInterval:  "5m",
			CacheTTL:       duration{20 * time.Second},
			IndicatorTTL:   duration{30 * time.Second},
			RequestTimeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:              false,
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "dexbot-data",
			ForcePathStyle:       true,
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"tx_stuck", "risk_halt"},
		},
		AutoStart: true,
		LogLevel:  "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Wallet: exactly one credential source.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Tokens
	if c.Tokens.Base == "" || c.Tokens.Quote == "" {
		errs = append(errs, "tokens: base and quote addresses must not be empty")
	}
	if c.Tokens.BaseDecimals <= 0 || c.Tokens.QuoteDecimals <= 0 {
		errs = append(errs, "tokens: decimals must be positive")
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	seen := map[string]bool{}
	for i, v := range c.Venues {
		if v.Name == "" || v.Router == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name and router must not be empty", i))
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venues: duplicate venue name %q", v.Name))
		}
		seen[v.Name] = true
	}

	// Trading
	if c.Trading.SignalInterval.Duration <= 0 {
		errs = append(errs, "trading: signal_interval must be > 0")
	}
	if c.Trading.SlippagePct < 0 || c.Trading.SlippagePct >= 100 {
		errs = append(errs, fmt.Sprintf("trading: slippage_pct must be in [0, 100), got %g", c.Trading.SlippagePct))
	}
	if !(c.Trading.TP1Pct < c.Trading.TP2Pct && c.Trading.TP2Pct < c.Trading.TP3Pct) {
		errs = append(errs, "trading: take-profit rungs must be strictly increasing (tp1 < tp2 < tp3)")
	}
	if c.Trading.TrailingStopPct <= 0 || c.Trading.HardStopPct <= 0 {
		errs = append(errs, "trading: trailing_stop_pct and hard_stop_pct must be > 0")
	}

	// Gas
	if c.Gas.MaxGasPriceGwei <= 0 {
		errs = append(errs, "gas: max_gas_price_gwei must be > 0")
	}
	if c.Gas.MaxGasFeeNative <= 0 {
		errs = append(errs, "gas: max_gas_fee_native must be > 0")
	}
	if c.Gas.BumpFactor <= 1 {
		errs = append(errs, fmt.Sprintf("gas: bump_factor must be > 1, got %g", c.Gas.BumpFactor))
	}
	if c.Gas.MaxBumps < 0 {
		errs = append(errs, "gas: max_bumps must be >= 0")
	}

	// Risk
	if c.Risk.MinTradePct <= 0 || c.Risk.MaxTradePct <= 0 {
		errs = append(errs, "risk: min_trade_pct and max_trade_pct must be > 0")
	}
	if c.Risk.MinTradePct > c.Risk.MaxTradePct {
		errs = append(errs, "risk: min_trade_pct must not exceed max_trade_pct")
	}
	if c.Risk.MaxTradePct > 100 {
		errs = append(errs, "risk: max_trade_pct must not exceed 100")
	}
	if c.Risk.CoolOffLosses < 1 {
		errs = append(errs, "risk: cool_off_losses must be >= 1")
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
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.ArchiveRetentionDays < 1 {
			errs = append(errs, "s3: archive_retention_days must be >= 1 when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
