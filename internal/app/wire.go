package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/dexbot/internal/blob/s3"
	"github.com/alanyoungcy/dexbot/internal/cache/redis"
	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/config"
	"github.com/alanyoungcy/dexbot/internal/crypto"
	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/executor"
	"github.com/alanyoungcy/dexbot/internal/feed"
	"github.com/alanyoungcy/dexbot/internal/monitor"
	"github.com/alanyoungcy/dexbot/internal/nonce"
	"github.com/alanyoungcy/dexbot/internal/notify"
	"github.com/alanyoungcy/dexbot/internal/quote"
	"github.com/alanyoungcy/dexbot/internal/risk"
	"github.com/alanyoungcy/dexbot/internal/server"
	"github.com/alanyoungcy/dexbot/internal/server/handler"
	"github.com/alanyoungcy/dexbot/internal/server/middleware"
	"github.com/alanyoungcy/dexbot/internal/server/ws"
	"github.com/alanyoungcy/dexbot/internal/store/postgres"
	"github.com/alanyoungcy/dexbot/internal/strategy"
)

// Dependencies bundles everything the application runs. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	SignalStore    domain.SignalStore
	TradeStore     domain.TradeStore
	PositionStore  domain.PositionStore
	PendingTxStore domain.PendingTxStore
	ErrorStore     domain.ErrorStore

	// Long-running components
	Runner   *Runner
	Bumper   *monitor.Bumper
	Ladder   *monitor.Ladder
	Trailing *monitor.TrailingSet
	Hub      *ws.Hub

	// Optional components; nil when disabled in config.
	Server   *server.Server
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

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
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.PendingTxStore = postgres.NewPendingTxStore(pool)
	deps.ErrorStore = postgres.NewErrorStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	priceCache := redis.NewPriceCache(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)

	// --- Chain ---
	rpc, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, rpc.Close)

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	wallet, err := chain.NewWallet(key, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}

	baseTok := chain.NewERC20(rpc, common.HexToAddress(cfg.Tokens.Base), cfg.Tokens.BaseDecimals)
	quoteTok := chain.NewERC20(rpc, common.HexToAddress(cfg.Tokens.Quote), cfg.Tokens.QuoteDecimals)
	balances := chain.NewBalanceReader(rpc, wallet.Address(), baseTok, quoteTok)

	sequencer := nonce.NewRegistry(rpc).For(wallet.Address())

	venueOrder := make([]string, 0, len(cfg.Venues))
	routers := make(map[string]quote.RouterClient, len(cfg.Venues))
	for _, v := range cfg.Venues {
		venueOrder = append(venueOrder, v.Name)
		routers[v.Name] = chain.NewRouter(rpc, common.HexToAddress(v.Router))
	}
	resolver := quote.NewResolver(quote.Tokens{
		Base:          common.HexToAddress(cfg.Tokens.Base),
		Quote:         common.HexToAddress(cfg.Tokens.Quote),
		WrappedNative: common.HexToAddress(cfg.Tokens.WrappedNative),
		BaseDecimals:  cfg.Tokens.BaseDecimals,
		QuoteDecimals: cfg.Tokens.QuoteDecimals,
	}, venueOrder, routers, logger)

	// --- Market data ---
	binance := feed.NewBinanceSource(cfg.MarketData.BinanceSymbol, priceCache, cfg.MarketData.CacheTTL.Duration, logger)
	dexscreener := feed.NewDexscreenerSource(cfg.MarketData.DexscreenerPair, cfg.MarketData.RequestTimeout.Duration, priceCache, cfg.MarketData.CacheTTL.Duration, logger)
	taapi := feed.NewTaapiSource(feed.TaapiConfig{
		Secret:   cfg.MarketData.TaapiSecret,
		Exchange: cfg.MarketData.TaapiExchange,
		Symbol:   cfg.MarketData.TaapiSymbol,
		Interval: cfg.MarketData.TaapiInterval,
		Timeout:  cfg.MarketData.RequestTimeout.Duration,
	}, priceCache, cfg.MarketData.IndicatorTTL.Duration, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Trading core ---
	governor := risk.NewGovernor(deps.TradeStore, risk.Config{
		MaxTradePct:     cfg.Risk.MaxTradePct,
		MinTradePct:     cfg.Risk.MinTradePct,
		VolatilityScale: cfg.Risk.VolatilityScale,
		Lookback:        cfg.Risk.Lookback,
		MaxDailyLossPct: cfg.Risk.MaxDailyLossPct,
		CoolOffLosses:   cfg.Risk.CoolOffLosses,
	}, logger)

	exec := executor.New(
		rpc,
		wallet,
		sequencer,
		baseTok, quoteTok,
		resolver,
		deps.TradeStore,
		deps.PendingTxStore,
		deps.PositionStore,
		executor.Config{
			SlippagePct:     cfg.Trading.SlippagePct,
			DefaultTradePct: cfg.Risk.MaxTradePct,
			MaxGasPrice:     chain.GweiToWei(cfg.Gas.MaxGasPriceGwei),
			MaxGasFee:       chain.ToWei(cfg.Gas.MaxGasFeeNative, 18),
			SwapDeadline:    cfg.Trading.SwapDeadline.Duration,
			SwapGasFallback: cfg.Gas.SwapGasFallback,
			ApproveGasLimit: cfg.Gas.ApproveGasLimit,
		},
		logger,
	)

	evaluator := strategy.NewEvaluator(binance, dexscreener, taapi, balances, venueOrder, strategy.Config{
		MinSpreadPct: cfg.Trading.MinSpreadPct,
		RSIBuyBelow:  cfg.Trading.RSIBuyBelow,
		RSISellAbove: cfg.Trading.RSISellAbove,
		MACDFilter:   cfg.Trading.MACDFilter,
	}, logger)

	// --- Monitors ---
	deps.Bumper = monitor.NewBumper(rpc, wallet, deps.PendingTxStore, deps.Notifier, monitor.BumperConfig{
		Interval:   cfg.Gas.BumpInterval.Duration,
		Timeout:    cfg.Gas.TxTimeout.Duration,
		BumpFactor: cfg.Gas.BumpFactor,
		MaxBumps:   cfg.Gas.MaxBumps,
	}, logger)

	deps.Ladder = monitor.NewLadder(deps.PositionStore, exec, dexscreener, monitor.LadderConfig{
		Interval: cfg.Trading.TPInterval.Duration,
		TP1Pct:   cfg.Trading.TP1Pct,
		TP2Pct:   cfg.Trading.TP2Pct,
		TP3Pct:   cfg.Trading.TP3Pct,
	}, logger)

	deps.Trailing = monitor.NewTrailingSet(deps.PositionStore, exec, dexscreener, monitor.TrailingConfig{
		Interval:    cfg.Trading.TPInterval.Duration,
		TrailPct:    cfg.Trading.TrailingStopPct,
		HardStopPct: cfg.Trading.HardStopPct,
	}, logger)
	exec.SetPositionHook(deps.Trailing.Watch)

	// --- Orchestrator ---
	deps.Hub = ws.NewHub(logger)
	deps.Runner = NewRunner(
		evaluator,
		exec,
		governor,
		deps.SignalStore,
		deps.TradeStore,
		deps.ErrorStore,
		deps.Hub,
		deps.Notifier,
		RunnerConfig{
			Interval:  cfg.Trading.SignalInterval.Duration,
			AutoStart: cfg.AutoStart,
		},
		logger,
	)

	// --- S3 archive (optional) ---
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
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TradeStore, deps.ErrorStore, s3blob.ArchiverConfig{
			RetentionDays: cfg.S3.ArchiveRetentionDays,
			Interval:      cfg.S3.ArchiveInterval.Duration,
		}, logger)
	}

	// --- HTTP API (optional) ---
	if cfg.Server.Enabled {
		deps.Server = newServer(cfg, deps, balances, rateLimiter, logger)
	}

	return deps, cleanup, nil
}

func newServer(cfg *config.Config, deps *Dependencies, balances *chain.BalanceReader, limiter middleware.Limiter, logger *slog.Logger) *server.Server {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(logger),
		Bot:       handler.NewBotHandler(deps.Runner, logger),
		Signals:   handler.NewSignalHandler(deps.SignalStore, logger),
		Trades:    handler.NewTradeHandler(deps.TradeStore, logger),
		Errors:    handler.NewErrorHandler(deps.ErrorStore, logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, logger),
		Balances:  handler.NewBalanceHandler(balances, logger),
		Stats:     handler.NewStatsHandler(deps.TradeStore, logger),
	}
	return server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, handlers, deps.Hub, limiter, logger)
}
