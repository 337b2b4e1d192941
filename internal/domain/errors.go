package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnavailable           = errors.New("market data unavailable")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrRouteUnavailable      = errors.New("no viable swap route")
	ErrGasPriceExceeded      = errors.New("gas price above ceiling")
	ErrGasFeeExceeded        = errors.New("estimated gas fee above ceiling")
	ErrDailyLossLimit        = errors.New("daily loss limit reached")
	ErrCoolOff               = errors.New("cool-off after consecutive losses")
	ErrBotRunning            = errors.New("bot already running")
	ErrBotStopped            = errors.New("bot not running")
)
