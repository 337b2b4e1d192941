package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate, built from defaults with
// the fields that have no sane default filled in.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestDefaultsAreValidWithWalletKey(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateAggregatesAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.RPCURL = ""
	cfg.Wallet.PrivateKey = ""
	cfg.Gas.BumpFactor = 1.0
	cfg.Risk.MinTradePct = 5
	cfg.Risk.MaxTradePct = 2

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "chain: rpc_url")
	assert.Contains(t, msg, "wallet: either private_key or encrypted_key_path")
	assert.Contains(t, msg, "gas: bump_factor")
	assert.Contains(t, msg, "risk: min_trade_pct must not exceed max_trade_pct")
}

func TestValidateRejectsUnorderedLadder(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.TP1Pct = 2.0
	cfg.Trading.TP2Pct = 1.5
	cfg.Trading.TP3Pct = 3.0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "take-profit rungs must be strictly increasing")
}

func TestValidateRejectsDuplicateVenues(t *testing.T) {
	cfg := validConfig()
	cfg.Venues = append(cfg.Venues, cfg.Venues[0])

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate venue name")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	cfg.Wallet.EncryptedKeyPath = "/etc/dexbot/key.json"
	cfg.Wallet.KeyPassword = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := strings.Join([]string{
		`log_level = "debug"`,
		``,
		`[trading]`,
		`signal_interval = "45s"`,
		`slippage_pct = 1.25`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Trading.SignalInterval.Duration)
	assert.Equal(t, 1.25, cfg.Trading.SlippagePct)
	// Untouched sections keep their defaults.
	assert.Equal(t, Defaults().Chain.ChainID, cfg.Chain.ChainID)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	t.Setenv("DEXBOT_CHAIN_RPC_URL", "https://rpc.example.org")
	t.Setenv("DEXBOT_WALLET_PRIVATE_KEY", "deadbeef")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.MarketData.TaapiSecret = "taapi-secret"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.MarketData.TaapiSecret)
	assert.Equal(t, "***", red.Server.APIKey)
	// Original is untouched.
	assert.Equal(t, "taapi-secret", cfg.MarketData.TaapiSecret)
}
