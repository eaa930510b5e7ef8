package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DB:     DBConfig{Driver: "sqlite"},
		Cache:  CacheConfig{Kind: "memory"},
		Oracle: OracleConfig{Kind: "hyperliquid"},
		Broker: BrokerConfig{Kind: "sim"},
	}
}

func TestLoadEnvOnlyDefaults(t *testing.T) {
	t.Setenv("HC_DB_DRIVER", "sqlite")
	t.Setenv("HC_RISK_DAILY_LIMIT_USD", "2500")
	cfg, err := Load("does-not-exist.yaml", true)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 2500.0, cfg.Risk.DailyLimitUSD)
	assert.Equal(t, "sim", cfg.Broker.Kind)
	assert.Equal(t, "@every 2s", cfg.Executor.SubmitInterval)
	assert.Equal(t, "IOC", cfg.Intake.DefaultTIF)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("does-not-exist.yaml", false)
	require.Error(t, err)
}

func TestValidateHyperliquidNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Kind = "hyperliquid"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_address")
	assert.Contains(t, err.Error(), "private_key")

	cfg.Broker.Hyperliquid.AccountAddress = "0xabc"
	cfg.Broker.Hyperliquid.PrivateKey = "0xdef"
	require.NoError(t, cfg.Validate())

	cfg.Broker.Hyperliquid.BuilderFeeBps = 5
	require.ErrorContains(t, cfg.Validate(), "builder_address")
}

func TestValidateRejectsUnknownKinds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"broker", func(c *Config) { c.Broker.Kind = "paper" }, "broker.kind"},
		{"oracle", func(c *Config) { c.Oracle.Kind = "binance" }, "oracle.kind"},
		{"db", func(c *Config) { c.DB.Driver = "mysql" }, "db.driver"},
		{"cache", func(c *Config) { c.Cache.Kind = "memcached" }, "cache.kind"},
		{"postgres dsn", func(c *Config) { c.DB.Driver = "postgres" }, "db.dsn"},
		{"redis addr", func(c *Config) { c.Cache.Kind = "redis" }, "cache.redis_addr"},
		{"static marks", func(c *Config) { c.Oracle.Kind = "static" }, "static_marks"},
		{"daily limit", func(c *Config) { c.Risk.DailyLimitUSD = -1 }, "daily_limit_usd"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
