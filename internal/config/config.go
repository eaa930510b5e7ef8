package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Events   EventsConfig   `mapstructure:"events"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	// Kind is "memory" or "redis".
	Kind      string `mapstructure:"kind"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisPass string `mapstructure:"redis_password"`
	RedisDB   int    `mapstructure:"redis_db"`
	Prefix    string `mapstructure:"prefix"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type ExecutorConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	SubmitInterval   string        `mapstructure:"submit_interval"`
	StopLossInterval string        `mapstructure:"stoploss_interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	ResumeOnStartup  bool          `mapstructure:"resume_on_startup"`
	ClaimOwner       string        `mapstructure:"claim_owner"`
	PlanTimeout      time.Duration `mapstructure:"plan_timeout"`
}

type IntakeConfig struct {
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
	DefaultTIF   string        `mapstructure:"default_tif"`
}

type RiskConfig struct {
	DailyLimitUSD   float64            `mapstructure:"daily_limit_usd"`
	UserDailyLimits map[string]float64 `mapstructure:"user_daily_limits"`
	MaxSlippageBps  int                `mapstructure:"max_slippage_bps"`
}

type OracleConfig struct {
	// Kind is "static", "hyperliquid" or "stream".
	Kind         string             `mapstructure:"kind"`
	StaticMarks  map[string]float64 `mapstructure:"static_marks"`
	MaxStaleness time.Duration      `mapstructure:"max_staleness"`
	WSURL        string             `mapstructure:"ws_url"`
}

type BrokerConfig struct {
	// Kind is "sim" or "hyperliquid".
	Kind        string            `mapstructure:"kind"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
}

type HyperliquidConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Testnet        bool          `mapstructure:"testnet"`
	AccountAddress string        `mapstructure:"account_address"`
	PrivateKey     string        `mapstructure:"private_key"`
	VaultAddress   string        `mapstructure:"vault_address"`
	BuilderAddress string        `mapstructure:"builder_address"`
	BuilderFeeBps  int           `mapstructure:"builder_fee_bps"`
	SlippageBps    int           `mapstructure:"slippage_bps"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	KafkaBrokers []string      `mapstructure:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic"`
	WebhookURL   string        `mapstructure:"webhook_url"`
	PaaSBaseURL  string        `mapstructure:"paas_base_url"`
	PaaSAPIKey   string        `mapstructure:"paas_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cache.kind", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "hypercopy:")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "hypercopy")

	v.SetDefault("executor.enabled", true)
	v.SetDefault("executor.submit_interval", "@every 2s")
	v.SetDefault("executor.stoploss_interval", "@every 2s")
	v.SetDefault("executor.batch_size", 200)
	v.SetDefault("executor.concurrency", 1)
	v.SetDefault("executor.resume_on_startup", true)
	v.SetDefault("executor.claim_owner", "")
	v.SetDefault("executor.plan_timeout", "20s")

	v.SetDefault("intake.dedupe_window", "5m")
	v.SetDefault("intake.default_tif", "IOC")

	v.SetDefault("risk.daily_limit_usd", 0)
	v.SetDefault("risk.max_slippage_bps", 50)

	v.SetDefault("oracle.kind", "hyperliquid")
	v.SetDefault("oracle.max_staleness", "10s")
	v.SetDefault("oracle.ws_url", "")

	// Secrets need defaults so AutomaticEnv can bind them on Unmarshal.
	v.SetDefault("broker.kind", "sim")
	v.SetDefault("broker.hyperliquid.base_url", "")
	v.SetDefault("broker.hyperliquid.testnet", false)
	v.SetDefault("broker.hyperliquid.account_address", "")
	v.SetDefault("broker.hyperliquid.private_key", "")
	v.SetDefault("broker.hyperliquid.vault_address", "")
	v.SetDefault("broker.hyperliquid.builder_address", "")
	v.SetDefault("broker.hyperliquid.builder_fee_bps", 0)
	v.SetDefault("broker.hyperliquid.slippage_bps", 50)
	v.SetDefault("broker.hyperliquid.timeout", "10s")

	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "hypercopy.exec_events")
	v.SetDefault("events.webhook_url", "")
	v.SetDefault("events.paas_base_url", "")
	v.SetDefault("events.paas_api_key", "")
	v.SetDefault("events.timeout", "3s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the process cannot run with, including a
// selected broker whose credentials are missing.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.DB.Driver)) {
	case "postgres":
		if strings.TrimSpace(c.DB.DSN) == "" {
			errs = append(errs, errors.New("db.dsn is required for postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", c.DB.Driver))
	}

	switch strings.ToLower(strings.TrimSpace(c.Broker.Kind)) {
	case "sim":
	case "hyperliquid":
		hl := c.Broker.Hyperliquid
		if strings.TrimSpace(hl.AccountAddress) == "" {
			errs = append(errs, errors.New("broker.hyperliquid.account_address is required"))
		}
		if strings.TrimSpace(hl.PrivateKey) == "" {
			errs = append(errs, errors.New("broker.hyperliquid.private_key is required"))
		}
		if hl.BuilderFeeBps < 0 {
			errs = append(errs, errors.New("broker.hyperliquid.builder_fee_bps must be >= 0"))
		}
		if hl.BuilderFeeBps > 0 && strings.TrimSpace(hl.BuilderAddress) == "" {
			errs = append(errs, errors.New("broker.hyperliquid.builder_address is required when builder_fee_bps is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind %q is not supported", c.Broker.Kind))
	}

	switch strings.ToLower(strings.TrimSpace(c.Oracle.Kind)) {
	case "static":
		if len(c.Oracle.StaticMarks) == 0 {
			errs = append(errs, errors.New("oracle.static_marks is empty"))
		}
	case "hyperliquid", "stream":
	default:
		errs = append(errs, fmt.Errorf("oracle.kind %q is not supported", c.Oracle.Kind))
	}

	switch strings.ToLower(strings.TrimSpace(c.Cache.Kind)) {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q is not supported", c.Cache.Kind))
	}

	if c.Intake.DedupeWindow < 0 {
		errs = append(errs, errors.New("intake.dedupe_window must be >= 0"))
	}
	if c.Risk.DailyLimitUSD < 0 {
		errs = append(errs, errors.New("risk.daily_limit_usd must be >= 0"))
	}
	return errors.Join(errs...)
}
