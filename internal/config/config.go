package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"satsguard/internal/logging"
)

// Config materialises application configuration. Every field has a declared
// default resolved once at load time; nothing is probed ad hoc per call site.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Bitcoind  BitcoindConfig  `mapstructure:"bitcoind"`
	Esplora   EsploraConfig   `mapstructure:"esplora"`
	Lightning LightningConfig `mapstructure:"lightning"`
	Funding   FundingConfig   `mapstructure:"funding"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the decision-cycle cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// PolicyConfig locates the versioned policy document.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// BitcoindConfig covers Bitcoin Core RPC access.
type BitcoindConfig struct {
	URL            string        `mapstructure:"url"`
	RPCUser        string        `mapstructure:"rpc_user"`
	RPCPass        string        `mapstructure:"rpc_pass"`
	Wallet         string        `mapstructure:"wallet"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EsploraConfig covers the block-index REST service.
type EsploraConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LightningConfig covers the Lightning wallet service.
type LightningConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FundingConfig drives the proposal lifecycle.
type FundingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	ThresholdSats      int64         `mapstructure:"threshold_sats"`
	DefaultAmountSats  int64         `mapstructure:"default_amount_sats"`
	DestinationAddress string        `mapstructure:"destination_address"`
	MaxPending         int           `mapstructure:"max_pending"`
	ExpiryHours        int           `mapstructure:"expiry_hours"`
	NotifyURL          string        `mapstructure:"notify_url"`
	NotifyAuthToken    string        `mapstructure:"notify_auth_token"`
	NotifyTimeout      time.Duration `mapstructure:"notify_timeout"`
	NotifyMaxAttempts  int           `mapstructure:"notify_max_attempts"`
}

// WebhookConfig configures the inbound approval endpoint.
type WebhookConfig struct {
	ListenAddr         string        `mapstructure:"listen_addr"`
	Secret             string        `mapstructure:"secret"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SATSGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "satsguard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("policy.path", "policy.json")

	v.SetDefault("bitcoind.url", "http://127.0.0.1:8332")
	v.SetDefault("bitcoind.rpc_user", "bitcoin")
	v.SetDefault("bitcoind.request_timeout", "10s")

	v.SetDefault("esplora.base_url", "http://127.0.0.1:3000")
	v.SetDefault("esplora.request_timeout", "10s")

	v.SetDefault("lightning.base_url", "http://127.0.0.1:5000")
	v.SetDefault("lightning.request_timeout", "10s")

	v.SetDefault("funding.enabled", false)
	v.SetDefault("funding.threshold_sats", int64(50_000))
	v.SetDefault("funding.default_amount_sats", int64(100_000))
	v.SetDefault("funding.max_pending", 3)
	v.SetDefault("funding.expiry_hours", 24)
	v.SetDefault("funding.notify_timeout", "10s")
	v.SetDefault("funding.notify_max_attempts", 3)

	v.SetDefault("webhook.listen_addr", "127.0.0.1:8787")
	v.SetDefault("webhook.timestamp_tolerance", "5m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Funding.Enabled {
		if c.Funding.ThresholdSats <= 0 {
			return fmt.Errorf("funding.threshold_sats must be greater than zero")
		}
		if c.Funding.DefaultAmountSats <= 0 {
			return fmt.Errorf("funding.default_amount_sats must be greater than zero")
		}
		if c.Funding.MaxPending <= 0 {
			return fmt.Errorf("funding.max_pending must be greater than zero")
		}
		if c.Funding.ExpiryHours <= 0 {
			return fmt.Errorf("funding.expiry_hours must be greater than zero")
		}
	}
	if c.Webhook.TimestampTolerance <= 0 {
		return fmt.Errorf("webhook.timestamp_tolerance must be greater than zero")
	}
	if c.App.Environment == "production" && c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required in production")
	}
	return nil
}
