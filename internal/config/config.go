package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Store    StoreConfig    `mapstructure:"store"`
	Cron     CronConfig     `mapstructure:"cron"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`

	// File enables a rotating file sink next to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StoreConfig selects the repository backend: postgres or memory.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RiskSweep       string `mapstructure:"risk_sweep"`
	InterestAccrual string `mapstructure:"interest_accrual"`
}

type RiskConfig struct {
	Futures ProductRiskConfig `mapstructure:"futures"`
	Margin  ProductRiskConfig `mapstructure:"margin"`

	HighRiskCutoff      float64 `mapstructure:"high_risk_cutoff"`
	SweepWorkers        int     `mapstructure:"sweep_workers"`
	SettleOnLiquidation bool    `mapstructure:"settle_on_liquidation"`
}

type ProductRiskConfig struct {
	MinLeverage            int     `mapstructure:"min_leverage"`
	MaxLeverage            int     `mapstructure:"max_leverage"`
	InitialMarginRatio     float64 `mapstructure:"initial_margin_ratio"`
	MaintenanceMarginRatio float64 `mapstructure:"maintenance_margin_ratio"`
	DailyInterestRate      float64 `mapstructure:"daily_interest_rate"`
}

type AccountsConfig struct {
	InitialCapital InitialCapitalConfig `mapstructure:"initial_capital"`
}

// InitialCapitalConfig is the paper capital seeded into each wallet type.
type InitialCapitalConfig struct {
	Spot    float64 `mapstructure:"spot"`
	Margin  float64 `mapstructure:"margin"`
	Futures float64 `mapstructure:"futures"`
	Options float64 `mapstructure:"options"`
}

type OracleConfig struct {
	Driver        string        `mapstructure:"driver"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	// StaticPrices keys are symbols; viper lowercases them.
	StaticPrices map[string]float64 `mapstructure:"static_prices"`
}

type CacheConfig struct {
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.name", "papertrade")
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.risk_sweep", "@every 5s")
	v.SetDefault("cron.interest_accrual", "@every 1h")

	v.SetDefault("risk.futures.min_leverage", 1)
	v.SetDefault("risk.futures.max_leverage", 20)
	v.SetDefault("risk.futures.initial_margin_ratio", 0.10)
	v.SetDefault("risk.futures.maintenance_margin_ratio", 0.05)
	v.SetDefault("risk.futures.daily_interest_rate", 0)
	v.SetDefault("risk.margin.min_leverage", 2)
	v.SetDefault("risk.margin.max_leverage", 10)
	v.SetDefault("risk.margin.initial_margin_ratio", 0.50)
	v.SetDefault("risk.margin.maintenance_margin_ratio", 0.20)
	v.SetDefault("risk.margin.daily_interest_rate", 0.0005)
	v.SetDefault("risk.high_risk_cutoff", 1.5)
	v.SetDefault("risk.sweep_workers", 4)
	v.SetDefault("risk.settle_on_liquidation", true)

	v.SetDefault("accounts.initial_capital.spot", 100000)
	v.SetDefault("accounts.initial_capital.margin", 100000)
	v.SetDefault("accounts.initial_capital.futures", 100000)
	v.SetDefault("accounts.initial_capital.options", 100000)

	v.SetDefault("oracle.driver", "static")
	v.SetDefault("oracle.base_url", "https://api.binance.com")
	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("oracle.rate_per_second", 10)
	v.SetDefault("oracle.burst", 5)
	v.SetDefault("oracle.cache_ttl", "1s")
	v.SetDefault("oracle.static_prices", map[string]float64{
		"btcusdt": 43250.50,
		"ethusdt": 2280.75,
		"bnbusdt": 618.50,
	})

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "papertrade:")

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")

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
