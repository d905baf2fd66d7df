package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"currex/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	API       APIConfig       `mapstructure:"api"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// APIConfig describes the rate provider endpoint and its basic auth credentials.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig holds freshness windows for the in-memory rate caches.
type CacheConfig struct {
	CurrentTTL    time.Duration `mapstructure:"current_ttl"`
	HistoricalTTL time.Duration `mapstructure:"historical_ttl"`
}

// RatesConfig lists tracked currencies and, optionally, a fixed bank order.
type RatesConfig struct {
	Currencies    []string `mapstructure:"currencies"`
	Banks         []string `mapstructure:"banks"`
	DefaultPeriod int      `mapstructure:"default_period"`
}

// SchedulerConfig governs refresh cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
}

// WidgetConfig selects the shared store the widget process reads from.
type WidgetConfig struct {
	Backend         string      `mapstructure:"backend"`
	Path            string      `mapstructure:"path"`
	IncludeAllRates bool        `mapstructure:"include_all_rates"`
	Redis           RedisConfig `mapstructure:"redis"`
}

// RedisConfig covers the redis widget backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the quote archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig defines best-rate movement thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram alert credentials.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

var widgetBackends = map[string]struct{}{
	"file":   {},
	"badger": {},
	"redis":  {},
	"sqlite": {},
	"memory": {},
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CURREX")
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

	cfg.normalise()
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
	v.SetDefault("app.name", "currex")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// Credentials have no default; they normally come from CURREX_API_* in .env.
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.username", "")
	v.SetDefault("api.password", "")
	v.SetDefault("api.request_timeout", "15s")
	v.SetDefault("api.user_agent", "currex/1.0")

	v.SetDefault("cache.current_ttl", "5m")
	v.SetDefault("cache.historical_ttl", "30m")

	v.SetDefault("rates.currencies", []string{"USD", "EUR"})
	v.SetDefault("rates.banks", []string{})
	v.SetDefault("rates.default_period", 7)

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63757272))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_immediately", true)

	v.SetDefault("widget.backend", "file")
	v.SetDefault("widget.path", "data/widget")
	v.SetDefault("widget.include_all_rates", true)
	v.SetDefault("widget.redis.addr", "localhost:6379")
	v.SetDefault("widget.redis.db", 0)
	v.SetDefault("widget.redis.prefix", "currex:")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 0.5)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("export.max_data_points", 2000)
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

func (c *Config) normalise() {
	currencies := make([]string, 0, len(c.Rates.Currencies))
	seen := make(map[string]struct{}, len(c.Rates.Currencies))
	for _, cur := range c.Rates.Currencies {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur == "" {
			continue
		}
		if _, dup := seen[cur]; dup {
			continue
		}
		seen[cur] = struct{}{}
		currencies = append(currencies, cur)
	}
	c.Rates.Currencies = currencies

	banks := make([]string, 0, len(c.Rates.Banks))
	for _, bank := range c.Rates.Banks {
		if bank = strings.TrimSpace(bank); bank != "" {
			banks = append(banks, bank)
		}
	}
	c.Rates.Banks = banks

	c.Widget.Backend = strings.ToLower(strings.TrimSpace(c.Widget.Backend))
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Cache.CurrentTTL <= 0 {
		return fmt.Errorf("cache.current_ttl must be greater than zero")
	}
	if c.Cache.HistoricalTTL <= 0 {
		return fmt.Errorf("cache.historical_ttl must be greater than zero")
	}
	if len(c.Rates.Currencies) == 0 {
		return fmt.Errorf("rates.currencies must list at least one currency")
	}
	if c.Rates.DefaultPeriod <= 0 {
		return fmt.Errorf("rates.default_period must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	// A tick no longer than the cache window would be answered from the previous fetch.
	if c.Scheduler.Interval <= c.Cache.CurrentTTL {
		return fmt.Errorf("scheduler.interval (%s) must be longer than cache.current_ttl (%s)", c.Scheduler.Interval, c.Cache.CurrentTTL)
	}
	if _, ok := widgetBackends[c.Widget.Backend]; !ok {
		return fmt.Errorf("widget.backend %q is not supported", c.Widget.Backend)
	}
	if c.Widget.Backend != "memory" && c.Widget.Backend != "redis" && c.Widget.Path == "" {
		return fmt.Errorf("widget.path is required for backend %q", c.Widget.Backend)
	}
	if c.Export.MaxDataPoints <= 1 {
		return fmt.Errorf("export.max_data_points must be greater than one")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 1 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolvePeriod returns either the CLI override or the configured default period.
func (c *Config) ResolvePeriod(override int) int {
	if override > 0 {
		return override
	}
	return c.Rates.DefaultPeriod
}
