// Package config loads scrapeflow settings.
//
// Configuration is loaded using Viper. Priority, highest first:
//  1. Environment variables (SCRAPEFLOW_ prefix, dots become underscores,
//     e.g. SCRAPEFLOW_HTTP_ADDR)
//  2. The YAML file passed to [Loader.Load], or SCRAPEFLOW_CONFIG_PATH
//  3. [Default] values
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/petrijr/scrapeflow/internal/persistence"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCRAPEFLOW"

// Config is the root configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Engine  EngineConfig  `mapstructure:"engine"`
	History HistoryConfig `mapstructure:"history"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Log     LogConfig     `mapstructure:"log"`
}

// HTTPConfig configures the API gateway.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`

	// TriggerRate is the number of scrape runs per second POST /scrape
	// accepts. Zero disables limiting.
	TriggerRate  float64 `mapstructure:"trigger_rate"`
	TriggerBurst int     `mapstructure:"trigger_burst"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	Workers      int           `mapstructure:"workers"`
	BufferSize   int           `mapstructure:"buffer_size"`
	RunRetention time.Duration `mapstructure:"run_retention"`
}

// HistoryConfig selects the run history backend.
type HistoryConfig struct {
	// Backend is one of memory, sqlite, postgres, redis, mongo or none.
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// ScraperConfig configures the news sources.
type ScraperConfig struct {
	TechCrunchURL string        `mapstructure:"techcrunch_url"`
	GoogleNewsURL string        `mapstructure:"google_news_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":8000",
			TriggerRate:    2,
			TriggerBurst:   5,
			AllowedOrigins: []string{"http://localhost:3000", "localhost:3000"},
		},
		Engine: EngineConfig{
			Workers:      16,
			BufferSize:   256,
			RunRetention: 10 * time.Minute,
		},
		History: HistoryConfig{
			Backend: persistence.BackendMemory,
		},
		Scraper: ScraperConfig{
			TechCrunchURL: "https://techcrunch.com/category/artificial-intelligence/",
			GoogleNewsURL: "https://news.google.com/topstories",
			Timeout:       30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loader reads configuration through Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment overrides set up.
func NewLoader() *Loader {
	v := viper.New()

	d := Default()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.trigger_rate", d.HTTP.TriggerRate)
	v.SetDefault("http.trigger_burst", d.HTTP.TriggerBurst)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.buffer_size", d.Engine.BufferSize)
	v.SetDefault("engine.run_retention", d.Engine.RunRetention)
	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("scraper.techcrunch_url", d.Scraper.TechCrunchURL)
	v.SetDefault("scraper.google_news_url", d.Scraper.GoogleNewsURL)
	v.SetDefault("scraper.timeout", d.Scraper.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Viper exposes the underlying instance so CLI flags can be bound to keys.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads path (if non-empty, else SCRAPEFLOW_CONFIG_PATH if set) and
// returns the validated configuration.
func (l *Loader) Load(path string) (Config, error) {
	if path == "" {
		path = l.v.GetString("config_path")
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var backends = []string{
	persistence.BackendNone,
	persistence.BackendMemory,
	persistence.BackendSQLite,
	persistence.BackendPostgres,
	persistence.BackendRedis,
	persistence.BackendMongo,
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.HTTP.TriggerRate < 0 {
		errs = append(errs, errors.New("http.trigger_rate must not be negative"))
	}
	if c.Engine.Workers < 0 {
		errs = append(errs, errors.New("engine.workers must not be negative"))
	}
	if c.Engine.BufferSize < 0 {
		errs = append(errs, errors.New("engine.buffer_size must not be negative"))
	}
	if !slices.Contains(backends, c.History.Backend) {
		errs = append(errs, fmt.Errorf("history.backend %q is not one of %s", c.History.Backend, strings.Join(backends, ", ")))
	}
	if c.History.DSN == "" && needsDSN(c.History.Backend) {
		errs = append(errs, fmt.Errorf("history.dsn is required for backend %q", c.History.Backend))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func needsDSN(backend string) bool {
	switch backend {
	case persistence.BackendPostgres, persistence.BackendRedis, persistence.BackendMongo:
		return true
	}
	return false
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Level, err)
	}
	return lvl, nil
}
