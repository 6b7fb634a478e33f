// Package config provides dynamic configuration management for pagepulse.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/vesaa/pagepulse/internal/thresholds"
)

var validate = validator.New()

// Thresholds overrides the default threshold table. Read once at start-up.
type Thresholds struct {
	BundleSize             float64 `mapstructure:"bundle_size" validate:"gte=0"`
	LoadTime               float64 `mapstructure:"load_time" validate:"gte=0"`
	FirstContentfulPaint   float64 `mapstructure:"first_contentful_paint" validate:"gte=0"`
	LargestContentfulPaint float64 `mapstructure:"largest_contentful_paint" validate:"gte=0"`
	FirstInputDelay        float64 `mapstructure:"first_input_delay" validate:"gte=0"`
	CumulativeLayoutShift  float64 `mapstructure:"cumulative_layout_shift" validate:"gte=0"`
}

// Table converts the overrides into the table the engine reads.
func (t Thresholds) Table() thresholds.Table {
	return thresholds.Table{
		BundleSize:             t.BundleSize,
		LoadTime:               t.LoadTime,
		FirstContentfulPaint:   t.FirstContentfulPaint,
		LargestContentfulPaint: t.LargestContentfulPaint,
		FirstInputDelay:        t.FirstInputDelay,
		CumulativeLayoutShift:  t.CumulativeLayoutShift,
	}
}

// Config holds all runtime configuration for pagepulse.
type Config struct {
	// ── Agent ────────────────────────────────────────────────────────────────
	// Endpoint is the backend base URL alerts and reports are posted to.
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`
	// Token is sent as "Authorization: Bearer <token>" when set.
	Token                 string `mapstructure:"token"`
	ReportIntervalSeconds int    `mapstructure:"report_interval_seconds" validate:"gt=0"`
	SettleDelayMS         int    `mapstructure:"settle_delay_ms" validate:"gte=0"`
	ScriptPath            string `mapstructure:"script_path" validate:"required"`
	StylePath             string `mapstructure:"style_path"`
	// CoalesceWindowMS collapses repeat alerts of one type; 0 sends every breach.
	CoalesceWindowMS int        `mapstructure:"coalesce_window_ms" validate:"gte=0"`
	Thresholds       Thresholds `mapstructure:"thresholds"`

	// ── Host sources ─────────────────────────────────────────────────────────
	Trace    string `mapstructure:"trace"`
	Follow   bool   `mapstructure:"follow"`
	FeedURL  string `mapstructure:"feed_url" validate:"omitempty,url"`
	CacheDir string `mapstructure:"cache_dir"`
	// MetricsAddr serves /metrics from the agent when set, e.g. ":9464".
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// ── Sink ─────────────────────────────────────────────────────────────────
	SinkHost string `mapstructure:"sink_host"`
	SinkPort int    `mapstructure:"sink_port" validate:"gt=0,lte=65535"`
	DBPath   string `mapstructure:"db_path" validate:"required"`
	DBDriver string `mapstructure:"db_driver" validate:"oneof=sqlite"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// ReportInterval is the periodic report cadence.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSeconds) * time.Second
}

// SettleDelay is the wait between the load event and reading navigation timing.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// CoalesceWindow is the alert coalescing window; zero disables it.
func (c *Config) CoalesceWindow() time.Duration {
	return time.Duration(c.CoalesceWindowMS) * time.Millisecond
}

// SinkAddr is the sink server's listen address.
func (c *Config) SinkAddr() string {
	return fmt.Sprintf("%s:%d", c.SinkHost, c.SinkPort)
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks field constraints. Called by Load, and again by the CLI
// after flag overrides are applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads config from file (./config.yaml or ~/.pagepulse/config.yaml)
// and falls back to smart defaults. Environment variables with prefix PULSE_
// override file values.
func Load() (*Config, error) {
	return LoadFrom(".", "$HOME/.pagepulse")
}

// LoadFrom is Load with explicit config search paths.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("endpoint", "http://127.0.0.1:8000")
	v.SetDefault("token", "")
	v.SetDefault("report_interval_seconds", 30)
	v.SetDefault("settle_delay_ms", 100)
	v.SetDefault("script_path", "/static/js/")
	v.SetDefault("style_path", "/static/css/")
	v.SetDefault("coalesce_window_ms", 0)

	th := thresholds.Default()
	v.SetDefault("thresholds.bundle_size", th.BundleSize)
	v.SetDefault("thresholds.load_time", th.LoadTime)
	v.SetDefault("thresholds.first_contentful_paint", th.FirstContentfulPaint)
	v.SetDefault("thresholds.largest_contentful_paint", th.LargestContentfulPaint)
	v.SetDefault("thresholds.first_input_delay", th.FirstInputDelay)
	v.SetDefault("thresholds.cumulative_layout_shift", th.CumulativeLayoutShift)

	v.SetDefault("trace", "")
	v.SetDefault("follow", false)
	v.SetDefault("feed_url", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("sink_host", "0.0.0.0")
	v.SetDefault("sink_port", 8000)
	v.SetDefault("db_path", "pagepulse.db")
	v.SetDefault("db_driver", "sqlite")

	v.SetDefault("log_level", "info")

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
