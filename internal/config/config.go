package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/cascade"
	"github.com/rewired-gh/bridgecast/internal/models"
	"github.com/rewired-gh/bridgecast/internal/monitor"
	"github.com/rewired-gh/bridgecast/internal/prediction"
)

// Config represents the complete application configuration
type Config struct {
	Feed       FeedConfig       `mapstructure:"feed"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Cascade    CascadeConfig    `mapstructure:"cascade"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// FeedConfig holds the remote opening-event feed configuration
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PageSize       int           `mapstructure:"page_size"`
	MaxPages       int           `mapstructure:"max_pages"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Lookback       time.Duration `mapstructure:"lookback"`
}

// MonitorConfig holds refresh and alerting behaviour
type MonitorConfig struct {
	// MaxEvents caps the history fed to the analytics core (most recent first).
	MaxEvents            int           `mapstructure:"max_events"`
	AlertProbability     float64       `mapstructure:"alert_probability"`
	AlertMinConfidence   float64       `mapstructure:"alert_min_confidence"`
	NotificationCooldown time.Duration `mapstructure:"notification_cooldown"`
	RenotifyDelta        float64       `mapstructure:"renotify_delta"`
	TopEdges             int           `mapstructure:"top_edges"`
	Workers              int           `mapstructure:"workers"`
}

// AnalyticsConfig holds bucketing configuration
type AnalyticsConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// CascadeConfig holds cascade detection thresholds
type CascadeConfig struct {
	Window             time.Duration `mapstructure:"window"`
	ImmediateThreshold time.Duration `mapstructure:"immediate_threshold"`
	ShortTermThreshold time.Duration `mapstructure:"short_term_threshold"`
	ImmediateBoost     float64       `mapstructure:"immediate_boost"`
}

// PredictionConfig holds prediction engine constants
type PredictionConfig struct {
	MinSamples                  int                `mapstructure:"min_samples"`
	ProbabilityFloor            float64            `mapstructure:"probability_floor"`
	ProbabilityCeiling          float64            `mapstructure:"probability_ceiling"`
	DefaultDurationMinutes      float64            `mapstructure:"default_duration_minutes"`
	TierConfidenceCap           map[string]float64 `mapstructure:"tier_confidence_cap"`
	SystemWideConfidenceCeiling float64            `mapstructure:"system_wide_confidence_ceiling"`
	ConfidenceSaturation        float64            `mapstructure:"confidence_saturation"`
	BaselineWeight              float64            `mapstructure:"baseline_weight"`
	CascadeBoost                float64            `mapstructure:"cascade_boost"`
	MinObservationSpan          time.Duration      `mapstructure:"min_observation_span"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxEvents int    `mapstructure:"max_events"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// RedisConfig holds prediction fan-out configuration
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"`
	Channel   string        `mapstructure:"channel"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable override, e.g. BRIDGECAST_FEED_BASE_URL
	v.SetEnvPrefix("BRIDGECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.base_url", "http://localhost:8081/api")
	v.SetDefault("feed.poll_interval", "5m")
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.page_size", 500)
	v.SetDefault("feed.max_pages", 40)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.retry_delay_base", "1s")
	v.SetDefault("feed.lookback", "2160h")

	// Monitor defaults
	v.SetDefault("monitor.max_events", 20000)
	v.SetDefault("monitor.alert_probability", 0.5)
	v.SetDefault("monitor.alert_min_confidence", 0.3)
	v.SetDefault("monitor.notification_cooldown", "1h")
	v.SetDefault("monitor.renotify_delta", 0.15)
	v.SetDefault("monitor.top_edges", 5)
	v.SetDefault("monitor.workers", 4)

	// Analytics defaults
	v.SetDefault("analytics.timezone", "UTC")

	// Cascade defaults (hand-tuned, flagged for recalibration)
	v.SetDefault("cascade.window", "30m")
	v.SetDefault("cascade.immediate_threshold", "5m")
	v.SetDefault("cascade.short_term_threshold", "15m")
	v.SetDefault("cascade.immediate_boost", 0.5)

	// Prediction defaults (hand-tuned, flagged for recalibration)
	v.SetDefault("prediction.min_samples", 3)
	v.SetDefault("prediction.probability_floor", 0.01)
	v.SetDefault("prediction.probability_ceiling", 0.75)
	v.SetDefault("prediction.default_duration_minutes", 15.0)
	v.SetDefault("prediction.tier_confidence_cap", map[string]float64{
		string(models.TierExact):      0.95,
		string(models.TierHourPlus1):  0.85,
		string(models.TierHourPlus2):  0.75,
		string(models.TierDayType):    0.60,
		string(models.TierAllTime):    0.45,
		string(models.TierSystemWide): 0.25,
	})
	v.SetDefault("prediction.system_wide_confidence_ceiling", 0.2)
	v.SetDefault("prediction.confidence_saturation", 10.0)
	v.SetDefault("prediction.baseline_weight", 2.0)
	v.SetDefault("prediction.cascade_boost", 0.5)
	v.SetDefault("prediction.min_observation_span", "168h")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/bridgecast.db")
	v.SetDefault("storage.max_events", 100000)

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "bridgecast:predictions")
	v.SetDefault("redis.key_prefix", "bridgecast:prediction:")
	v.SetDefault("redis.ttl", "1h")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Feed.PollInterval < 1*time.Minute {
		return fmt.Errorf("feed.poll_interval must be at least 1 minute")
	}
	if c.Feed.PageSize < 1 {
		return fmt.Errorf("feed.page_size must be at least 1")
	}
	if c.Feed.MaxPages < 1 {
		return fmt.Errorf("feed.max_pages must be at least 1")
	}
	if c.Feed.Lookback < 0 {
		return fmt.Errorf("feed.lookback must not be negative")
	}

	// Validate Monitor config
	if c.Monitor.MaxEvents < 1 {
		return fmt.Errorf("monitor.max_events must be at least 1")
	}
	if c.Monitor.AlertProbability < 0.0 || c.Monitor.AlertProbability > 1.0 {
		return fmt.Errorf("monitor.alert_probability must be between 0.0 and 1.0")
	}
	if c.Monitor.AlertMinConfidence < 0.0 || c.Monitor.AlertMinConfidence > 1.0 {
		return fmt.Errorf("monitor.alert_min_confidence must be between 0.0 and 1.0")
	}
	if c.Monitor.RenotifyDelta < 0.0 || c.Monitor.RenotifyDelta > 1.0 {
		return fmt.Errorf("monitor.renotify_delta must be between 0.0 and 1.0")
	}
	if c.Monitor.Workers < 1 {
		return fmt.Errorf("monitor.workers must be at least 1")
	}

	// Validate Analytics config
	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("analytics.timezone is not a known time zone: %w", err)
	}

	// Validate Cascade config
	if c.Cascade.Window <= 0 {
		return fmt.Errorf("cascade.window must be positive")
	}
	if c.Cascade.ImmediateThreshold <= 0 || c.Cascade.ImmediateThreshold > c.Cascade.ShortTermThreshold {
		return fmt.Errorf("cascade.immediate_threshold must be positive and <= cascade.short_term_threshold")
	}
	if c.Cascade.ShortTermThreshold > c.Cascade.Window {
		return fmt.Errorf("cascade.short_term_threshold must be <= cascade.window")
	}
	if c.Cascade.ImmediateBoost < 0 {
		return fmt.Errorf("cascade.immediate_boost must not be negative")
	}

	// Validate Prediction config
	if c.Prediction.MinSamples < 1 {
		return fmt.Errorf("prediction.min_samples must be at least 1")
	}
	if c.Prediction.ProbabilityFloor < 0.0 || c.Prediction.ProbabilityCeiling > 1.0 ||
		c.Prediction.ProbabilityFloor >= c.Prediction.ProbabilityCeiling {
		return fmt.Errorf("prediction.probability_floor and probability_ceiling must satisfy 0 <= floor < ceiling <= 1")
	}
	if c.Prediction.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("prediction.default_duration_minutes must be positive")
	}
	for name, v := range c.Prediction.TierConfidenceCap {
		if !knownTier(name) {
			return fmt.Errorf("prediction.tier_confidence_cap has unknown tier %q", name)
		}
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("prediction.tier_confidence_cap.%s must be between 0.0 and 1.0", name)
		}
	}
	if c.Prediction.SystemWideConfidenceCeiling <= 0.0 || c.Prediction.SystemWideConfidenceCeiling > 1.0 {
		return fmt.Errorf("prediction.system_wide_confidence_ceiling must be in (0.0, 1.0]")
	}
	if c.Prediction.ConfidenceSaturation <= 0 {
		return fmt.Errorf("prediction.confidence_saturation must be positive")
	}
	if c.Prediction.BaselineWeight < 0 || c.Prediction.CascadeBoost < 0 {
		return fmt.Errorf("prediction.baseline_weight and prediction.cascade_boost must not be negative")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxEvents < c.Monitor.MaxEvents {
		return fmt.Errorf("storage.max_events must be at least monitor.max_events")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Redis config
	if c.Redis.Enabled {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel is required when redis is enabled")
		}
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func knownTier(name string) bool {
	for _, t := range models.Tiers {
		if string(t) == name {
			return true
		}
	}
	return false
}

// Location returns the configured analytics time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TierCaps converts the configured per-tier confidence caps to typed keys.
func (c *Config) TierCaps() map[models.Tier]float64 {
	caps := make(map[models.Tier]float64, len(c.Prediction.TierConfidenceCap))
	for name, v := range c.Prediction.TierConfidenceCap {
		caps[models.Tier(name)] = v
	}
	return caps
}

// AggregatorSettings maps the analytics section onto the aggregator
func (c *Config) AggregatorSettings() analytics.Config {
	return analytics.Config{Location: c.Location()}
}

// DetectorSettings maps the cascade section onto the detector
func (c *Config) DetectorSettings() cascade.Config {
	return cascade.Config{
		Window:             c.Cascade.Window,
		ImmediateThreshold: c.Cascade.ImmediateThreshold,
		ShortTermThreshold: c.Cascade.ShortTermThreshold,
		ImmediateBoost:     c.Cascade.ImmediateBoost,
	}
}

// EngineSettings maps the prediction section onto the engine. The cascade
// window is shared with the detector.
func (c *Config) EngineSettings() prediction.Config {
	return prediction.Config{
		Location:                    c.Location(),
		MinSamples:                  c.Prediction.MinSamples,
		ProbabilityFloor:            c.Prediction.ProbabilityFloor,
		ProbabilityCeiling:          c.Prediction.ProbabilityCeiling,
		DefaultDurationMinutes:      c.Prediction.DefaultDurationMinutes,
		TierConfidenceCap:           c.TierCaps(),
		SystemWideConfidenceCeiling: c.Prediction.SystemWideConfidenceCeiling,
		ConfidenceSaturation:        c.Prediction.ConfidenceSaturation,
		BaselineWeight:              c.Prediction.BaselineWeight,
		CascadeWindow:               c.Cascade.Window,
		CascadeBoost:                c.Prediction.CascadeBoost,
		MinObservationSpan:          c.Prediction.MinObservationSpan,
	}
}

// MonitorSettings maps the monitor section onto the monitor
func (c *Config) MonitorSettings() monitor.Config {
	return monitor.Config{
		MaxEvents:          c.Monitor.MaxEvents,
		Workers:            c.Monitor.Workers,
		AlertProbability:   c.Monitor.AlertProbability,
		AlertMinConfidence: c.Monitor.AlertMinConfidence,
		RenotifyDelta:      c.Monitor.RenotifyDelta,
	}
}
