package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	pkgvalidator "github.com/charlesng35/rolewarden/pkg/validator"
)

// Config represents the runtime configuration for the Rolewarden bot.
type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// DiscordConfig holds the gateway credentials.
type DiscordConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// TrackingConfig describes the tracked role and its expiry policy. The role
// is selected by id, or by case-insensitive name match against live guild
// roles when the id is zero.
type TrackingConfig struct {
	RoleID            int64         `mapstructure:"role_id"`
	RoleName          string        `mapstructure:"role_name"`
	Expiry            time.Duration `mapstructure:"expiry" validate:"gt=0"`
	SweepSchedule     string        `mapstructure:"sweep_schedule" validate:"required"`
	NotifyOnExpiry    bool          `mapstructure:"notify_on_expiry"`
	DropOnRemoteError bool          `mapstructure:"drop_on_remote_error"`
}

// DatabaseConfig describes the SQLite file backing the pending-grant table.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// ServerConfig configures the optional liveness HTTP server.
type ServerConfig struct {
	Port          int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	HealthEnabled bool   `mapstructure:"health_enabled"`
	LogLevel      string `mapstructure:"log_level"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. Environment variables use the ROLEWARDEN_ prefix; DISCORD_TOKEN
// and ROLE_ID are also honoured directly for drop-in compatibility with the
// bare-environment deployment style.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ROLEWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("discord.token", "ROLEWARDEN_DISCORD_TOKEN", "DISCORD_TOKEN")
	_ = v.BindEnv("tracking.role_id", "ROLEWARDEN_TRACKING_ROLE_ID", "ROLE_ID")

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate rejects configurations the bot cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Tracking.RoleName = strings.TrimSpace(c.Tracking.RoleName)

	if err := pkgvalidator.ValidateStruct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.Tracking.RoleID < 0 {
		return errors.New("config: tracking.role_id must not be negative")
	}
	if c.Tracking.RoleID == 0 && c.Tracking.RoleName == "" {
		return errors.New("config: one of tracking.role_id or tracking.role_name is required")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracking.expiry", "24h")
	v.SetDefault("tracking.sweep_schedule", "@every 5m")
	v.SetDefault("tracking.notify_on_expiry", true)
	v.SetDefault("tracking.drop_on_remote_error", false)

	v.SetDefault("database.path", "./data/rolewarden.sqlite")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_enabled", true)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true // snowflake ids arrive as strings from the environment
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
