package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIFESIGNAL_"

// Config is the engine configuration. Values come from lifesignal.yml, then
// LIFESIGNAL_* environment variables.
type Config struct {
	Timezone      string        `yaml:"timezone" env:"TIMEZONE" validate:"required"`
	Interval      time.Duration `yaml:"interval" env:"INTERVAL" validate:"gte=1s"`
	PassBudget    time.Duration `yaml:"pass_budget" env:"PASS_BUDGET" validate:"gte=1s"`
	Workers       int           `yaml:"workers" env:"WORKERS" validate:"min=1,max=64"`
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL" validate:"gte=0"`
	RetentionDays int           `yaml:"retention_days" env:"RETENTION_DAYS" validate:"min=1"`

	Notifications Notifications `yaml:"notifications" envPrefix:"NOTIFICATIONS_"`
	HTTP          HTTP          `yaml:"http" envPrefix:"HTTP_"`
	Log           Log           `yaml:"log" envPrefix:"LOG_"`
}

// Notifications configures alert delivery.
type Notifications struct {
	Desktop    bool `yaml:"desktop" env:"DESKTOP"`
	MaxRetries int  `yaml:"max_retries" env:"MAX_RETRIES" validate:"min=0,max=10"`
	PerMinute  int  `yaml:"per_minute" env:"PER_MINUTE" validate:"min=0"`
	QueueSize  int  `yaml:"queue_size" env:"QUEUE_SIZE" validate:"min=1"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `yaml:"addr" env:"ADDR" validate:"required,hostname_port"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Timezone:      "Local",
		Interval:      60 * time.Second,
		PassBudget:    30 * time.Second,
		Workers:       4,
		WatchInterval: 10 * time.Second,
		RetentionDays: 30,
		Notifications: Notifications{
			Desktop:    false,
			MaxRetries: 3,
			PerMinute:  30,
			QueueSize:  64,
		},
		HTTP: HTTP{Addr: "127.0.0.1:7878"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (a missing file means defaults), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the timezone name.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", c.Timezone, err)
	}
	return loc, nil
}

// fileConfig mirrors Config with durations spelled as strings, which is the
// form yaml.v3 decodes back into time.Duration.
type fileConfig struct {
	Timezone      string        `yaml:"timezone"`
	Interval      string        `yaml:"interval"`
	PassBudget    string        `yaml:"pass_budget"`
	Workers       int           `yaml:"workers"`
	WatchInterval string        `yaml:"watch_interval"`
	RetentionDays int           `yaml:"retention_days"`
	Notifications Notifications `yaml:"notifications"`
	HTTP          HTTP          `yaml:"http"`
	Log           Log           `yaml:"log"`
}

// Write stores cfg as YAML at path. Existing files are left untouched.
func Write(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(&fileConfig{
		Timezone:      cfg.Timezone,
		Interval:      cfg.Interval.String(),
		PassBudget:    cfg.PassBudget.String(),
		Workers:       cfg.Workers,
		WatchInterval: cfg.WatchInterval.String(),
		RetentionDays: cfg.RetentionDays,
		Notifications: cfg.Notifications,
		HTTP:          cfg.HTTP,
		Log:           cfg.Log,
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
