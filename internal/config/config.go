// Package config loads civicpulse configuration from defaults, an optional
// YAML file and CIVIC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds the complete service configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Command     CommandConfig    `mapstructure:"command"`
	Escalation  EscalationConfig `mapstructure:"escalation"`
	Scheduler   SchedulerConfig  `mapstructure:"scheduler"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	Activity    ActivityConfig   `mapstructure:"activity"`
	EventBus    EventBusConfig   `mapstructure:"eventbus"`
	Feed        FeedConfig       `mapstructure:"feed"`
	Seed        SeedConfig       `mapstructure:"seed"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CommandConfig controls the simulated round-trip applied to every command.
type CommandConfig struct {
	Latency time.Duration `mapstructure:"latency"`
}

// EscalationConfig controls automatic escalation of stale complaints.
type EscalationConfig struct {
	OverdueAfter time.Duration `mapstructure:"overdue_after"`
}

// SchedulerConfig holds cron specs. An empty spec disables the job.
type SchedulerConfig struct {
	OverdueEscalation string `mapstructure:"overdue_escalation"`
	SLASweep          string `mapstructure:"sla_sweep"`
}

// CatalogConfig points at an optional CUE override of the built-in
// department and severity catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ActivityConfig selects the activity journal backend.
type ActivityConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// EventBusConfig sizes the in-process event buffer.
type EventBusConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// FeedConfig controls the live WebSocket feed.
type FeedConfig struct {
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// SeedConfig controls demo data loading.
type SeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in the working directory and ./config; a missing file is not an
// error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CIVIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("command.latency", "1s")

	v.SetDefault("escalation.overdue_after", "72h")

	v.SetDefault("scheduler.overdue_escalation", "*/15 * * * *")
	v.SetDefault("scheduler.sla_sweep", "@every 1m")

	v.SetDefault("catalog.path", "")

	v.SetDefault("activity.driver", "memory")
	v.SetDefault("activity.dsn", "file:civicpulse.db")

	v.SetDefault("eventbus.buffer_size", 256)

	v.SetDefault("feed.snapshot_interval", "5s")

	v.SetDefault("seed.enabled", true)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Environment != "development" && c.Environment != "production" {
		errs = append(errs, fmt.Errorf("environment: must be development or production, got %q", c.Environment))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: out of range: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout: must be positive"))
	}
	if c.Command.Latency < 0 {
		errs = append(errs, errors.New("command.latency: must not be negative"))
	}
	if c.Escalation.OverdueAfter < 0 {
		errs = append(errs, errors.New("escalation.overdue_after: must not be negative"))
	}
	for key, spec := range map[string]string{
		"scheduler.overdue_escalation": c.Scheduler.OverdueEscalation,
		"scheduler.sla_sweep":          c.Scheduler.SLASweep,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	switch c.Activity.Driver {
	case "memory":
	case "sqlite":
		if c.Activity.DSN == "" {
			errs = append(errs, errors.New("activity.dsn: required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("activity.driver: must be memory or sqlite, got %q", c.Activity.Driver))
	}
	if c.EventBus.BufferSize <= 0 {
		errs = append(errs, errors.New("eventbus.buffer_size: must be positive"))
	}
	if c.Feed.SnapshotInterval < 0 {
		errs = append(errs, errors.New("feed.snapshot_interval: must not be negative"))
	}
	return errors.Join(errs...)
}
