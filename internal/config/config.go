// Package config loads the service configuration from the environment, an optional
// .env file and an optional calsync.{yaml,json,toml} file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	// Feeds are read in a configured IANA zone; embed the database for minimal images.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/host-calendar-sync/backend/internal/api"
	"github.com/host-calendar-sync/backend/internal/calendar"
	"github.com/host-calendar-sync/backend/internal/cleaning"
	"github.com/host-calendar-sync/backend/internal/logger"
	"github.com/host-calendar-sync/backend/internal/storage"
)

// EnvPrefix prefixes every environment key, e.g. CALSYNC_SYNC_TIMEZONE.
const EnvPrefix = "CALSYNC"

// Config holds all configuration for the service.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server api.Config `mapstructure:"server"`
	// Database holds configuration for the SQLite store.
	Database storage.Config `mapstructure:"database"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Sync holds feed fetching and reconciliation settings.
	Sync calendar.SyncConfig `mapstructure:"sync"`
	// Export holds outbound feed settings.
	Export calendar.ExportConfig `mapstructure:"export"`
	// Cleaning holds auto-assignment settings.
	Cleaning cleaning.Config `mapstructure:"cleaning"`
}

// Load reads configuration. Precedence, highest first: environment, .env in path,
// calsync config file in path, struct defaults.
func Load(path string) (*Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Overload(filepath.Join(path, ".env"))

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetConfigName("calsync")
	v.AddConfigPath(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if _, err := c.Sync.Location(); err != nil {
		return err
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.IntervalMinutes < 0 {
		return fmt.Errorf("sync.interval_minutes must not be negative, got %d", c.Sync.IntervalMinutes)
	}
	switch c.Cleaning.Policy {
	case cleaning.PolicyRoundRobin, cleaning.PolicyWeighted:
	default:
		return fmt.Errorf("cleaning.policy %q: %w", c.Cleaning.Policy, cleaning.ErrUnknownPolicy)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

// bindValues walks the struct and registers every key with its 'default' tag, so
// AutomaticEnv can find keys that have no file value.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
