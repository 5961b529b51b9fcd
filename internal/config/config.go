// Package config loads tool configuration.
//
// Configuration is layered:
//  1. skema.yaml in the working directory (or --config path)
//  2. Environment variables with the SKEMA_ prefix (SKEMA_DATABASE_URL)
//  3. Defaults
//
// Command-line flags override all of the above per invocation.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	SchemaDir string         `mapstructure:"schema_dir"`
	ViewsDir  string         `mapstructure:"views_dir"`
	ChartsDir string         `mapstructure:"charts_dir"`
	SQL       SQLConfig      `mapstructure:"sql"`
	Database  DatabaseConfig `mapstructure:"database"`
	Ledger    LedgerConfig   `mapstructure:"ledger"`
	Log       LogConfig      `mapstructure:"log"`
}

// SQLConfig carries DDL generation defaults.
type SQLConfig struct {
	Schema               string   `mapstructure:"schema"`
	Owner                string   `mapstructure:"owner"`
	DefaultVarcharLength int      `mapstructure:"default_varchar_length"`
	Tablespace           string   `mapstructure:"tablespace"`
	Extensions           []string `mapstructure:"extensions"`
	WithDrop             bool     `mapstructure:"with_drop"`
}

// DatabaseConfig holds the apply target.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LedgerConfig holds the apply-ledger location.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the zap logger used by database-facing commands.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from the given file (optional), environment
// variables, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("schema_dir", "struktur_data")
	v.SetDefault("views_dir", "materialized_view")
	v.SetDefault("charts_dir", "charts")
	v.SetDefault("sql.schema", "public")
	v.SetDefault("sql.default_varchar_length", 255)
	// Empty defaults register the keys so env overrides reach Unmarshal.
	v.SetDefault("sql.owner", "")
	v.SetDefault("sql.tablespace", "")
	v.SetDefault("sql.with_drop", false)
	v.SetDefault("database.url", "")
	v.SetDefault("ledger.path", "skema.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skema")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SKEMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine; an explicit one is not.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
