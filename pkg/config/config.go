// Package config loads service configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the treasury API server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	Expiration ExpirationConfig `mapstructure:"expiration"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ApprovalConfig contains the whitelist approval policy. The defaults tags
// back the policy when the section is omitted entirely.
type ApprovalConfig struct {
	// DefaultRequiredApprovals applies when a submission does not name an
	// explicit quorum.
	DefaultRequiredApprovals int `mapstructure:"default_required_approvals" default:"2"`

	// AllowEmptySubmission permits submitting a version with no entries.
	AllowEmptySubmission bool `mapstructure:"allow_empty_submission"`

	// RosterFile points at the YAML file listing eligible approvers.
	RosterFile string `mapstructure:"roster_file"`
}

// ExpirationConfig controls the background expiration sweep.
type ExpirationConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" default:"1m"`
}

// AuthConfig contains principal-resolution settings. With JWKSURL set,
// commands require a Bearer token and the acting principal is the JWT
// subject; AllowHeaderPrincipal enables the X-Principal header fallback for
// development.
type AuthConfig struct {
	JWKSURL              string `mapstructure:"jwks_url"`
	Issuer               string `mapstructure:"issuer"`
	AllowHeaderPrincipal bool   `mapstructure:"allow_header_principal"`
}

// MonitoringConfig contains metrics settings.
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&config.Approval); err != nil {
		return nil, fmt.Errorf("failed to apply approval defaults: %w", err)
	}
	if err := defaults.Set(&config.Expiration); err != nil {
		return nil, fmt.Errorf("failed to apply expiration defaults: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8082)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.request_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "treasury_api")

	// Approval defaults
	viper.SetDefault("approval.default_required_approvals", 2)
	viper.SetDefault("approval.allow_empty_submission", false)

	// Expiration defaults
	viper.SetDefault("expiration.sweep_interval", "1m")

	// Auth defaults
	viper.SetDefault("auth.allow_header_principal", false)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Approval.DefaultRequiredApprovals < 0 {
		return fmt.Errorf("approval.default_required_approvals cannot be negative")
	}
	if config.Auth.JWKSURL == "" && !config.Auth.AllowHeaderPrincipal {
		return fmt.Errorf("auth.jwks_url or auth.allow_header_principal is required")
	}
	return nil
}
