// Package config loads and validates the process-level configuration: where
// the database lives, which exchange account to trade with, and the
// telemetry/timing knobs that are not per-bot Config rows.
package config

import (
	"fmt"
	"os"
	"strings"

	"dcagrid/internal/core"

	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	System    SystemConfig    `yaml:"system"`
	Timing    TimingConfig    `yaml:"timing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig holds top-level process settings.
type AppConfig struct {
	Environment string `yaml:"environment" validate:"oneof=production sandbox"` // exchange environment flag, spec §6
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// ExchangeConfig holds the exchange account credentials and connectivity
// settings; api_key/api_secret are encrypted at rest one layer up (spec §1
// places API-credential encryption out of core scope) and only loaded into
// core.Secret here.
type ExchangeConfig struct {
	Name       string      `yaml:"name" validate:"required"`
	APIKey     core.Secret `yaml:"api_key" validate:"required"`
	APISecret  core.Secret `yaml:"api_secret" validate:"required"`
	WSEndpoint string      `yaml:"ws_endpoint"`
	RESTEndpoint string    `yaml:"rest_endpoint"`
}

// SystemConfig holds logging and shutdown settings.
type SystemConfig struct {
	LogLevel        string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_seconds" validate:"min=1,max=300"`
}

// TimingConfig holds timing values that Load parses and defaults. No
// component reads them: the supervisor's reconnect delay and restart gap
// and the recovery pool size are constants in their own packages.
type TimingConfig struct {
	StreamReconnectDelaySeconds int `yaml:"stream_reconnect_delay_seconds" validate:"min=1,max=300"`
	CycleRestartGapMillis       int `yaml:"cycle_restart_gap_millis" validate:"min=1,max=10000"`
	RecoveryPoolSize            int `yaml:"recovery_pool_size" validate:"min=1,max=100"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// ValidationError reports one configuration field failing validation.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q (value: %v): %s", e.Field, e.Value, e.Message)
}

// Load reads filename, expands ${ENV_VAR} references, and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.Timing.StreamReconnectDelaySeconds == 0 {
		c.Timing.StreamReconnectDelaySeconds = 5
	}
	if c.Timing.CycleRestartGapMillis == 0 {
		c.Timing.CycleRestartGapMillis = 500
	}
	if c.Timing.RecoveryPoolSize == 0 {
		c.Timing.RecoveryPoolSize = 10
	}
	if c.System.ShutdownTimeout == 0 {
		c.System.ShutdownTimeout = 30
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "dcagrid"
	}
}

// Validate checks required fields and the allowed environment and log
// level values; numeric ranges are not checked.
func (c *Config) Validate() error {
	var errs []string

	if c.App.DatabasePath == "" {
		errs = append(errs, ValidationError{Field: "app.database_path", Message: "required"}.Error())
	}
	if c.App.Environment != "production" && c.App.Environment != "sandbox" {
		errs = append(errs, ValidationError{Field: "app.environment", Value: c.App.Environment, Message: "must be production or sandbox"}.Error())
	}
	if c.Exchange.Name == "" {
		errs = append(errs, ValidationError{Field: "exchange.name", Message: "required"}.Error())
	}
	if c.Exchange.APIKey.Reveal() == "" {
		errs = append(errs, ValidationError{Field: "exchange.api_key", Message: "required"}.Error())
	}
	if c.Exchange.APISecret.Reveal() == "" {
		errs = append(errs, ValidationError{Field: "exchange.api_secret", Message: "required"}.Error())
	}

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", "))}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(items []string, item string) bool {
	for _, v := range items {
		if v == item {
			return true
		}
	}
	return false
}
