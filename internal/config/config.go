package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CA       CAConfig       `yaml:"ca"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CAConfig describes the upstream CFSSL signer
type CAConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
	RetryMax int    `yaml:"retry_max"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:       ":8000",
			CORSAllowOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "certs.db",
		},
		CA: CAConfig{
			Endpoint: "http://localhost:8888/api/v1/cfssl/newcert",
			Timeout:  "10s",
			RetryMax: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.CA.Endpoint == "" {
		return fmt.Errorf("ca.endpoint is required")
	}
	if _, err := time.ParseDuration(c.CA.Timeout); err != nil {
		return fmt.Errorf("ca.timeout is invalid: %w", err)
	}
	if c.CA.RetryMax < 0 {
		return fmt.Errorf("ca.retry_max must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetCATimeout returns the CA request timeout as time.Duration
func (c *Config) GetCATimeout() time.Duration {
	d, _ := time.ParseDuration(c.CA.Timeout)
	return d
}
