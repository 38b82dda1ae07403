package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration and applies environment variable
// overrides. An empty path starts from the built-in defaults, so the
// service runs with environment configuration alone.
func LoadWithEnv(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if listenAddr := os.Getenv("CERTPORTAL_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if origins := os.Getenv("CERTPORTAL_CORS_ALLOW_ORIGINS"); origins != "" {
		cfg.Server.CORSAllowOrigins = strings.Split(origins, ",")
	}

	if dbPath := os.Getenv("CERTPORTAL_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if endpoint := os.Getenv("CERTPORTAL_CFSSL_ENDPOINT"); endpoint != "" {
		cfg.CA.Endpoint = endpoint
	}

	if timeout := os.Getenv("CERTPORTAL_CFSSL_TIMEOUT"); timeout != "" {
		cfg.CA.Timeout = timeout
	}

	if level := os.Getenv("CERTPORTAL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
