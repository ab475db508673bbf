package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Upstream.Transport == "" {
		cfg.Upstream.Transport = "http"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.Name == "" {
		cfg.Upstream.Name = "inference"
	}
	if cfg.Content.MaxSizeBytes == 0 {
		cfg.Content.MaxSizeBytes = 10_000_000
	}
	if len(cfg.Content.AllowedTypes) == 0 {
		cfg.Content.AllowedTypes = []string{"image/png", "image/jpeg"}
	}
	if cfg.Retention == 0 {
		cfg.Retention = 10 * time.Minute
	}
}
