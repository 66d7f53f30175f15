package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	// Expand ${VAR} references from the environment before parsing.
	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}

	cfg = applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields after unmarshalling a partial file.
func applyDefaults(cfg *Config) *Config {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.TickInterval <= 0 {
		cfg.Service.TickInterval = def.Service.TickInterval
	}
	if cfg.Service.WorkerCount <= 0 {
		cfg.Service.WorkerCount = def.Service.WorkerCount
	}
	if cfg.Service.WorkerPollInterval <= 0 {
		cfg.Service.WorkerPollInterval = def.Service.WorkerPollInterval
	}
	if cfg.Service.StuckWindow <= 0 {
		cfg.Service.StuckWindow = def.Service.StuckWindow
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = def.Service.LockPath
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Store.TargetsDir == "" {
		cfg.Store.TargetsDir = def.Store.TargetsDir
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = def.API.Listen
	}
	if cfg.Billing.DefaultCost <= 0 {
		cfg.Billing.DefaultCost = def.Billing.DefaultCost
	}
	return cfg
}

func validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required when api.enabled is true")
	}
	return nil
}

// ParseInterval converts interval strings to durations. Accepts plain
// duration strings ("5m", "2h") plus the "hourly" shorthand.
func ParseInterval(interval string) (time.Duration, error) {
	if interval == "hourly" {
		return 1 * time.Hour, nil
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", interval)
	}

	return d, nil
}
