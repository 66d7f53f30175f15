package config

import "time"

// Config represents the complete herald daemon configuration.
type Config struct {
	Service Service `yaml:"service"`
	Store   Store   `yaml:"store"`
	API     API     `yaml:"api,omitempty"`
	Billing Billing `yaml:"billing,omitempty"`
}

// Service defines core daemon settings.
type Service struct {
	Name               string        `yaml:"name"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	WorkerCount        int           `yaml:"worker_count"`
	WorkerPollInterval time.Duration `yaml:"worker_poll_interval"`
	// StuckWindow is how long a campaign may sit in PROCESSING with no
	// outstanding dispatch request before the recovery sweep re-triggers it.
	StuckWindow time.Duration `yaml:"stuck_window"`
	LogLevel    string        `yaml:"log_level"`
	LockPath    string        `yaml:"lock_path"`
}

// Store defines persistence settings.
type Store struct {
	Path       string `yaml:"path"`
	TargetsDir string `yaml:"targets_dir"`
}

// API defines HTTP API server settings.
type API struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// Billing defines admission-control settings.
type Billing struct {
	// DefaultCost is the per-invocation cost charged when the catalog
	// entry does not override it.
	DefaultCost int `yaml:"default_cost"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: Service{
			Name:               "herald",
			TickInterval:       60 * time.Second,
			WorkerCount:        4,
			WorkerPollInterval: 1 * time.Second,
			StuckWindow:        10 * time.Minute,
			LogLevel:           "INFO",
			LockPath:           "herald.lock",
		},
		Store: Store{
			Path:       "herald.db",
			TargetsDir: "targets",
		},
		API: API{
			Enabled: false,
			Listen:  "127.0.0.1:8321",
		},
		Billing: Billing{
			DefaultCost: 100,
		},
	}
}
