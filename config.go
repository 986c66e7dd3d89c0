package jobmanager

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

// Config holds the manager's recognized options. JobLimit bounds
// the dispatch queue, NotificationsLimit bounds the notifications queue,
// EventsLimit sizes the events ring, and JobConcurrency caps how many
// runners execute in parallel. AdminAddr, if non-empty, is the listen
// address an operator surface (see adminserver.go) can be served on; it is
// not consumed by the manager itself.
type Config struct {
	JobLimit           int    `toml:"job_limit"`
	NotificationsLimit int    `toml:"notifications_limit"`
	EventsLimit        int    `toml:"events_limit"`
	JobConcurrency     int    `toml:"job_concurrency"`
	AdminAddr          string `toml:"admin_addr"`
}

// DefaultConfig returns the manager's built-in defaults.
func DefaultConfig() Config {
	return Config{
		JobLimit:           100,
		NotificationsLimit: 10,
		EventsLimit:        10,
		JobConcurrency:     100,
	}
}

// LoadConfig reads and parses a TOML config file, filling any zero-valued
// field from DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.JobLimit <= 0 {
		cfg.JobLimit = DefaultConfig().JobLimit
	}
	if cfg.NotificationsLimit <= 0 {
		cfg.NotificationsLimit = DefaultConfig().NotificationsLimit
	}
	if cfg.EventsLimit <= 0 {
		cfg.EventsLimit = DefaultConfig().EventsLimit
	}
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = DefaultConfig().JobConcurrency
	}
	return cfg, nil
}

// GenerateExampleConfig writes config.toml.example under dir for an operator
// to copy and edit: a one-line header comment followed by DefaultConfig's
// four tunables and an example admin_addr of ":8090".
func GenerateExampleConfig(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	cfg := DefaultConfig()
	cfg.AdminAddr = ":8090"
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode example config: %w", err)
	}
	header := []byte("# Generated jobmanager example config (copy and edit as needed)\n\n")
	path := filepath.Join(dir, "config.toml.example")
	return os.WriteFile(path, append(header, data...), 0o644)
}
