// Package config loads the auditwatch YAML configuration and resolves the
// paths derived from it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jaakkos/auditwatch/internal/domain"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "AUDITWATCH_CONFIG"

// GlobalStateDir returns the default state directory (~/.config/auditwatch).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "auditwatch")
}

// GlobalStateFile returns the default audit database path.
func GlobalStateFile() string {
	return filepath.Join(GlobalStateDir(), "audit.sqlite")
}

// Config holds the auditwatch configuration.
type Config struct {
	WorkspaceRoot string   `yaml:"workspace_root"` // base for a relative state_file
	EnabledTools  []string `yaml:"enabled_tools"`
	StateFile     string   `yaml:"state_file"`
	LogFile       string   `yaml:"log_file"`

	PageSize            int    `yaml:"page_size"`
	ScanLimit           int    `yaml:"scan_limit"` // entries scanned by query_audit_log
	Environment         string `yaml:"environment"`
	HTTPPort            int    `yaml:"http_port"` // 0 picks a free port
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	DebounceMS          int    `yaml:"debounce_ms"`
	StreamQueue         int    `yaml:"stream_queue"` // websocket frames buffered per connection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		EnabledTools:        []string{"*"},
		PageSize:            domain.DefaultPageSize,
		ScanLimit:           500,
		PollIntervalSeconds: 5,
		DebounceMS:          100,
		StreamQueue:         16,
	}
}

// LoadConfig loads configuration from a YAML file. Zero or out-of-range
// values fall back to the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.PageSize > domain.MaxPageSize {
		c.PageSize = domain.MaxPageSize
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = def.ScanLimit
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = def.DebounceMS
	}
	if c.StreamQueue <= 0 {
		c.StreamQueue = def.StreamQueue
	}
	if len(c.EnabledTools) == 0 {
		c.EnabledTools = def.EnabledTools
	}
}

// StatePath returns the audit database path. If unset it defaults to the
// global state file so every process on the machine shares one log.
func (c *Config) StatePath() string {
	if c.StateFile == "" {
		return GlobalStateFile()
	}
	if filepath.IsAbs(c.StateFile) {
		return c.StateFile
	}
	return filepath.Join(c.WorkspaceRoot, c.StateFile)
}

// SignalFilePath returns the notify signal file, next to the database.
// Writers touch it after every append; watchers refresh when it changes.
func (c *Config) SignalFilePath() string {
	return filepath.Join(filepath.Dir(c.StatePath()), ".auditwatch-notify")
}

// LogFilePath returns the log file path, defaulting to
// ~/.config/auditwatch/auditwatch.log. "none" or "off" disables file logging.
func (c *Config) LogFilePath() string {
	if c.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "auditwatch.log")
	}
	return c.LogFile
}

// IsToolEnabled reports whether the MCP tool name is enabled.
func (c *Config) IsToolEnabled(name string) bool {
	for _, t := range c.EnabledTools {
		if t == "*" || t == name {
			return true
		}
	}
	return false
}
