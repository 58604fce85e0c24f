// Package config provides configuration loading for the remora service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remora-db/remora/internal/constants"
)

// Config is the service configuration schema.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	ToolsService ToolsServiceConfig `yaml:"tools_service"`
	Profiler     ProfilerConfig     `yaml:"profiler"`
	History      HistoryConfig      `yaml:"history"`
	MCP          MCPConfig          `yaml:"mcp"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ToolsServiceConfig locates the SQL Tools Service peer.
type ToolsServiceConfig struct {
	// Endpoint is the websocket URL of the peer's JSON-RPC surface.
	Endpoint string `yaml:"endpoint"`

	// RequestTimeout bounds individual requests to the peer.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ProfilerConfig tunes in-memory trace sessions.
type ProfilerConfig struct {
	// BufferCapacity is the per-session event ring size when the peer
	// does not specify one.
	BufferCapacity int `yaml:"buffer_capacity"`
}

// HistoryConfig controls task-outcome persistence.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the DuckDB database file. Empty means
	// ~/.remora/history.duckdb.
	Path string `yaml:"path"`

	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// MCPConfig controls the tool surface.
type MCPConfig struct {
	ServerName string `yaml:"server_name"`

	// EnabledTools optionally restricts the tool set; empty enables
	// all tools.
	EnabledTools []string `yaml:"enabled_tools"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		ToolsService: ToolsServiceConfig{
			Endpoint:       "ws://127.0.0.1:5151/rpc",
			RequestTimeout: constants.DefaultPeerRequestTimeout,
		},
		Profiler: ProfilerConfig{
			BufferCapacity: constants.DefaultSessionBufferCapacity,
		},
		History: HistoryConfig{
			Enabled:         true,
			Retention:       constants.DefaultHistoryRetention,
			CleanupInterval: constants.DefaultHistoryCleanupInterval,
		},
		MCP: MCPConfig{
			ServerName: "remora",
		},
	}
}

// DefaultPath returns the default config file location, honoring the
// REMORA_CONFIG base-directory override.
func DefaultPath() string {
	if baseDir := os.Getenv("REMORA_CONFIG"); baseDir != "" {
		return filepath.Join(baseDir, constants.ConfigFile)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Containerized environments without a home directory: Load
		// falls back to defaults plus env overrides.
		return filepath.Join("/tmp/remora-fallback", constants.ConfigFile)
	}
	return filepath.Join(homeDir, constants.DefaultDir, constants.ConfigFile)
}

// Load reads configuration from path, layering file values over
// defaults and environment overrides over both. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults + env overrides only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides layers REMORA_* environment variables over the
// loaded config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMORA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REMORA_TOOLS_SERVICE_ENDPOINT"); v != "" {
		cfg.ToolsService.Endpoint = v
	}
	if v := os.Getenv("REMORA_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("REMORA_MCP_SERVER_NAME"); v != "" {
		cfg.MCP.ServerName = v
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	if c.ToolsService.Endpoint == "" {
		return fmt.Errorf("tools_service.endpoint is required")
	}
	if c.ToolsService.RequestTimeout <= 0 {
		return fmt.Errorf("tools_service.request_timeout must be positive")
	}
	if c.Profiler.BufferCapacity < 1 {
		return fmt.Errorf("profiler.buffer_capacity must be at least 1")
	}
	if c.History.Enabled {
		if c.History.Retention <= 0 {
			return fmt.Errorf("history.retention must be positive")
		}
		if c.History.CleanupInterval <= 0 {
			return fmt.Errorf("history.cleanup_interval must be positive")
		}
	}
	return nil
}

// HistoryDBPath resolves the history database location.
func (c *Config) HistoryDBPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp/remora-fallback", constants.HistoryDBFile)
	}
	return filepath.Join(homeDir, constants.DefaultDir, constants.HistoryDBFile)
}
