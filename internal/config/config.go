package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config represents application configuration
type Config struct {
	// ListenAddr is the TCP address the chat host binds to.
	ListenAddr string `json:"listen_addr"`

	// ReadBufferSize is the size in bytes of the per-connection read buffer.
	// Each successful read becomes one history entry.
	ReadBufferSize int `json:"read_buffer_size"`

	// MaxConnections caps concurrently accepted connections. Zero means
	// unlimited.
	MaxConnections int `json:"max_connections"`

	// LogLevel is one of debug, info, warn, error, none.
	LogLevel string `json:"log_level"`

	// LogPath is the log file location. Empty disables file logging.
	LogPath string `json:"log_path"`

	// PprofAddr enables the diagnostics HTTP server when non-empty,
	// e.g. "localhost:6060".
	PprofAddr string `json:"pprof_addr,omitempty"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "switchboard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "switchboard")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "switchboard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "switchboard")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "switchboard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "switchboard")
	default:
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "switchboard")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "switchboard")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     "127.0.0.1:13265",
		ReadBufferSize: 512,
		MaxConnections: 0,
		LogLevel:       "info",
		LogPath:        filepath.Join(defaultStateDir(), "switchboard.log"),
		PprofAddr:      "",
	}
}

// Load loads configuration from file. A missing file is not an error; the
// defaults are returned so first runs work without any setup.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	// Ensure critical fields have defaults if still empty
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:13265"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive, got %d", c.ReadBufferSize)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be >= 0, got %d", c.MaxConnections)
	}
	return nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// GetLockfilePath returns the default instance lock path
func GetLockfilePath() string {
	return filepath.Join(defaultStateDir(), "switchboard.lock")
}

// GetPidfilePath returns the default PID file path
func GetPidfilePath() string {
	return filepath.Join(defaultStateDir(), "switchboard.pid")
}
