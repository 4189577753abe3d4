package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != "127.0.0.1:13265" {
		t.Errorf("Expected default listen addr 127.0.0.1:13265, got %s", cfg.ListenAddr)
	}
	if cfg.ReadBufferSize != 512 {
		t.Errorf("Expected default read buffer size 512, got %d", cfg.ReadBufferSize)
	}
	if cfg.MaxConnections != 0 {
		t.Errorf("Expected default max connections 0, got %d", cfg.MaxConnections)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.LogPath == "" {
		t.Error("Expected a default log path")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:13265" {
		t.Errorf("Expected defaults for missing file, got listen addr %s", cfg.ListenAddr)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	cfg := DefaultConfig()
	cfg.ListenAddr = "0.0.0.0:9000"
	cfg.ReadBufferSize = 1024
	cfg.MaxConnections = 50
	cfg.LogLevel = "debug"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen addr not persisted: %s", loaded.ListenAddr)
	}
	if loaded.ReadBufferSize != 1024 {
		t.Errorf("read buffer size not persisted: %d", loaded.ReadBufferSize)
	}
	if loaded.MaxConnections != 50 {
		t.Errorf("max connections not persisted: %d", loaded.MaxConnections)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("log level not persisted: %s", loaded.LogLevel)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	configJSON := `{
		"listen_addr": "127.0.0.1:7777"
	}`
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Errorf("Expected overridden listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.ReadBufferSize != 512 {
		t.Errorf("Expected default read buffer size for omitted field, got %d", cfg.ReadBufferSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level for omitted field, got %s", cfg.LogLevel)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"zero buffer", `{"read_buffer_size": 0}`},
		{"negative buffer", `{"read_buffer_size": -1}`},
		{"negative max connections", `{"max_connections": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(configPath, []byte(tt.json), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := Load(configPath); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()
	if !strings.HasSuffix(path, filepath.Join("switchboard", "config.json")) {
		t.Errorf("Unexpected config path: %s", path)
	}
}

func TestStatePaths(t *testing.T) {
	if path := GetLockfilePath(); !strings.HasSuffix(path, filepath.Join("switchboard", "switchboard.lock")) {
		t.Errorf("Unexpected lockfile path: %s", path)
	}
	if path := GetPidfilePath(); !strings.HasSuffix(path, filepath.Join("switchboard", "switchboard.pid")) {
		t.Errorf("Unexpected pidfile path: %s", path)
	}
}
