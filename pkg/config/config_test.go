package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "app": {"id": "11111111-2222-3333-4444-555555555555", "password": "file-secret"},
	  "auth": {"channel_service": "", "allowed_callers": ["*"]},
	  "server": {"host": "0.0.0.0", "port": 3978},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("BOTFRAME_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.App.ID != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("app.id = %q, want registration id", cfg.App.ID)
	}
	if cfg.Server.Port != 3978 {
		t.Fatalf("server.port = %d, want 3978", cfg.Server.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
}

func TestLoadConfigEnvOverridesCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "app": {"id": "file-id", "password": "file-secret"},
	  "server": {"host": "127.0.0.1", "port": 3978}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("BOTFRAME_CONFIG", path)
	t.Setenv("BOTFRAME_APP_ID", "env-id")
	t.Setenv("BOTFRAME_APP_PASSWORD", "env-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.App.ID != "env-id" {
		t.Fatalf("app.id = %q, want env override", cfg.App.ID)
	}
	if cfg.App.Password != "env-secret" {
		t.Fatalf("app.password = %q, want env override", cfg.App.Password)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("BOTFRAME_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}
