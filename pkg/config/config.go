package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envAppID       = "BOTFRAME_APP_ID"
	envAppPassword = "BOTFRAME_APP_PASSWORD"
	envAppTenant   = "BOTFRAME_APP_TENANT"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	App     AppConfig     `json:"app"`
	Auth    AuthConfig    `json:"auth"`
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// AppConfig holds the bot's channel registration credentials. An empty
// id runs the bot with authentication disabled, for local emulator use.
type AppConfig struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Tenant   string `json:"tenant,omitempty"`
}

// AuthConfig tunes token validation against the Bot Framework service.
type AuthConfig struct {
	// ChannelService selects the cloud: empty for public Azure, or the
	// government channel service URL for Azure Government.
	ChannelService   string `json:"channel_service,omitempty"`
	TokenAPIEndpoint string `json:"token_api_endpoint,omitempty"`
	// AllowedCallers lists bot app ids permitted to invoke this bot as a
	// skill. "*" accepts any authenticated caller.
	AllowedCallers []string `json:"allowed_callers,omitempty"`
}

// ServerConfig configures HTTP listener bind settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects credential env vars on top of file config, so
// secrets can stay out of config.json.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if id := strings.TrimSpace(os.Getenv(envAppID)); id != "" {
		cfg.App.ID = id
	}

	if password := strings.TrimSpace(os.Getenv(envAppPassword)); password != "" {
		cfg.App.Password = password
	}

	if tenant := strings.TrimSpace(os.Getenv(envAppTenant)); tenant != "" {
		cfg.App.Tenant = tenant
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is BOTFRAME_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("BOTFRAME_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("BOTFRAME_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
