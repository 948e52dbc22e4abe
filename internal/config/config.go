package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// StreamConfig controls the resumable stream bridge. Resumable=false is a
// supported degraded mode: events are forwarded but a reconnect replays
// nothing.
type StreamConfig struct {
	Resumable   bool   `json:"resumable"`
	RetainHours int    `json:"retain_hours"`
	CleanupSpec string `json:"cleanup_spec"`
}

type AutosaveConfig struct {
	DebounceMS     int `json:"debounce_ms"`
	VersionMaxKeep int `json:"version_max_keep"`
}

type AIConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Config struct {
	Database      DatabaseConfig   `json:"database"`
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	JWTTTLHours   int              `json:"jwt_ttl_hours"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Stream        StreamConfig     `json:"stream"`
	Autosave      AutosaveConfig   `json:"autosave"`
	AI            AIConfig         `json:"ai"`
	FileStore     FileStoreConfig  `json:"file_store"`
	CORSAllowlist []string         `json:"cors_allowlist"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Stream.RetainHours == 0 {
		cfg.Stream.RetainHours = 24
	}
	if cfg.Stream.CleanupSpec == "" {
		cfg.Stream.CleanupSpec = "0 * * * *"
	}
	if cfg.Autosave.DebounceMS == 0 {
		cfg.Autosave.DebounceMS = 1500
	}
	if cfg.Autosave.VersionMaxKeep == 0 {
		cfg.Autosave.VersionMaxKeep = 200
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": "./data/files"}
	}
	return &cfg, nil
}
