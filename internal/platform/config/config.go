package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the recordings gateway.
// Values are resolved in three layers: built-in defaults, an optional YAML
// config file, and environment variable overrides (highest precedence).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	BBB        BBBConfig        `yaml:"bigbluebutton"`
	Storage    StorageConfig    `yaml:"storage"`
	Recordings RecordingsConfig `yaml:"recordings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	PingInterval int    `yaml:"ping_interval"` // seconds, reported to the table widget
	Locale       string `yaml:"locale"`
}

// BBBConfig holds the remote BigBlueButton server configuration.
type BBBConfig struct {
	ServerURL     string `yaml:"server_url"`
	SharedSecret  string `yaml:"shared_secret"`
	TrustedServer bool   `yaml:"trusted_server"` // vendor-hosted server, relaxes the inline-edit capability check
}

// StorageConfig holds the host event-log store configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RecordingsConfig holds recording pipeline feature toggles.
type RecordingsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ImportEnabled  bool   `yaml:"import_enabled"`
	SortOrder      string `yaml:"sort_order"` // "asc" or "desc" by start time
	ValidateURLs   bool   `yaml:"validate_urls"`
	PlayerBasePath string `yaml:"player_base_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// New resolves the full configuration: defaults, then the YAML file at path
// (skipped when path is empty or the file does not exist), then environment
// overrides.
func New(path string) (*Config, error) {
	cfg := &Config{}
	cfg.setDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:         "8080",
		PingInterval: 10,
		Locale:       "en",
	}
	c.BBB = BBBConfig{}
	c.Storage = StorageConfig{
		DatabasePath: "gateway.db",
	}
	c.Recordings = RecordingsConfig{
		Enabled:        true,
		ImportEnabled:  true,
		SortOrder:      "asc",
		PlayerBasePath: "/bbb/play",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = GetEnv("PORT", c.Server.Port)
	c.Server.PingInterval = GetEnvInt("PING_INTERVAL", c.Server.PingInterval)
	c.Server.Locale = GetEnv("LOCALE", c.Server.Locale)

	c.BBB.ServerURL = GetEnv("BBB_SERVER_URL", c.BBB.ServerURL)
	c.BBB.SharedSecret = GetEnv("BBB_SHARED_SECRET", c.BBB.SharedSecret)
	c.BBB.TrustedServer = GetEnvBool("BBB_TRUSTED_SERVER", c.BBB.TrustedServer)

	c.Storage.DatabasePath = GetEnv("DATABASE_PATH", c.Storage.DatabasePath)

	c.Recordings.Enabled = GetEnvBool("RECORDINGS_ENABLED", c.Recordings.Enabled)
	c.Recordings.ImportEnabled = GetEnvBool("RECORDINGS_IMPORT_ENABLED", c.Recordings.ImportEnabled)
	c.Recordings.SortOrder = GetEnv("RECORDINGS_SORT_ORDER", c.Recordings.SortOrder)
	c.Recordings.ValidateURLs = GetEnvBool("RECORDINGS_VALIDATE_URLS", c.Recordings.ValidateURLs)
	c.Recordings.PlayerBasePath = GetEnv("RECORDINGS_PLAYER_BASE_PATH", c.Recordings.PlayerBasePath)

	c.Logging.Level = GetEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnv("LOG_FORMAT", c.Logging.Format)
}

// SortDesc reports whether recordings should be ordered newest first.
func (c *Config) SortDesc() bool {
	return c.Recordings.SortOrder == "desc"
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
