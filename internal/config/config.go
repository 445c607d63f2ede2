package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cookbooksync/internal/utils"

	"github.com/go-playground/validator/v10"

	_ "embed"
)

//go:embed config.sample.json
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "cookbooksync"
	CONFIG_FILE_PATH = "config.json"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0644
)

// Environment variables that override the file
const (
	ENV_BASE_URL = "COOKBOOKSYNC_BASE_URL"
	ENV_DB_PATH  = "COOKBOOKSYNC_DB_PATH"
)

const (
	defaultMinInterval    = 30
	defaultRequestTimeout = 20
	defaultWatchInterval  = 300
)

// Config represents the application configuration
type Config struct {
	Remote  RemoteConfig  `json:"remote" yaml:"remote"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Sync    SyncConfig    `json:"sync" yaml:"sync"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// RemoteConfig points at the sync server
type RemoteConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds" validate:"gte=0"`
}

// StorageConfig locates the local key/value database.
// An empty DBPath uses the XDG data directory.
type StorageConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

type SyncConfig struct {
	MinIntervalSeconds   int  `json:"min_interval_seconds" yaml:"min_interval_seconds" validate:"gte=0"`
	WatchIntervalSeconds int  `json:"watch_interval_seconds" yaml:"watch_interval_seconds" validate:"gte=0"`
	AutoSync             bool `json:"auto_sync" yaml:"auto_sync"`
}

type LogConfig struct {
	Verbose    bool   `json:"verbose" yaml:"verbose"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" validate:"gte=0"`
}

// MinInterval is the throttle window between two orchestrated runs
func (c *Config) MinInterval() time.Duration {
	return time.Duration(c.Sync.MinIntervalSeconds) * time.Second
}

// RequestTimeout bounds each remote call and each pull/push step
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeoutSeconds) * time.Second
}

func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Sync.WatchIntervalSeconds) * time.Second
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return utils.ErrInvalidConfig(verrs[0].Namespace(), fmt.Sprintf("failed '%s' check", verrs[0].Tag()))
		}
		return err
	}
	return nil
}

// Default returns the built-in configuration, without environment overrides
func Default() *Config {
	cfg := baseConfig()
	return &cfg
}

// SampleConfig returns the embedded sample file content
func SampleConfig() []byte {
	return append([]byte(nil), sampleConfig...)
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields the sample configuration. Environment overrides are
// applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		utils.Debugf("No config at %s, using defaults", path)
		data = sampleConfig
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath turns a --config value into a file path.
// A directory resolves to the config.json inside it.
func ResolvePath(path string) string {
	if path == "" || path == "." {
		return filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, CONFIG_FILE_PATH)
	}
	return path
}

// GetConfigPath returns the default config location under the user config dir
func GetConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// WriteSample writes the sample config to path. An existing file is only
// replaced when force is set.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), CONFIG_DIR_PERM); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, sampleConfig, CONFIG_FILE_PERM)
}

func baseConfig() Config {
	return Config{
		Remote: RemoteConfig{RequestTimeoutSeconds: defaultRequestTimeout},
		Sync: SyncConfig{
			MinIntervalSeconds:   defaultMinInterval,
			WatchIntervalSeconds: defaultWatchInterval,
			AutoSync:             true,
		},
		Log: LogConfig{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// parseConfig decodes data over the built-in defaults, so absent keys keep them
func parseConfig(data []byte) (*Config, error) {
	cfg := baseConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(ENV_BASE_URL); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv(ENV_DB_PATH); v != "" {
		c.Storage.DBPath = v
	}
}

// applyDefaults restores values that must never be zero: a zero request
// timeout would let a hung call block a run forever.
func (c *Config) applyDefaults() {
	if c.Remote.RequestTimeoutSeconds == 0 {
		c.Remote.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.Sync.WatchIntervalSeconds == 0 {
		c.Sync.WatchIntervalSeconds = defaultWatchInterval
	}
}
