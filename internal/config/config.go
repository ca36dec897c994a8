package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for medwatch
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Detector DetectorConfig `mapstructure:"detector"`
	Push     PushConfig     `mapstructure:"push"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	Driver             string `mapstructure:"driver"` // sqlite or postgres
	DataDir            string `mapstructure:"data_dir"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	PostgresDSN        string `mapstructure:"postgres_dsn"`
	BadgerPath         string `mapstructure:"badger_path"`
	RunHistoryTTLHours int    `mapstructure:"run_history_ttl_hours"`
}

// DetectorConfig controls the missed-medication detection job
type DetectorConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"`
	Timezone   string `mapstructure:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// PushConfig holds push transport settings
type PushConfig struct {
	Provider        string  `mapstructure:"provider"` // fcm or log
	ProjectID       string  `mapstructure:"project_id"`
	CredentialsFile string  `mapstructure:"credentials_file"`
	Endpoint        string  `mapstructure:"endpoint"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	Burst           int     `mapstructure:"burst"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	BreakerFailures uint32  `mapstructure:"breaker_failures"`
	BreakerCooldown int     `mapstructure:"breaker_cooldown_seconds"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`

	// GeneratedSecret is set when JWTSecret was not configured and a random
	// one was generated for this process.
	GeneratedSecret bool `mapstructure:"-"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	_, cfg, err := load(configPath, dataDir)
	return cfg, err
}

// Watch loads the configuration like Load and calls onChange with the freshly
// parsed config each time the file changes on disk. An edit that fails to
// parse or validate is passed to onError and the previous config stays in
// effect. onError may be nil.
func Watch(configPath, dataDir string, onChange func(*Config), onError func(error)) (*Config, error) {
	v, cfg, err := load(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := unmarshal(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

func load(configPath, dataDir string) (*viper.Viper, *Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medwatch.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medwatch.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// MEDWATCH_SERVER_PORT, MEDWATCH_PUSH_PROJECT_ID, etc.
	v.SetEnvPrefix("MEDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.run_history_ttl_hours", 24*30)

	v.SetDefault("detector.enabled", true)
	v.SetDefault("detector.schedule", "@every 5m")
	v.SetDefault("detector.timezone", "Local")
	v.SetDefault("detector.run_on_start", false)

	v.SetDefault("push.provider", "log")
	v.SetDefault("push.rate_per_second", 50.0)
	v.SetDefault("push.burst", 20)
	v.SetDefault("push.timeout_seconds", 10)
	v.SetDefault("push.breaker_failures", 5)
	v.SetDefault("push.breaker_cooldown_seconds", 60)

	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medwatch")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medwatch")
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}

	switch cfg.Push.Provider {
	case "log":
	case "fcm":
		if cfg.Push.ProjectID == "" {
			return fmt.Errorf("push.project_id is required for the fcm provider")
		}
	default:
		return fmt.Errorf("unsupported push.provider %q", cfg.Push.Provider)
	}

	if _, err := time.LoadLocation(cfg.Detector.Timezone); err != nil {
		return fmt.Errorf("invalid detector.timezone: %w", err)
	}

	// Tokens signed with a generated secret do not survive a restart.
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateSecret(32)
		cfg.Security.GeneratedSecret = true
	}

	return nil
}

func generateSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// Location returns the time zone detection runs evaluate schedules in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Detector.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RunHistoryTTL returns how long run summaries are kept.
func (c *Config) RunHistoryTTL() time.Duration {
	return time.Duration(c.Storage.RunHistoryTTLHours) * time.Hour
}
