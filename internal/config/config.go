package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"

	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvOpenRouterModel  = "OPENROUTER_MODEL"
	EnvTMDBAPIKey       = "TMDB_API_KEY"
	EnvGuardRedisAddr   = "GUARD_REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// GuardConfig holds the file-level defaults for admission control.
// Values stored in the settings table override these at runtime.
type GuardConfig struct {
	BurstWindow     time.Duration `yaml:"burst-window"`
	MaxBurst        int           `yaml:"max-burst"`
	GuestDailyLimit int           `yaml:"guest-daily-limit"`
	UserDailyLimit  int           `yaml:"user-daily-limit"`
	OnStoreError    string        `yaml:"on-store-error"`
	StoreTimeout    time.Duration `yaml:"store-timeout"`
	Timezone        string        `yaml:"timezone"`
	// GuestStore selects "memory" (default, Redis when enabled) or "database".
	GuestStore string `yaml:"guest-store"`
	Redis      struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

// Location resolves Timezone, defaulting to UTC.
func (c GuardConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Guest store backends.
const (
	GuestStoreMemory   = "memory"
	GuestStoreDatabase = "database"
)

// LoadGuardConfig reads the `guard` section of the YAML config file.
// A missing file yields the zero config; callers fill in defaults.
func LoadGuardConfig(configPath string) (GuardConfig, error) {
	// fileConfig maps the YAML fields needed for admission control.
	type fileConfig struct {
		Guard GuardConfig `yaml:"guard"`
	}

	var result GuardConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if !errors.Is(errRead, os.ErrNotExist) {
			return GuardConfig{}, fmt.Errorf("read config file: %w", errRead)
		}
	} else {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return GuardConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Guard
	}

	if addr := strings.TrimSpace(os.Getenv(EnvGuardRedisAddr)); addr != "" {
		result.Redis.Addr = addr
		result.Redis.Enabled = true
	}
	if _, errLoc := result.Location(); errLoc != nil {
		return GuardConfig{}, errLoc
	}
	result.GuestStore = strings.ToLower(strings.TrimSpace(result.GuestStore))
	switch result.GuestStore {
	case "", GuestStoreMemory:
		result.GuestStore = GuestStoreMemory
	case GuestStoreDatabase:
	default:
		return GuardConfig{}, fmt.Errorf("unknown guard guest-store %q", result.GuestStore)
	}
	return result, nil
}

// AssistantConfig holds the chat-completion upstream settings.
type AssistantConfig struct {
	APIKey         string        `yaml:"api-key"`
	BaseURL        string        `yaml:"base-url"`
	Model          string        `yaml:"model"`
	FallbackModels []string      `yaml:"fallback-models"`
	Referer        string        `yaml:"referer"`
	Title          string        `yaml:"title"`
	Timeout        time.Duration `yaml:"timeout"`
}

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultAssistantModel    = "openai/gpt-4o-mini"
	defaultAssistantTimeout  = 60 * time.Second
)

// LoadAssistantConfig reads the `assistant` section of the YAML config file.
func LoadAssistantConfig(configPath string) (AssistantConfig, error) {
	// fileConfig maps the YAML fields needed for the assistant upstream.
	type fileConfig struct {
		Assistant AssistantConfig `yaml:"assistant"`
	}

	var result AssistantConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AssistantConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Assistant
	} else if !errors.Is(errRead, os.ErrNotExist) {
		return AssistantConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	if key := strings.TrimSpace(os.Getenv(EnvOpenRouterAPIKey)); key != "" {
		result.APIKey = key
	}
	if model := strings.TrimSpace(os.Getenv(EnvOpenRouterModel)); model != "" {
		result.Model = model
	}
	result.APIKey = strings.TrimSpace(result.APIKey)
	if strings.TrimSpace(result.BaseURL) == "" {
		result.BaseURL = defaultOpenRouterBaseURL
	}
	result.BaseURL = strings.TrimRight(strings.TrimSpace(result.BaseURL), "/")
	if strings.TrimSpace(result.Model) == "" {
		result.Model = defaultAssistantModel
	}
	if result.Timeout <= 0 {
		result.Timeout = defaultAssistantTimeout
	}
	return result, nil
}

// TMDBConfig holds the movie metadata API settings.
type TMDBConfig struct {
	APIKey    string        `yaml:"api-key"`
	BaseURL   string        `yaml:"base-url"`
	ImageBase string        `yaml:"image-base"`
	Timeout   time.Duration `yaml:"timeout"`
	// Region selects the watch provider country (ISO 3166-1).
	Region      string        `yaml:"region"`
	TrendingTTL time.Duration `yaml:"trending-ttl"`
}

const (
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	defaultTMDBImageBase   = "https://image.tmdb.org/t/p"
	defaultTMDBTimeout     = 10 * time.Second
	defaultTMDBRegion      = "IN"
	defaultTMDBTrendingTTL = 30 * time.Minute
)

// LoadTMDBConfig reads the `tmdb` section of the YAML config file.
func LoadTMDBConfig(configPath string) (TMDBConfig, error) {
	// fileConfig maps the YAML fields needed for TMDB.
	type fileConfig struct {
		TMDB TMDBConfig `yaml:"tmdb"`
	}

	var result TMDBConfig
	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return TMDBConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.TMDB
	} else if !errors.Is(errRead, os.ErrNotExist) {
		return TMDBConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	if key := strings.TrimSpace(os.Getenv(EnvTMDBAPIKey)); key != "" {
		result.APIKey = key
	}
	result.APIKey = strings.TrimSpace(result.APIKey)
	if strings.TrimSpace(result.BaseURL) == "" {
		result.BaseURL = defaultTMDBBaseURL
	}
	result.BaseURL = strings.TrimRight(strings.TrimSpace(result.BaseURL), "/")
	if strings.TrimSpace(result.ImageBase) == "" {
		result.ImageBase = defaultTMDBImageBase
	}
	result.ImageBase = strings.TrimRight(strings.TrimSpace(result.ImageBase), "/")
	if result.Timeout <= 0 {
		result.Timeout = defaultTMDBTimeout
	}
	result.Region = strings.ToUpper(strings.TrimSpace(result.Region))
	if result.Region == "" {
		result.Region = defaultTMDBRegion
	}
	if result.TrendingTTL <= 0 {
		result.TrendingTTL = defaultTMDBTrendingTTL
	}
	return result, nil
}
