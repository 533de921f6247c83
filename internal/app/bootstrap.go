package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/film4u/film4u-ai/internal/db"
	"github.com/film4u/film4u-ai/internal/models"
	"github.com/film4u/film4u-ai/internal/security"
	internalsettings "github.com/film4u/film4u-ai/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPort is the listen port used when neither flags nor config set one.
const DefaultPort = 8318

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "film4u.db"

// InitOptions describes the database and site a fresh install should use.
type InitOptions struct {
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabasePath     string
	DatabaseSSLMode  string
	SiteName         string
	Port             int
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// BuildDSN builds a database DSN from the init options.
func BuildDSN(opts InitOptions) (string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.DatabaseType)) {
	case "postgres":
		sslMode := opts.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			opts.DatabaseUser,
			opts.DatabasePassword,
			opts.DatabaseHost,
			opts.DatabasePort,
			opts.DatabaseName,
			sslMode,
		), nil
	case "", "sqlite":
		return buildSQLiteDSN(opts.DatabasePath), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}

// CheckDatabaseConnection validates that the DSN can connect and ping.
func CheckDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// validateInitOptions normalizes and validates init input data.
func validateInitOptions(opts *InitOptions) error {
	dbType := strings.ToLower(strings.TrimSpace(opts.DatabaseType))
	if dbType == "" {
		dbType = "sqlite"
	}
	opts.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(opts.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if opts.DatabasePort <= 0 {
			opts.DatabasePort = 5432
		}
		if strings.TrimSpace(opts.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(opts.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(opts.DatabasePath) == "" {
			opts.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type %q", dbType)
	}
	opts.SiteName = strings.TrimSpace(opts.SiteName)
	if opts.SiteName == "" {
		opts.SiteName = internalsettings.DefaultSiteName
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string       `yaml:"host"`
	Port        int          `yaml:"port"`
	CORSOrigins []string     `yaml:"cors-origins"`
	DatabaseDSN string       `yaml:"database-dsn"`
	JWT         jwtCfg       `yaml:"jwt"`
	Guard       guardCfg     `yaml:"guard"`
	Assistant   assistantCfg `yaml:"assistant"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// guardCfg holds admission control defaults for the generated config file.
type guardCfg struct {
	GuestDailyLimit int    `yaml:"guest-daily-limit"`
	UserDailyLimit  int    `yaml:"user-daily-limit"`
	OnStoreError    string `yaml:"on-store-error"`
	Timezone        string `yaml:"timezone"`
}

// assistantCfg holds the upstream model for the generated config file.
type assistantCfg struct {
	Model string `yaml:"model"`
	Title string `yaml:"title"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, opts InitOptions) error {
	cfg := configFile{
		Port:        opts.Port,
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: "720h",
		},
		Guard: guardCfg{
			GuestDailyLimit: internalsettings.DefaultGuardGuestDailyLimit,
			UserDailyLimit:  internalsettings.DefaultGuardUserDailyLimit,
			OnStoreError:    internalsettings.DefaultGuardOnStoreError,
			Timezone:        "UTC",
		},
		Assistant: assistantCfg{
			Model: "openai/gpt-4o-mini",
			Title: opts.SiteName,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// ErrConfigExists is returned by Bootstrap when the config file is already present.
var ErrConfigExists = errors.New("config file already exists")

// Bootstrap writes a starter config file, migrates the database, and seeds the site name.
func Bootstrap(ctx context.Context, configPath string, opts InitOptions) error {
	if ConfigExists(configPath) {
		return ErrConfigExists
	}
	if errValidate := validateInitOptions(&opts); errValidate != nil {
		return errValidate
	}
	dsn, err := BuildDSN(opts)
	if err != nil {
		return err
	}
	if errCheck := CheckDatabaseConnection(dsn); errCheck != nil {
		return errCheck
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		defer func() {
			if errClose := sqlDB.Close(); errClose != nil {
				log.Errorf("sql db close error: %v", errClose)
			}
		}()
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	if errSite := upsertSiteNameSetting(conn.WithContext(ctx), opts.SiteName); errSite != nil {
		return errSite
	}
	if errWrite := WriteConfigFile(configPath, dsn, opts); errWrite != nil {
		return errWrite
	}
	log.Infof("wrote %s (%s)", configPath, DescribeDSN(dsn))
	return nil
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	normalized := strings.TrimSpace(siteName)
	if normalized == "" {
		normalized = internalsettings.DefaultSiteName
	}
	payload, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}
	value := datatypes.JSON(payload)

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      value,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     value,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}

// loadServerSection reads the listener fields of the config file. A missing file yields zero values.
func loadServerSection(configPath string) (configFile, error) {
	var cfg configFile
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}
