package guard

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/film4u/film4u-ai/internal/settings"
)

// SettingsConfig captures the admission control tunables.
type SettingsConfig struct {
	BurstWindow     time.Duration
	MaxBurst        int
	GuestDailyLimit int
	UserDailyLimit  int
	OnStoreError    StoreErrorPolicy
	StoreTimeout    time.Duration
	// Location defines calendar days for the daily quotas.
	Location *time.Location

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// DefaultSettingsConfig returns the built-in tunables.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		BurstWindow:     time.Duration(internalsettings.DefaultGuardBurstWindowMillis) * time.Millisecond,
		MaxBurst:        internalsettings.DefaultGuardMaxBurst,
		GuestDailyLimit: internalsettings.DefaultGuardGuestDailyLimit,
		UserDailyLimit:  internalsettings.DefaultGuardUserDailyLimit,
		OnStoreError:    StoreErrorPolicy(internalsettings.DefaultGuardOnStoreError),
		StoreTimeout:    time.Duration(internalsettings.DefaultGuardStoreTimeoutMillis) * time.Millisecond,
		Location:        time.UTC,
		RedisPrefix:     internalsettings.DefaultGuardRedisPrefix,
	}
}

// LoadSettingsConfig loads the defaults overlaid with the DB settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	return ApplyDBOverrides(DefaultSettingsConfig())
}

// NewSettingsProvider returns a provider that overlays the DB snapshot on base at every call.
func NewSettingsProvider(base SettingsConfig) SettingsProvider {
	return func() SettingsConfig {
		return ApplyDBOverrides(base)
	}
}

// StaticSettings returns a provider that always yields cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	cfg = cfg.normalize()
	return func() SettingsConfig {
		return cfg
	}
}

// ApplyDBOverrides overlays values from the DB settings snapshot on cfg.
func ApplyDBOverrides(cfg SettingsConfig) SettingsConfig {
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardBurstWindowMillisKey); ok {
		if millis, okParse := parseNonNegativeInt(raw); okParse {
			cfg.BurstWindow = time.Duration(millis) * time.Millisecond
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardMaxBurstKey); ok {
		if maxBurst, okParse := parseNonNegativeInt(raw); okParse {
			cfg.MaxBurst = maxBurst
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardGuestDailyLimitKey); ok {
		if limit, okParse := parseNonNegativeInt(raw); okParse {
			cfg.GuestDailyLimit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardUserDailyLimitKey); ok {
		if limit, okParse := parseNonNegativeInt(raw); okParse {
			cfg.UserDailyLimit = limit
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardOnStoreErrorKey); ok {
		if value, okParse := parseString(raw); okParse {
			if policy, okPolicy := ParseStoreErrorPolicy(value); okPolicy {
				cfg.OnStoreError = policy
			}
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardStoreTimeoutMillisKey); ok {
		if millis, okParse := parseNonNegativeInt(raw); okParse {
			cfg.StoreTimeout = time.Duration(millis) * time.Millisecond
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardRedisEnabledKey); ok {
		if enabled, okParse := parseBool(raw); okParse {
			cfg.RedisEnabled = enabled
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardRedisAddrKey); ok {
		if addr, okParse := parseString(raw); okParse {
			cfg.RedisAddr = addr
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardRedisPasswordKey); ok {
		if password, okParse := parseString(raw); okParse {
			cfg.RedisPassword = password
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardRedisDBKey); ok {
		if db, okParse := parseNonNegativeInt(raw); okParse {
			cfg.RedisDB = db
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.GuardRedisPrefixKey); ok {
		if prefix, okParse := parseString(raw); okParse {
			cfg.RedisPrefix = prefix
		}
	}
	return cfg.normalize()
}

func (cfg SettingsConfig) normalize() SettingsConfig {
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultGuardRedisPrefix
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.BurstWindow < 0 {
		cfg.BurstWindow = 0
	}
	if cfg.MaxBurst < 1 {
		cfg.MaxBurst = 1
	}
	if cfg.GuestDailyLimit < 0 {
		cfg.GuestDailyLimit = 0
	}
	if cfg.UserDailyLimit < 0 {
		cfg.UserDailyLimit = 0
	}
	if cfg.StoreTimeout < 0 {
		cfg.StoreTimeout = 0
	}
	if _, ok := ParseStoreErrorPolicy(string(cfg.OnStoreError)); !ok {
		cfg.OnStoreError = StoreErrorAdmit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return cfg
}

func parseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return false, false
		}
		if parsedFloat == 1 {
			return true, true
		}
		if parsedFloat == 0 {
			return false, true
		}
	}
	return false, false
}

func parseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
