package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/models"
	internalsettings "github.com/film4u/film4u-ai/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingKind string

const (
	kindPositiveInt    settingKind = "positive_int"
	kindNonNegativeInt settingKind = "non_negative_int"
	kindBool           settingKind = "bool"
	kindString         settingKind = "string"
	kindRequiredString settingKind = "required_string"
	kindStorePolicy    settingKind = "store_error_policy"
)

// settingSpec describes one runtime tunable the admin may override.
type settingSpec struct {
	Key         string
	Kind        settingKind
	Description string
}

// settingSpecs lists every key read from the settings table, in display order.
var settingSpecs = []settingSpec{
	{internalsettings.SiteNameKey, kindRequiredString, "Assistant display name sent as X-Title."},
	{internalsettings.GuardBurstWindowMillisKey, kindNonNegativeInt, "Burst window in milliseconds."},
	{internalsettings.GuardMaxBurstKey, kindPositiveInt, "Requests allowed inside one burst window."},
	{internalsettings.GuardGuestDailyLimitKey, kindNonNegativeInt, "Daily guest requests; 0 is unlimited."},
	{internalsettings.GuardUserDailyLimitKey, kindNonNegativeInt, "Daily signed-in requests; 0 is unlimited."},
	{internalsettings.GuardOnStoreErrorKey, kindStorePolicy, "admit or reject when the user quota store fails."},
	{internalsettings.GuardStoreTimeoutMillisKey, kindNonNegativeInt, "User quota store timeout in milliseconds."},
	{internalsettings.GuardRedisEnabledKey, kindBool, "Serve guest counters from Redis."},
	{internalsettings.GuardRedisAddrKey, kindString, "Redis host:port for guest counters."},
	{internalsettings.GuardRedisPasswordKey, kindString, "Redis password."},
	{internalsettings.GuardRedisDBKey, kindNonNegativeInt, "Redis database index."},
	{internalsettings.GuardRedisPrefixKey, kindString, "Redis key prefix."},
}

var settingSpecByKey = func() map[string]settingSpec {
	out := make(map[string]settingSpec, len(settingSpecs))
	for _, spec := range settingSpecs {
		out[spec.Key] = spec
	}
	return out
}()

var (
	errUnknownSetting       = errors.New("unknown setting key")
	errSettingValueRequired = errors.New("value is required")
)

// SettingHandler edits the DB overrides of the guard and site tunables.
type SettingHandler struct {
	db *gorm.DB
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// setSettingRequest captures the payload for overriding a setting.
type setSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// List returns every known key with its stored override, if any.
func (h *SettingHandler) List(c *gin.Context) {
	keys := make([]string, 0, len(settingSpecs))
	for _, spec := range settingSpecs {
		keys = append(keys, spec.Key)
	}
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Where("key IN ?", keys).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	stored := make(map[string]*models.Setting, len(rows))
	for i := range rows {
		stored[rows[i].Key] = &rows[i]
	}
	out := make([]gin.H, 0, len(settingSpecs))
	for _, spec := range settingSpecs {
		out = append(out, formatSetting(spec, stored[spec.Key]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns one known key.
func (h *SettingHandler) Get(c *gin.Context) {
	spec, ok := lookupSettingSpec(c)
	if !ok {
		return
	}
	row, errLoad := h.load(c.Request.Context(), spec.Key)
	if errLoad != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(spec, row))
}

// Set validates and stores an override, then refreshes the snapshot.
func (h *SettingHandler) Set(c *gin.Context) {
	spec, ok := lookupSettingSpec(c)
	if !ok {
		return
	}
	var body setSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	value, errValidate := canonicalSettingValue(spec, body.Value)
	if errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	now := time.Now().UTC()
	row := models.Setting{Key: spec.Key, Value: value, CreatedAt: now, UpdatedAt: now}
	errUpsert := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
		return
	}
	if errRefresh := internalsettings.RefreshDBConfig(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(spec, &row))
}

// Delete drops an override so the config file value applies again.
func (h *SettingHandler) Delete(c *gin.Context) {
	spec, ok := lookupSettingSpec(c)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("key = ?", spec.Key).Delete(&models.Setting{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not overridden"})
		return
	}
	if errRefresh := internalsettings.RefreshDBConfig(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SettingHandler) load(ctx context.Context, key string) (*models.Setting, error) {
	var row models.Setting
	errFind := h.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	return &row, nil
}

func lookupSettingSpec(c *gin.Context) (settingSpec, bool) {
	key := strings.ToUpper(strings.TrimSpace(c.Param("key")))
	spec, ok := settingSpecByKey[key]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnknownSetting.Error(), "key": key})
		return settingSpec{}, false
	}
	return spec, true
}

// canonicalSettingValue checks raw against the key's kind and returns the value to store.
// Integers may arrive as numeric strings and are stored as numbers; strings must be JSON strings.
func canonicalSettingValue(spec settingSpec, raw json.RawMessage) (datatypes.JSON, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errSettingValueRequired
	}
	switch spec.Kind {
	case kindPositiveInt, kindNonNegativeInt:
		n, ok := parseSettingInt(raw)
		if !ok || n < 0 {
			return nil, errors.New("value must be a non-negative integer")
		}
		if spec.Kind == kindPositiveInt && n == 0 {
			return nil, errors.New("value must be a positive integer")
		}
		return datatypes.JSON(strconv.Itoa(n)), nil
	case kindBool:
		var b bool
		if errUnmarshal := json.Unmarshal(raw, &b); errUnmarshal != nil {
			return nil, errors.New("value must be a boolean")
		}
		return datatypes.JSON(strconv.FormatBool(b)), nil
	case kindStorePolicy:
		var s string
		if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal != nil {
			return nil, errors.New(`value must be "admit" or "reject"`)
		}
		policy, ok := guard.ParseStoreErrorPolicy(s)
		if !ok {
			return nil, errors.New(`value must be "admit" or "reject"`)
		}
		return marshalSettingString(string(policy))
	case kindString, kindRequiredString:
		var s string
		if errUnmarshal := json.Unmarshal(raw, &s); errUnmarshal != nil {
			return nil, errors.New("value must be a string")
		}
		s = strings.TrimSpace(s)
		if spec.Kind == kindRequiredString && s == "" {
			return nil, errors.New("value must be a non-empty string")
		}
		return marshalSettingString(s)
	default:
		return nil, fmt.Errorf("unsupported setting kind %q", spec.Kind)
	}
}

func marshalSettingString(s string) (datatypes.JSON, error) {
	payload, errMarshal := json.Marshal(s)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(payload), nil
}

func parseSettingInt(raw json.RawMessage) (int, bool) {
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		n, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		return n, errParse == nil
	}
	var parsedFloat float64
	if errUnmarshal := json.Unmarshal(raw, &parsedFloat); errUnmarshal != nil {
		return 0, false
	}
	if parsedFloat != math.Trunc(parsedFloat) || math.Abs(parsedFloat) > math.MaxInt32 {
		return 0, false
	}
	return int(parsedFloat), true
}

func formatSetting(spec settingSpec, row *models.Setting) gin.H {
	out := gin.H{
		"key":         spec.Key,
		"kind":        spec.Kind,
		"description": spec.Description,
		"overridden":  row != nil,
		"value":       nil,
	}
	if row != nil {
		out["value"] = json.RawMessage(row.Value)
		out["updated_at"] = row.UpdatedAt
	}
	return out
}
