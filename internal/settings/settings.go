package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/film4u/film4u-ai/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var (
	snapshotMu sync.RWMutex
	snapshot   dbConfigSnapshot
)

// DBConfigValue returns the raw JSON value stored for key in the last snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	raw, ok := snapshot.values[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// DBConfigUpdatedAt reports the newest settings row timestamp in the snapshot.
func DBConfigUpdatedAt() time.Time {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	return snapshot.updatedAt
}

// StoreDBConfig replaces the in-memory settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = append(json.RawMessage(nil), value...)
	}
	snapshotMu.Lock()
	snapshot = dbConfigSnapshot{updatedAt: updatedAt, values: copied}
	snapshotMu.Unlock()
}

// RefreshDBConfig rebuilds the in-memory settings snapshot from the DB.
func RefreshDBConfig(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

// StartRefresher reloads the snapshot every interval until ctx is done.
func StartRefresher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if errRefresh := RefreshDBConfig(ctx, db); errRefresh != nil {
					log.WithError(errRefresh).Warn("settings: refresh failed")
				}
			}
		}
	}()
}
