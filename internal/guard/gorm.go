package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/film4u/film4u-ai/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUserStore reads and writes user quota rows through GORM.
type GormUserStore struct {
	db *gorm.DB
	// forUpdate makes reads take a row lock; set on transaction-bound copies.
	forUpdate bool
}

// NewGormUserStore constructs a GormUserStore.
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

// ReadUser loads the quota row for id.
func (s *GormUserStore) ReadUser(ctx context.Context, id string) (UserRecord, bool, error) {
	if s == nil || s.db == nil {
		return UserRecord{}, false, fmt.Errorf("gorm user store: not initialized")
	}
	query := s.db.WithContext(ctx)
	// SQLite has no row locks; its single writer connection serializes the transaction.
	if s.forUpdate && s.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.UserQuota
	if errFind := query.Where("id = ?", id).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("gorm user store: read: %w", errFind)
	}
	return UserRecord{
		DailyRequests:   row.DailyAIRequests,
		TotalRequests:   row.TotalRequests,
		LastRequestDate: strings.TrimSpace(row.LastRequestDate),
		IsBlocked:       row.IsBlocked,
	}, true, nil
}

// WriteUser updates the counters of the quota row for id. The blocked flag is owned by moderation and left alone.
func (s *GormUserStore) WriteUser(ctx context.Context, id string, record UserRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm user store: not initialized")
	}
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"daily_ai_requests": record.DailyRequests,
			"total_requests":    record.TotalRequests,
			"last_request_date": record.LastRequestDate,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("gorm user store: write: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LockUser runs fn inside a transaction whose reads lock the row for id.
func (s *GormUserStore) LockUser(ctx context.Context, id string, fn func(ctx context.Context, store UserStore) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm user store: not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormUserStore{db: tx, forUpdate: true})
	})
}

// GormGuestStore keeps guest counters in the guest_quotas table.
type GormGuestStore struct {
	db *gorm.DB
}

// NewGormGuestStore constructs a GormGuestStore.
func NewGormGuestStore(db *gorm.DB) *GormGuestStore {
	return &GormGuestStore{db: db}
}

// ReadGuest loads the record for scope.
func (s *GormGuestStore) ReadGuest(ctx context.Context, scope string) (GuestRecord, bool, error) {
	if s == nil || s.db == nil {
		return GuestRecord{}, false, fmt.Errorf("gorm guest store: not initialized")
	}
	var row models.GuestQuota
	if errFind := s.db.WithContext(ctx).Where("scope = ?", scope).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return GuestRecord{}, false, nil
		}
		return GuestRecord{}, false, fmt.Errorf("gorm guest store: read: %w", errFind)
	}
	return GuestRecord{Date: row.Date, Count: row.Count}, true, nil
}

// WriteGuest upserts the record for scope.
func (s *GormGuestStore) WriteGuest(ctx context.Context, scope string, record GuestRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm guest store: not initialized")
	}
	row := models.GuestQuota{
		Scope:     scope,
		Date:      record.Date,
		Count:     record.Count,
		UpdatedAt: time.Now().UTC(),
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{"date", "count", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("gorm guest store: upsert: %w", errUpsert)
	}
	return nil
}

// PruneGuests deletes guest rows not updated since before.
func (s *GormGuestStore) PruneGuests(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm guest store: not initialized")
	}
	res := s.db.WithContext(ctx).Where("updated_at < ?", before.UTC()).Delete(&models.GuestQuota{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm guest store: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}
