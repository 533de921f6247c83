package guard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/film4u/film4u-ai/internal/db"
	"github.com/film4u/film4u-ai/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "guard-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestGormUserStoreReadWrite(t *testing.T) {
	conn := openTestDB(t)
	store := NewGormUserStore(conn)
	ctx := context.Background()

	if _, found, err := store.ReadUser(ctx, "u1"); err != nil || found {
		t.Fatalf("expected missing row, got found=%v err=%v", found, err)
	}
	if err := store.WriteUser(ctx, "u1", UserRecord{DailyRequests: 1}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	now := time.Now().UTC()
	if errCreate := conn.Create(&models.UserQuota{ID: "u1", IsBlocked: true, CreatedAt: now, UpdatedAt: now}).Error; errCreate != nil {
		t.Fatalf("create quota: %v", errCreate)
	}
	if err := store.WriteUser(ctx, "u1", UserRecord{DailyRequests: 4, TotalRequests: 9, LastRequestDate: "2025-03-10"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	record, found, err := store.ReadUser(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("read: found=%v err=%v", found, err)
	}
	if record.DailyRequests != 4 || record.TotalRequests != 9 || record.LastRequestDate != "2025-03-10" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.IsBlocked {
		t.Fatalf("expected write to leave the blocked flag alone")
	}
}

func TestGuardWithGormUserStore(t *testing.T) {
	conn := openTestDB(t)
	now := time.Now().UTC()
	if errCreate := conn.Create(&models.UserQuota{
		ID:              "u1",
		DailyAIRequests: 29,
		TotalRequests:   29,
		LastRequestDate: "2025-03-10",
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error; errCreate != nil {
		t.Fatalf("create quota: %v", errCreate)
	}

	clock := newFakeClock(testStart)
	g := newTestGuard(clock, nil, NewGormUserStore(conn))
	if decision := mustCheck(t, g, Caller{UserID: "u1"}); !decision.Admitted {
		t.Fatalf("expected admitted, got %+v", decision)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, Caller{UserID: "u1"}); decision.Reason != ReasonUserQuotaExceeded {
		t.Fatalf("expected user quota rejection, got %+v", decision)
	}

	var row models.UserQuota
	if errFind := conn.Where("id = ?", "u1").Take(&row).Error; errFind != nil {
		t.Fatalf("find quota: %v", errFind)
	}
	if row.DailyAIRequests != 30 || row.TotalRequests != 30 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestGormGuestStoreUpsertAndPrune(t *testing.T) {
	conn := openTestDB(t)
	store := NewGormGuestStore(conn)
	ctx := context.Background()

	if err := store.WriteGuest(ctx, "s1", GuestRecord{Date: "2025-03-10", Count: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.WriteGuest(ctx, "s1", GuestRecord{Date: "2025-03-10", Count: 2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record, found, err := store.ReadGuest(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("read: found=%v err=%v", found, err)
	}
	if record.Count != 2 {
		t.Fatalf("expected count 2, got %d", record.Count)
	}

	var count int64
	if errCount := conn.Model(&models.GuestQuota{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one row after upsert, got %d", count)
	}

	pruned, err := store.PruneGuests(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one pruned row, got %d", pruned)
	}
}
