package guard

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestGuestStoreManagerUsesMemoryWhenRedisDisabled(t *testing.T) {
	factoryCalls := 0
	manager := NewGuestStoreManager(StaticSettings(DefaultSettingsConfig()), nil, func(options *redis.Options) *redis.Client {
		factoryCalls++
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()

	record, ok, err := manager.ConsumeGuest(context.Background(), "s1", "2025-03-10", 2)
	if err != nil || !ok || record.Count != 1 {
		t.Fatalf("unexpected consume result record=%+v ok=%v err=%v", record, ok, err)
	}
	if factoryCalls != 0 {
		t.Fatalf("expected no redis client, got %d", factoryCalls)
	}
}

func TestGuestStoreManagerFallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.RedisEnabled = true
	cfg.RedisAddr = "127.0.0.1:1"
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	manager := NewGuestStoreManager(StaticSettings(cfg), func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		record, ok, err := manager.ConsumeGuest(ctx, "s1", "2025-03-10", 2)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if i <= 2 && (!ok || record.Count != i) {
			t.Fatalf("consume %d: expected admitted with count %d, got %+v ok=%v", i, i, record, ok)
		}
		if i == 3 && ok {
			t.Fatalf("expected memory fallback to enforce the limit")
		}
	}
	if !manager.isBreakerActive() {
		t.Fatalf("expected breaker to be open after redis failure")
	}
}

func TestGuardWithGuestStoreManager(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.GuestDailyLimit = 1
	clock := newFakeClock(testStart)
	manager := NewGuestStoreManager(StaticSettings(cfg), clock.Now, nil)
	defer func() { _ = manager.Close() }()
	g := New(StaticSettings(cfg), clock, manager, nil)

	if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); !decision.Admitted {
		t.Fatalf("expected admitted, got %+v", decision)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); decision.Reason != ReasonGuestQuotaExceeded {
		t.Fatalf("expected guest quota rejection, got %+v", decision)
	}
}
