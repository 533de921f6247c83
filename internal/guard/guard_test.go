package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingUserStore struct {
	readErr  error
	writeErr error
	record   UserRecord
	found    bool
}

func (s *failingUserStore) ReadUser(context.Context, string) (UserRecord, bool, error) {
	if s.readErr != nil {
		return UserRecord{}, false, s.readErr
	}
	return s.record, s.found, nil
}

func (s *failingUserStore) WriteUser(context.Context, string, UserRecord) error {
	return s.writeErr
}

type failingGuestStore struct {
	err error
}

func (s *failingGuestStore) ReadGuest(context.Context, string) (GuestRecord, bool, error) {
	return GuestRecord{}, false, s.err
}

func (s *failingGuestStore) WriteGuest(context.Context, string, GuestRecord) error {
	return s.err
}

// plainGuestStore hides ConsumeGuest so the read-modify-write path runs.
type plainGuestStore struct {
	inner *MemoryGuestStore
}

func (s plainGuestStore) ReadGuest(ctx context.Context, scope string) (GuestRecord, bool, error) {
	return s.inner.ReadGuest(ctx, scope)
}

func (s plainGuestStore) WriteGuest(ctx context.Context, scope string, record GuestRecord) error {
	return s.inner.WriteGuest(ctx, scope, record)
}

var testStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestGuard(clock Clock, guests GuestStore, users UserStore) *Guard {
	return New(StaticSettings(DefaultSettingsConfig()), clock, guests, users)
}

func mustCheck(t *testing.T, g *Guard, caller Caller) Decision {
	t.Helper()
	decision, err := g.Check(context.Background(), caller)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return decision
}

func TestBurstRejectsThirdRequestWithinWindow(t *testing.T) {
	clock := newFakeClock(testStart)
	g := newTestGuard(clock, nil, nil)
	guest := Caller{GuestScope: "s1"}

	for i := 0; i < 2; i++ {
		if decision := mustCheck(t, g, guest); !decision.Admitted {
			t.Fatalf("request %d: expected admitted, got %+v", i+1, decision)
		}
		clock.Advance(100 * time.Millisecond)
	}
	decision := mustCheck(t, g, guest)
	if decision.Admitted || decision.Reason != ReasonBurstExceeded {
		t.Fatalf("expected burst rejection, got %+v", decision)
	}
	if decision.Message != "Whoa! Slow down. The AI needs a second to think." {
		t.Fatalf("unexpected message %q", decision.Message)
	}
}

func TestBurstResetsAfterWindow(t *testing.T) {
	clock := newFakeClock(testStart)
	g := newTestGuard(clock, nil, nil)
	guest := Caller{GuestScope: "s1"}

	mustCheck(t, g, guest)
	clock.Advance(100 * time.Millisecond)
	mustCheck(t, g, guest)
	clock.Advance(800 * time.Millisecond)
	if decision := mustCheck(t, g, guest); !decision.Admitted {
		t.Fatalf("expected admitted after window, got %+v", decision)
	}
	clock.Advance(100 * time.Millisecond)
	if decision := mustCheck(t, g, guest); !decision.Admitted {
		t.Fatalf("expected second request of new burst admitted, got %+v", decision)
	}
}

func TestBurstRejectionStillMovesTimestamp(t *testing.T) {
	clock := newFakeClock(testStart)
	g := newTestGuard(clock, nil, nil)
	guest := Caller{GuestScope: "s1"}

	mustCheck(t, g, guest)
	for i := 0; i < 5; i++ {
		clock.Advance(500 * time.Millisecond)
		decision := mustCheck(t, g, guest)
		if i == 0 {
			if !decision.Admitted {
				t.Fatalf("expected second request admitted, got %+v", decision)
			}
			continue
		}
		if decision.Reason != ReasonBurstExceeded {
			t.Fatalf("request %d: expected burst rejection while requests keep arriving every 500ms, got %+v", i+2, decision)
		}
	}
	clock.Advance(800 * time.Millisecond)
	if decision := mustCheck(t, g, guest); !decision.Admitted {
		t.Fatalf("expected admitted after a full quiet window, got %+v", decision)
	}
}

func TestBurstIsSharedAcrossCallersOfOneGuard(t *testing.T) {
	clock := newFakeClock(testStart)
	g := newTestGuard(clock, nil, nil)

	mustCheck(t, g, Caller{GuestScope: "a"})
	mustCheck(t, g, Caller{GuestScope: "b"})
	if decision := mustCheck(t, g, Caller{GuestScope: "c"}); decision.Reason != ReasonBurstExceeded {
		t.Fatalf("expected burst rejection, got %+v", decision)
	}

	other := newTestGuard(clock, nil, nil)
	if decision := mustCheck(t, other, Caller{GuestScope: "c"}); !decision.Admitted {
		t.Fatalf("expected separate guard to keep its own burst state, got %+v", decision)
	}
}

func TestGuestQuotaExhaustsAtLimit(t *testing.T) {
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	g := newTestGuard(clock, guests, nil)
	guest := Caller{GuestScope: "s1"}

	for i := 1; i <= 50; i++ {
		decision := mustCheck(t, g, guest)
		if !decision.Admitted {
			t.Fatalf("request %d: expected admitted, got %+v", i, decision)
		}
		if decision.Remaining != 50-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 50-i, decision.Remaining)
		}
		clock.Advance(time.Second)
	}
	decision := mustCheck(t, g, guest)
	if decision.Admitted || decision.Reason != ReasonGuestQuotaExceeded {
		t.Fatalf("expected guest quota rejection, got %+v", decision)
	}
	if decision.Message != "Guest quota exceeded (50/day). Sign in for 30 daily AI requests." {
		t.Fatalf("unexpected message %q", decision.Message)
	}
	record, _, _ := guests.ReadGuest(context.Background(), "s1")
	if record.Count != 50 || record.Date != "2025-03-10" {
		t.Fatalf("expected record unchanged at 50, got %+v", record)
	}
}

func TestGuestQuotaReadModifyWritePath(t *testing.T) {
	clock := newFakeClock(testStart)
	inner := NewMemoryGuestStore()
	_ = inner.WriteGuest(context.Background(), "s1", GuestRecord{Date: "2025-03-10", Count: 49})
	g := newTestGuard(clock, plainGuestStore{inner: inner}, nil)
	guest := Caller{GuestScope: "s1"}

	if decision := mustCheck(t, g, guest); !decision.Admitted {
		t.Fatalf("expected 50th request admitted, got %+v", decision)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, guest); decision.Reason != ReasonGuestQuotaExceeded {
		t.Fatalf("expected guest quota rejection, got %+v", decision)
	}
	record, _, _ := inner.ReadGuest(context.Background(), "s1")
	if record.Count != 50 {
		t.Fatalf("expected count 50, got %d", record.Count)
	}
}

func TestGuestQuotaResetsOnNewDate(t *testing.T) {
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	_ = guests.WriteGuest(context.Background(), "s1", GuestRecord{Date: "2025-03-09", Count: 50})
	g := newTestGuard(clock, guests, nil)

	if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); !decision.Admitted {
		t.Fatalf("expected admitted on new date, got %+v", decision)
	}
	record, _, _ := guests.ReadGuest(context.Background(), "s1")
	if record.Date != "2025-03-10" || record.Count != 1 {
		t.Fatalf("expected fresh record, got %+v", record)
	}
}

func TestGuestScopesAreIndependent(t *testing.T) {
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	_ = guests.WriteGuest(context.Background(), "s1", GuestRecord{Date: "2025-03-10", Count: 50})
	g := newTestGuard(clock, guests, nil)

	if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); decision.Admitted {
		t.Fatalf("expected s1 rejected, got %+v", decision)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, Caller{GuestScope: "s2"}); !decision.Admitted {
		t.Fatalf("expected s2 admitted, got %+v", decision)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, Caller{}); !decision.Admitted {
		t.Fatalf("expected default scope admitted, got %+v", decision)
	}
	if _, found, _ := guests.ReadGuest(context.Background(), DefaultGuestScope); !found {
		t.Fatalf("expected empty scope to fall back to %q", DefaultGuestScope)
	}
}

func TestGuestStoreErrorPropagates(t *testing.T) {
	clock := newFakeClock(testStart)
	errBoom := errors.New("boom")
	g := newTestGuard(clock, &failingGuestStore{err: errBoom}, nil)

	if _, err := g.Check(context.Background(), Caller{GuestScope: "s1"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected guest store error, got %v", err)
	}
}

func TestUserQuotaExhaustsAtLimit(t *testing.T) {
	clock := newFakeClock(testStart)
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{DailyRequests: 29, TotalRequests: 100, LastRequestDate: "2025-03-10"})
	g := newTestGuard(clock, nil, users)
	user := Caller{UserID: "u1"}

	decision := mustCheck(t, g, user)
	if !decision.Admitted || decision.Remaining != 0 {
		t.Fatalf("expected 30th request admitted with 0 left, got %+v", decision)
	}
	clock.Advance(time.Second)
	decision = mustCheck(t, g, user)
	if decision.Admitted || decision.Reason != ReasonUserQuotaExceeded {
		t.Fatalf("expected user quota rejection, got %+v", decision)
	}
	if decision.Message != "Daily limit reached (30/30). Try again tomorrow!" {
		t.Fatalf("unexpected message %q", decision.Message)
	}
	record, _, _ := users.ReadUser(context.Background(), "u1")
	if record.DailyRequests != 30 || record.TotalRequests != 101 {
		t.Fatalf("expected daily=30 total=101, got %+v", record)
	}
}

func TestUserQuotaResetsOnNewDate(t *testing.T) {
	clock := newFakeClock(testStart)
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{DailyRequests: 30, TotalRequests: 200, LastRequestDate: "2025-03-09"})
	g := newTestGuard(clock, nil, users)

	if decision := mustCheck(t, g, Caller{UserID: "u1"}); !decision.Admitted {
		t.Fatalf("expected admitted on new date, got %+v", decision)
	}
	record, _, _ := users.ReadUser(context.Background(), "u1")
	if record.DailyRequests != 1 || record.TotalRequests != 201 || record.LastRequestDate != "2025-03-10" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestBlockedUserRejectedWithoutCounting(t *testing.T) {
	clock := newFakeClock(testStart)
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{DailyRequests: 3, TotalRequests: 3, LastRequestDate: "2025-03-10", IsBlocked: true})
	g := newTestGuard(clock, nil, users)

	decision := mustCheck(t, g, Caller{UserID: "u1"})
	if decision.Admitted || decision.Reason != ReasonAccountBlocked {
		t.Fatalf("expected blocked rejection, got %+v", decision)
	}
	if decision.Reason.Retryable() {
		t.Fatalf("expected blocked rejection to be final")
	}
	if decision.Message != "Your account has been flagged for unusual activity. Contact support." {
		t.Fatalf("unexpected message %q", decision.Message)
	}
	record, _, _ := users.ReadUser(context.Background(), "u1")
	if record.DailyRequests != 3 || record.TotalRequests != 3 {
		t.Fatalf("expected counters untouched, got %+v", record)
	}
}

func TestUserWithoutRecordIsAdmitted(t *testing.T) {
	clock := newFakeClock(testStart)
	users := NewMemoryUserStore()
	g := newTestGuard(clock, nil, users)

	for i := 0; i < 40; i++ {
		if decision := mustCheck(t, g, Caller{UserID: "ghost"}); !decision.Admitted {
			t.Fatalf("request %d: expected admitted, got %+v", i+1, decision)
		}
		clock.Advance(time.Second)
	}
	if _, found, _ := users.ReadUser(context.Background(), "ghost"); found {
		t.Fatalf("expected no record to be created")
	}
}

func TestUserStoreFailureFollowsPolicy(t *testing.T) {
	errBoom := errors.New("boom")
	cases := []struct {
		name   string
		store  *failingUserStore
		policy StoreErrorPolicy
		admit  bool
	}{
		{name: "read admit", store: &failingUserStore{readErr: errBoom}, policy: StoreErrorAdmit, admit: true},
		{name: "write admit", store: &failingUserStore{writeErr: errBoom, found: true}, policy: StoreErrorAdmit, admit: true},
		{name: "read reject", store: &failingUserStore{readErr: errBoom}, policy: StoreErrorReject, admit: false},
		{name: "write reject", store: &failingUserStore{writeErr: errBoom, found: true}, policy: StoreErrorReject, admit: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSettingsConfig()
			cfg.OnStoreError = tc.policy
			g := New(StaticSettings(cfg), newFakeClock(testStart), nil, tc.store)
			decision, err := g.Check(context.Background(), Caller{UserID: "u1"})
			if err != nil {
				t.Fatalf("expected store failure to be swallowed, got %v", err)
			}
			if decision.Admitted != tc.admit {
				t.Fatalf("expected admitted=%v, got %+v", tc.admit, decision)
			}
			if !tc.admit && decision.Reason != ReasonStoreUnavailable {
				t.Fatalf("expected store unavailable reason, got %v", decision.Reason)
			}
		})
	}
}

type slowUserStore struct{}

func (slowUserStore) ReadUser(ctx context.Context, _ string) (UserRecord, bool, error) {
	<-ctx.Done()
	return UserRecord{}, false, ctx.Err()
}

func (slowUserStore) WriteUser(context.Context, string, UserRecord) error {
	return nil
}

func TestUserStoreTimeoutCountsAsFailure(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	cfg.OnStoreError = StoreErrorReject
	g := New(StaticSettings(cfg), newFakeClock(testStart), nil, slowUserStore{})

	decision := mustCheck(t, g, Caller{UserID: "u1"})
	if decision.Reason != ReasonStoreUnavailable {
		t.Fatalf("expected store unavailable after timeout, got %+v", decision)
	}
}

func TestUserIDTakesPrecedenceOverGuestScope(t *testing.T) {
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{})
	g := newTestGuard(clock, guests, users)

	mustCheck(t, g, Caller{UserID: "u1", GuestScope: "s1"})
	if _, found, _ := guests.ReadGuest(context.Background(), "s1"); found {
		t.Fatalf("expected guest store untouched for identified caller")
	}
	record, _, _ := users.ReadUser(context.Background(), "u1")
	if record.DailyRequests != 1 || record.TotalRequests != 1 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestConfiguredLimitsAppearInMessages(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.GuestDailyLimit = 5
	cfg.UserDailyLimit = 10
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	_ = guests.WriteGuest(context.Background(), "s1", GuestRecord{Date: "2025-03-10", Count: 5})
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{DailyRequests: 10, LastRequestDate: "2025-03-10"})
	g := New(StaticSettings(cfg), clock, guests, users)

	if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); decision.Message != "Guest quota exceeded (5/day). Sign in for 10 daily AI requests." {
		t.Fatalf("unexpected guest message %q", decision.Message)
	}
	clock.Advance(time.Second)
	if decision := mustCheck(t, g, Caller{UserID: "u1"}); decision.Message != "Daily limit reached (10/10). Try again tomorrow!" {
		t.Fatalf("unexpected user message %q", decision.Message)
	}
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.GuestDailyLimit = 0
	cfg.BurstWindow = 0
	g := New(StaticSettings(cfg), newFakeClock(testStart), nil, nil)

	for i := 0; i < 200; i++ {
		decision := mustCheck(t, g, Caller{GuestScope: "s1"})
		if !decision.Admitted || decision.Remaining != -1 {
			t.Fatalf("request %d: expected unlimited admit, got %+v", i+1, decision)
		}
	}
}

func TestDatesFollowConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	cfg := DefaultSettingsConfig()
	cfg.Location = loc
	// 20:00 UTC on the 10th is already the 11th in IST.
	clock := newFakeClock(time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC))
	guests := NewMemoryGuestStore()
	g := New(StaticSettings(cfg), clock, guests, nil)

	mustCheck(t, g, Caller{GuestScope: "s1"})
	record, _, _ := guests.ReadGuest(context.Background(), "s1")
	if record.Date != "2025-03-11" {
		t.Fatalf("expected IST date, got %q", record.Date)
	}
}

func TestConcurrentGuestChecksDoNotLoseUpdates(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.BurstWindow = 0
	cfg.GuestDailyLimit = 1000
	guests := plainGuestStore{inner: NewMemoryGuestStore()}
	g := New(StaticSettings(cfg), newFakeClock(testStart), guests, nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Check(context.Background(), Caller{GuestScope: "shared"}); err != nil {
				t.Errorf("check: %v", err)
			}
		}()
	}
	wg.Wait()

	record, _, _ := guests.ReadGuest(context.Background(), "shared")
	if record.Count != 64 {
		t.Fatalf("expected 64 counted requests, got %d", record.Count)
	}
	if size := g.locks.size(); size != 0 {
		t.Fatalf("expected key locks released, got %d", size)
	}
}

func TestConcurrentUserChecksDoNotLoseUpdates(t *testing.T) {
	cfg := DefaultSettingsConfig()
	cfg.BurstWindow = 0
	cfg.UserDailyLimit = 1000
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{})
	g := New(StaticSettings(cfg), newFakeClock(testStart), nil, users)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Check(context.Background(), Caller{UserID: "u1"})
		}()
	}
	wg.Wait()

	record, _, _ := users.ReadUser(context.Background(), "u1")
	if record.DailyRequests != 64 || record.TotalRequests != 64 {
		t.Fatalf("expected 64 counted requests, got %+v", record)
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	clock := newFakeClock(testStart)
	guests := NewMemoryGuestStore()
	_ = guests.WriteGuest(context.Background(), "s1", GuestRecord{Date: "2025-03-10", Count: 7})
	users := NewMemoryUserStore()
	users.Put("u1", UserRecord{DailyRequests: 4, LastRequestDate: "2025-03-09", IsBlocked: true})
	g := newTestGuard(clock, guests, users)

	status, err := g.Status(context.Background(), Caller{GuestScope: "s1"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Used != 7 || status.Remaining != 43 || status.Limit != 50 || !status.Known {
		t.Fatalf("unexpected guest status %+v", status)
	}

	status, err = g.Status(context.Background(), Caller{UserID: "u1"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Identified || status.Used != 0 || status.Remaining != 30 || !status.Blocked {
		t.Fatalf("unexpected user status %+v", status)
	}

	record, _, _ := guests.ReadGuest(context.Background(), "s1")
	if record.Count != 7 {
		t.Fatalf("expected status to leave count at 7, got %d", record.Count)
	}
	for i := 0; i < 2; i++ {
		if decision := mustCheck(t, g, Caller{GuestScope: "s1"}); !decision.Admitted {
			t.Fatalf("expected status calls not to affect burst state, got %+v", decision)
		}
		clock.Advance(100 * time.Millisecond)
	}
}

func TestReasonNames(t *testing.T) {
	cases := map[Reason]string{
		ReasonNone:               "none",
		ReasonBurstExceeded:      "burst_exceeded",
		ReasonGuestQuotaExceeded: "guest_quota_exceeded",
		ReasonUserQuotaExceeded:  "user_quota_exceeded",
		ReasonAccountBlocked:     "account_blocked",
		ReasonStoreUnavailable:   "store_unavailable",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Fatalf("reason %d: expected %q, got %q", reason, want, got)
		}
	}
}
