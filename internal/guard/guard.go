package guard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	burstMessage            = "Whoa! Slow down. The AI needs a second to think."
	blockedMessage          = "Your account has been flagged for unusual activity. Contact support."
	storeUnavailableMessage = "AI requests are temporarily unavailable. Please try again shortly."
)

// Guard decides whether an AI-assisted request may go out and records it against the caller's quota.
// Each Guard owns its burst state; callers that need independent burst tracking create separate guards.
type Guard struct {
	provider SettingsProvider
	clock    Clock
	guests   GuestStore
	users    UserStore
	locks    *keyLocks

	burstMu sync.Mutex
	burst   burstState
}

// New constructs a Guard with default dependencies when nil.
// A nil users store admits every identified caller, as if no quota row existed.
func New(provider SettingsProvider, clock Clock, guests GuestStore, users UserStore) *Guard {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if clock == nil {
		clock = SystemClock
	}
	if guests == nil {
		guests = NewMemoryGuestStore()
	}
	return &Guard{
		provider: provider,
		clock:    clock,
		guests:   guests,
		users:    users,
		locks:    newKeyLocks(),
	}
}

// Check runs the burst check and then the caller's daily quota check.
// Expected rejections come back as a Decision; only guest store failures return an error.
func (g *Guard) Check(ctx context.Context, caller Caller) (Decision, error) {
	if g == nil {
		return admitted(-1), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := g.provider().normalize()
	now := g.clock.Now()
	kind := callerKind(caller)

	if !g.admitBurst(now, cfg) {
		decision := rejected(ReasonBurstExceeded, burstMessage)
		recordDecision(kind, decision)
		return decision, nil
	}

	today := dateOf(now, cfg.Location)
	var decision Decision
	if caller.Identified() {
		decision = g.checkUser(ctx, strings.TrimSpace(caller.UserID), today, cfg)
	} else {
		var errGuest error
		decision, errGuest = g.checkGuest(ctx, normalizeGuestScope(caller.GuestScope), today, cfg)
		if errGuest != nil {
			recordStoreFailure("guest")
			return Decision{}, errGuest
		}
	}
	recordDecision(kind, decision)
	return decision, nil
}

// Status reports the caller's quota without consuming it or touching the burst state.
func (g *Guard) Status(ctx context.Context, caller Caller) (QuotaStatus, error) {
	if g == nil {
		return QuotaStatus{Remaining: -1}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := g.provider().normalize()
	today := dateOf(g.clock.Now(), cfg.Location)

	if caller.Identified() {
		status := QuotaStatus{Identified: true, Date: today, Limit: cfg.UserDailyLimit}
		if g.users != nil {
			storeCtx, cancel := withStoreTimeout(ctx, cfg.StoreTimeout)
			record, found, errRead := g.users.ReadUser(storeCtx, strings.TrimSpace(caller.UserID))
			cancel()
			if errRead != nil {
				log.WithError(errRead).Warn("guard: user quota status unavailable")
			} else if found {
				status.Known = true
				status.Blocked = record.IsBlocked
				if record.LastRequestDate == today {
					status.Used = record.DailyRequests
				}
			}
		}
		status.Remaining = remaining(status.Limit, status.Used)
		return status, nil
	}

	status := QuotaStatus{Date: today, Limit: cfg.GuestDailyLimit}
	record, found, errRead := g.guests.ReadGuest(ctx, normalizeGuestScope(caller.GuestScope))
	if errRead != nil {
		return QuotaStatus{}, fmt.Errorf("guard: read guest quota: %w", errRead)
	}
	if found {
		status.Known = true
		if record.Date == today {
			status.Used = record.Count
		}
	}
	status.Remaining = remaining(status.Limit, status.Used)
	return status, nil
}

func (g *Guard) admitBurst(now time.Time, cfg SettingsConfig) bool {
	g.burstMu.Lock()
	defer g.burstMu.Unlock()
	return g.burst.admit(now, cfg.BurstWindow, cfg.MaxBurst)
}

func (g *Guard) checkGuest(ctx context.Context, scope, today string, cfg SettingsConfig) (Decision, error) {
	unlock := g.locks.lock(guestLockKey(scope))
	defer unlock()

	if consumer, ok := g.guests.(GuestConsumer); ok {
		record, ok, errConsume := consumer.ConsumeGuest(ctx, scope, today, cfg.GuestDailyLimit)
		if errConsume != nil {
			return Decision{}, fmt.Errorf("guard: consume guest quota: %w", errConsume)
		}
		if !ok {
			return rejected(ReasonGuestQuotaExceeded, guestQuotaMessage(cfg)), nil
		}
		return admitted(remaining(cfg.GuestDailyLimit, record.Count)), nil
	}

	record, found, errRead := g.guests.ReadGuest(ctx, scope)
	if errRead != nil {
		return Decision{}, fmt.Errorf("guard: read guest quota: %w", errRead)
	}
	next, ok := nextGuestRecord(record, found, today, cfg.GuestDailyLimit)
	if !ok {
		return rejected(ReasonGuestQuotaExceeded, guestQuotaMessage(cfg)), nil
	}
	if errWrite := g.guests.WriteGuest(ctx, scope, next); errWrite != nil {
		return Decision{}, fmt.Errorf("guard: write guest quota: %w", errWrite)
	}
	return admitted(remaining(cfg.GuestDailyLimit, next.Count)), nil
}

// nextGuestRecord applies one request to record. It returns false when the daily limit is spent.
func nextGuestRecord(record GuestRecord, found bool, today string, limit int) (GuestRecord, bool) {
	if !found || record.Date != today {
		return GuestRecord{Date: today, Count: 1}, true
	}
	if limit > 0 && record.Count >= limit {
		return record, false
	}
	record.Count++
	return record, true
}

func (g *Guard) checkUser(ctx context.Context, id, today string, cfg SettingsConfig) Decision {
	if g.users == nil {
		return admitted(-1)
	}
	unlock := g.locks.lock(userLockKey(id))
	defer unlock()

	storeCtx, cancel := withStoreTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	var decision Decision
	run := func(ctx context.Context, store UserStore) error {
		var errConsume error
		decision, errConsume = consumeUser(ctx, store, id, today, cfg)
		return errConsume
	}

	var errRun error
	if transactor, ok := g.users.(UserTransactor); ok {
		errRun = transactor.LockUser(storeCtx, id, run)
	} else {
		errRun = run(storeCtx, g.users)
	}
	if errRun != nil {
		return storeFailure(id, errRun, cfg)
	}
	return decision
}

func consumeUser(ctx context.Context, store UserStore, id, today string, cfg SettingsConfig) (Decision, error) {
	record, found, errRead := store.ReadUser(ctx, id)
	if errRead != nil {
		return Decision{}, fmt.Errorf("read user quota: %w", errRead)
	}
	if !found {
		return admitted(-1), nil
	}
	if record.IsBlocked {
		return rejected(ReasonAccountBlocked, blockedMessage), nil
	}

	if record.LastRequestDate != today {
		record.DailyRequests = 1
		record.LastRequestDate = today
	} else {
		if cfg.UserDailyLimit > 0 && record.DailyRequests >= cfg.UserDailyLimit {
			return rejected(ReasonUserQuotaExceeded, userQuotaMessage(cfg)), nil
		}
		record.DailyRequests++
	}
	record.TotalRequests++

	if errWrite := store.WriteUser(ctx, id, record); errWrite != nil {
		return Decision{}, fmt.Errorf("write user quota: %w", errWrite)
	}
	return admitted(remaining(cfg.UserDailyLimit, record.DailyRequests)), nil
}

func storeFailure(id string, err error, cfg SettingsConfig) Decision {
	recordStoreFailure("user")
	entry := log.WithError(err).WithField("user_id", id)
	if cfg.OnStoreError == StoreErrorReject {
		entry.Warn("guard: user quota store unavailable, rejecting")
		return rejected(ReasonStoreUnavailable, storeUnavailableMessage)
	}
	entry.Warn("guard: user quota store unavailable, admitting")
	return admitted(-1)
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func guestQuotaMessage(cfg SettingsConfig) string {
	if cfg.UserDailyLimit <= 0 {
		return fmt.Sprintf("Guest quota exceeded (%d/day). Sign in for unlimited AI requests.", cfg.GuestDailyLimit)
	}
	return fmt.Sprintf("Guest quota exceeded (%d/day). Sign in for %d daily AI requests.", cfg.GuestDailyLimit, cfg.UserDailyLimit)
}

func userQuotaMessage(cfg SettingsConfig) string {
	return fmt.Sprintf("Daily limit reached (%d/%d). Try again tomorrow!", cfg.UserDailyLimit, cfg.UserDailyLimit)
}

func admitted(left int) Decision {
	return Decision{Admitted: true, Reason: ReasonNone, Remaining: left}
}

func rejected(reason Reason, message string) Decision {
	left := -1
	if reason == ReasonGuestQuotaExceeded || reason == ReasonUserQuotaExceeded {
		left = 0
	}
	return Decision{Reason: reason, Message: message, Remaining: left}
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// dateOf returns the YYYY-MM-DD calendar date of t in loc.
func dateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

func callerKind(caller Caller) string {
	if caller.Identified() {
		return "user"
	}
	return "guest"
}
