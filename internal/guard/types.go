package guard

import (
	"context"
	"strings"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Reason identifies why a request was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBurstExceeded
	ReasonGuestQuotaExceeded
	ReasonUserQuotaExceeded
	ReasonAccountBlocked
	ReasonStoreUnavailable
)

// String returns the wire name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonBurstExceeded:
		return "burst_exceeded"
	case ReasonGuestQuotaExceeded:
		return "guest_quota_exceeded"
	case ReasonUserQuotaExceeded:
		return "user_quota_exceeded"
	case ReasonAccountBlocked:
		return "account_blocked"
	case ReasonStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may succeed by trying again later.
func (r Reason) Retryable() bool {
	return r != ReasonAccountBlocked
}

// Decision describes the outcome of an admission check.
type Decision struct {
	Admitted bool
	Reason   Reason
	Message  string
	// Remaining is the number of requests left today, or -1 when unknown or unlimited.
	Remaining int
}

// Caller identifies who is asking. UserID wins over GuestScope when both are set.
type Caller struct {
	UserID     string
	GuestScope string
}

// Identified reports whether the caller is a signed-in user.
func (c Caller) Identified() bool {
	return strings.TrimSpace(c.UserID) != ""
}

// GuestRecord is the per-scope daily counter for anonymous callers.
type GuestRecord struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UserRecord is the server-side quota row for an identified caller.
type UserRecord struct {
	DailyRequests   int
	TotalRequests   int64
	LastRequestDate string
	IsBlocked       bool
}

// GuestStore persists guest counters keyed by scope.
type GuestStore interface {
	ReadGuest(ctx context.Context, scope string) (GuestRecord, bool, error)
	WriteGuest(ctx context.Context, scope string, record GuestRecord) error
}

// GuestConsumer is implemented by guest stores that can check and increment atomically.
// ConsumeGuest returns the resulting record and whether the request was admitted.
type GuestConsumer interface {
	ConsumeGuest(ctx context.Context, scope, today string, limit int) (GuestRecord, bool, error)
}

// UserStore persists user quota rows keyed by identity.
type UserStore interface {
	ReadUser(ctx context.Context, id string) (UserRecord, bool, error)
	WriteUser(ctx context.Context, id string, record UserRecord) error
}

// UserTransactor is implemented by user stores that can hold a row lock for id
// while fn runs its read-modify-write through the supplied store.
type UserTransactor interface {
	LockUser(ctx context.Context, id string, fn func(ctx context.Context, store UserStore) error) error
}

// StoreErrorPolicy decides the outcome when the user quota store fails.
type StoreErrorPolicy string

const (
	StoreErrorAdmit  StoreErrorPolicy = "admit"
	StoreErrorReject StoreErrorPolicy = "reject"
)

// ParseStoreErrorPolicy parses a policy name, reporting false for unknown values.
func ParseStoreErrorPolicy(raw string) (StoreErrorPolicy, bool) {
	switch StoreErrorPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case StoreErrorAdmit:
		return StoreErrorAdmit, true
	case StoreErrorReject:
		return StoreErrorReject, true
	default:
		return "", false
	}
}

// QuotaStatus is a read-only view of a caller's daily quota.
type QuotaStatus struct {
	Identified bool   `json:"identified"`
	Date       string `json:"date"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	Blocked    bool   `json:"blocked"`
	// Known is false when no quota record exists or the store could not be read.
	Known bool `json:"known"`
}
