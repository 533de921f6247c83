package guard

import (
	"strings"
	"sync"
)

// DefaultGuestScope is used when an anonymous caller presents no scope.
const DefaultGuestScope = "f4u_guest_quota"

func userLockKey(id string) string {
	return "u:" + id
}

func guestLockKey(scope string) string {
	return "g:" + scope
}

func normalizeGuestScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return DefaultGuestScope
	}
	return scope
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks serializes work per key and forgets keys nobody holds.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	entry := k.locks[key]
	if entry == nil {
		entry = &keyLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
