package guard

import "time"

// burstState counts requests that arrive closer together than the burst window.
// The zero value behaves as if the last request happened at the epoch.
type burstState struct {
	last  time.Time
	count int
}

// admit records a request at now and reports whether it stays within maxBurst.
// The counter is not rolled back on rejection and last moves to now either way.
func (b *burstState) admit(now time.Time, window time.Duration, maxBurst int) bool {
	allowed := true
	if !b.last.IsZero() && now.Sub(b.last) < window {
		b.count++
		if b.count > maxBurst {
			allowed = false
		}
	} else {
		b.count = 1
	}
	b.last = now
	return allowed
}
