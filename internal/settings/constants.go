package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the assistant display name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback assistant display name.
	DefaultSiteName = "Film4u AI"
	// GuardBurstWindowMillisKey controls the burst window in milliseconds.
	GuardBurstWindowMillisKey = "GUARD_BURST_WINDOW_MS"
	// GuardMaxBurstKey controls how many requests fit inside one burst window.
	GuardMaxBurstKey = "GUARD_MAX_BURST"
	// GuardGuestDailyLimitKey controls the daily request limit for guests.
	GuardGuestDailyLimitKey = "GUARD_GUEST_DAILY_LIMIT"
	// GuardUserDailyLimitKey controls the daily request limit for signed-in users.
	GuardUserDailyLimitKey = "GUARD_USER_DAILY_LIMIT"
	// GuardOnStoreErrorKey selects admit or reject when the user quota store fails.
	GuardOnStoreErrorKey = "GUARD_ON_STORE_ERROR"
	// GuardStoreTimeoutMillisKey bounds user quota store calls in milliseconds.
	GuardStoreTimeoutMillisKey = "GUARD_STORE_TIMEOUT_MS"
	// GuardRedisEnabledKey toggles Redis-backed guest quotas.
	GuardRedisEnabledKey = "GUARD_REDIS_ENABLED"
	// GuardRedisAddrKey defines the Redis address for guest quotas.
	GuardRedisAddrKey = "GUARD_REDIS_ADDR"
	// GuardRedisPasswordKey defines the Redis password for guest quotas.
	GuardRedisPasswordKey = "GUARD_REDIS_PASSWORD"
	// GuardRedisDBKey defines the Redis DB index for guest quotas.
	GuardRedisDBKey = "GUARD_REDIS_DB"
	// GuardRedisPrefixKey defines the Redis key prefix for guest quotas.
	GuardRedisPrefixKey = "GUARD_REDIS_PREFIX"
	// DefaultGuardBurstWindowMillis is the fallback burst window (milliseconds).
	DefaultGuardBurstWindowMillis = 800
	// DefaultGuardMaxBurst is the fallback burst allowance.
	DefaultGuardMaxBurst = 2
	// DefaultGuardGuestDailyLimit is the fallback guest daily limit (0 means unlimited).
	DefaultGuardGuestDailyLimit = 50
	// DefaultGuardUserDailyLimit is the fallback user daily limit (0 means unlimited).
	DefaultGuardUserDailyLimit = 30
	// DefaultGuardOnStoreError admits requests when the user quota store fails.
	DefaultGuardOnStoreError = "admit"
	// DefaultGuardStoreTimeoutMillis is the fallback store timeout (milliseconds).
	DefaultGuardStoreTimeoutMillis = 3000
	// DefaultGuardRedisPrefix is the fallback Redis key prefix.
	DefaultGuardRedisPrefix = "f4u:guest"
)
