package guard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

type redisConfig struct {
	addr     string
	password string
	prefix   string
	db       int
}

// GuestStoreManager serves guest counters from Redis when enabled and healthy,
// and from process memory otherwise.
type GuestStoreManager struct {
	provider       SettingsProvider
	nowFn          func() time.Time
	memory         *MemoryGuestStore
	newRedisClient RedisClientFactory
	mu             sync.Mutex
	redisStore     *RedisGuestStore
	redisClient    *redis.Client
	redisCfg       redisConfig
	breakerUntil   time.Time
}

// NewGuestStoreManager constructs a GuestStoreManager with default dependencies when nil.
func NewGuestStoreManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *GuestStoreManager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &GuestStoreManager{
		provider:       provider,
		nowFn:          nowFn,
		memory:         NewMemoryGuestStore(),
		newRedisClient: newRedisClient,
	}
}

// ReadGuest reads from the best available backend.
func (m *GuestStoreManager) ReadGuest(ctx context.Context, scope string) (GuestRecord, bool, error) {
	if store, ok := m.activeRedis(ctx); ok {
		record, found, errRead := store.ReadGuest(ctx, scope)
		if errRead == nil {
			return record, found, nil
		}
		m.tripBreaker(errRead)
	}
	m.countFallback()
	return m.memory.ReadGuest(ctx, scope)
}

// WriteGuest writes to the best available backend.
func (m *GuestStoreManager) WriteGuest(ctx context.Context, scope string, record GuestRecord) error {
	if store, ok := m.activeRedis(ctx); ok {
		errWrite := store.WriteGuest(ctx, scope, record)
		if errWrite == nil {
			return nil
		}
		m.tripBreaker(errWrite)
	}
	m.countFallback()
	return m.memory.WriteGuest(ctx, scope, record)
}

// ConsumeGuest consumes from the best available backend.
func (m *GuestStoreManager) ConsumeGuest(ctx context.Context, scope, today string, limit int) (GuestRecord, bool, error) {
	if store, ok := m.activeRedis(ctx); ok {
		record, allowed, errConsume := store.ConsumeGuest(ctx, scope, today, limit)
		if errConsume == nil {
			return record, allowed, nil
		}
		m.tripBreaker(errConsume)
	}
	m.countFallback()
	return m.memory.ConsumeGuest(ctx, scope, today, limit)
}

// Close releases the Redis client, if any.
func (m *GuestStoreManager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redisClient == nil {
		return nil
	}
	errClose := m.redisClient.Close()
	m.redisClient = nil
	m.redisStore = nil
	return errClose
}

func (m *GuestStoreManager) activeRedis(ctx context.Context) (*RedisGuestStore, bool) {
	if m == nil {
		return nil, false
	}
	cfg := m.provider()
	if !cfg.RedisEnabled {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.isBreakerActive() {
		return nil, false
	}
	store, errEnsure := m.ensureRedis(ctx, cfg)
	if errEnsure != nil {
		m.tripBreaker(errEnsure)
		return nil, false
	}
	return store, store != nil
}

// countFallback records a memory-served call only when Redis was meant to serve it.
func (m *GuestStoreManager) countFallback() {
	if m.provider().RedisEnabled {
		GuestStoreFallbacksTotal.Inc()
	}
}

func (m *GuestStoreManager) isBreakerActive() bool {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *GuestStoreManager) tripBreaker(err error) {
	if err == nil || m == nil {
		return
	}
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("guest quota: redis unavailable, falling back to memory")
}

func (m *GuestStoreManager) ensureRedis(ctx context.Context, cfg SettingsConfig) (*RedisGuestStore, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("guest quota redis: missing address")
	}

	nextCfg := redisConfig{
		addr:     addr,
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if nextCfg.db < 0 {
		nextCfg.db = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisStore != nil && m.redisCfg == nextCfg {
		return m.redisStore, nil
	}
	if m.redisClient != nil {
		_ = m.redisClient.Close()
		m.redisClient = nil
		m.redisStore = nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     nextCfg.addr,
		Password: nextCfg.password,
		DB:       nextCfg.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisClient = client
	m.redisStore = NewRedisGuestStore(client, nextCfg.prefix)
	m.redisCfg = nextCfg
	return m.redisStore, nil
}
