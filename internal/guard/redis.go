package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guest records outlive their day by one extra day so late readers still see them.
const redisGuestTTL = 48 * time.Hour

var redisConsumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
local date = ""
local count = 0
if raw then
  local ok, rec = pcall(cjson.decode, raw)
  if ok and type(rec) == "table" then
    date = rec["date"] or ""
    count = tonumber(rec["count"]) or 0
  end
end
local limit = tonumber(ARGV[2])
if date == ARGV[1] then
  if limit > 0 and count >= limit then
    return {0, count}
  end
  count = count + 1
else
  count = 1
end
redis.call("SET", KEYS[1], cjson.encode({date = ARGV[1], count = count}), "EX", ARGV[3])
return {1, count}
`)

// RedisGuestStore keeps guest counters in Redis as JSON documents.
type RedisGuestStore struct {
	client *redis.Client
	prefix string
}

// NewRedisGuestStore constructs a RedisGuestStore.
func NewRedisGuestStore(client *redis.Client, prefix string) *RedisGuestStore {
	return &RedisGuestStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// ReadGuest loads the record for scope.
func (s *RedisGuestStore) ReadGuest(ctx context.Context, scope string) (GuestRecord, bool, error) {
	if s == nil || s.client == nil {
		return GuestRecord{}, false, errors.New("guard redis: not initialized")
	}
	raw, errGet := s.client.Get(ctx, s.buildKey(scope)).Bytes()
	if errors.Is(errGet, redis.Nil) {
		return GuestRecord{}, false, nil
	}
	if errGet != nil {
		return GuestRecord{}, false, errGet
	}
	var record GuestRecord
	if errUnmarshal := json.Unmarshal(raw, &record); errUnmarshal != nil {
		// A corrupt document counts as no record, same as an unreadable local entry.
		return GuestRecord{}, false, nil
	}
	return record, true, nil
}

// WriteGuest stores the record for scope.
func (s *RedisGuestStore) WriteGuest(ctx context.Context, scope string, record GuestRecord) error {
	if s == nil || s.client == nil {
		return errors.New("guard redis: not initialized")
	}
	payload, errMarshal := json.Marshal(record)
	if errMarshal != nil {
		return fmt.Errorf("guard redis: marshal guest record: %w", errMarshal)
	}
	return s.client.Set(ctx, s.buildKey(scope), payload, redisGuestTTL).Err()
}

// ConsumeGuest checks and increments the counter for scope in one script call.
func (s *RedisGuestStore) ConsumeGuest(ctx context.Context, scope, today string, limit int) (GuestRecord, bool, error) {
	if s == nil || s.client == nil {
		return GuestRecord{}, false, errors.New("guard redis: not initialized")
	}
	ttlSeconds := int64(redisGuestTTL / time.Second)
	res, errEval := redisConsumeScript.Run(ctx, s.client, []string{s.buildKey(scope)}, today, limit, ttlSeconds).Result()
	if errEval != nil {
		return GuestRecord{}, false, errEval
	}
	values, ok := res.([]any)
	if !ok || len(values) != 2 {
		return GuestRecord{}, false, errors.New("guard redis: unexpected response type")
	}
	allowed, okAllowed := values[0].(int64)
	count, okCount := values[1].(int64)
	if !okAllowed || !okCount {
		return GuestRecord{}, false, errors.New("guard redis: unexpected response type")
	}
	return GuestRecord{Date: today, Count: int(count)}, allowed == 1, nil
}

func (s *RedisGuestStore) buildKey(scope string) string {
	if s.prefix == "" {
		return scope
	}
	return s.prefix + ":" + scope
}
