package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript increments the window counter only while it is below the limit.
// Returns {count, pttl, allowed}.
var hitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local window = tonumber(ARGV[2])
if count == 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
if count < tonumber(ARGV[1]) then
  count = redis.call('INCR', KEYS[1])
  return {count, ttl, 1}
end
return {count, ttl, 0}
`)

// RedisStore shares counters between instances. Window expiry follows the redis
// server clock.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "rate_limit"}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	k := fmt.Sprintf("%s:%s", s.prefix, key)
	res, err := hitScript.Run(ctx, s.client, []string{k}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit store: %w", err)
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("rate limit store: unexpected reply %v", res)
	}
	return Window{
		Count:   int(res[0]),
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
		Allowed: res[2] == 1,
	}, nil
}
