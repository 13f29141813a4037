package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts a request in the current window.
// KEYS[1] = window key
// ARGV[1] = window length in milliseconds
// Returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter shares window counters between processes through Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	window time.Duration
	max    int
}

// NewRedisLimiter builds a RedisLimiter on an existing client.
func NewRedisLimiter(client redis.Scripter, prefix string, windowSize time.Duration, max int) *RedisLimiter {
	if prefix == "" {
		prefix = "relayer:ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix, window: windowSize, max: max}
}

// NewRedisClient opens a client the way the service configures Redis.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Allow counts a request for key. A request over the limit still increments
// the counter but never extends the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, l.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return Decision{}, fmt.Errorf("redis limiter: unexpected script result %v", res)
	}
	count, _ := results[0].(int64)
	ttl, _ := results[1].(int64)

	if int(count) > l.max {
		return Decision{Allowed: false, RetryAfter: time.Duration(ttl) * time.Millisecond}, nil
	}
	return Decision{Allowed: true, Remaining: l.max - int(count)}, nil
}
