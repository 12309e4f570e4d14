package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var topUpRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisTopUpRateLimiter implements a distributed fixed-window limit on top-up
// request submissions using Redis.
type RedisTopUpRateLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func NewRedisTopUpRateLimiter(client redis.UniversalClient, prefix string) *RedisTopUpRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "wallet:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisTopUpRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		window: time.Hour,
	}
}

// Allow reports whether the agency identified by key may submit another
// request in the current window.
func (r *RedisTopUpRateLimiter) Allow(ctx context.Context, key string, limitPerHour int) (bool, error) {
	if r == nil || r.client == nil || limitPerHour <= 0 {
		return true, nil
	}
	subject := strings.TrimSpace(key)
	if subject == "" {
		return true, nil
	}

	redisKey := fmt.Sprintf("%s:topup:%s", r.prefix, subject)
	rawResult, err := topUpRateLimitScript.Run(ctx, r.client, []string{redisKey}, r.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}

	count, ok := rawResult.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis limiter response type: %T", rawResult)
	}
	return count <= int64(limitPerHour), nil
}
