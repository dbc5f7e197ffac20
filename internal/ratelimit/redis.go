package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript increments the day counter only when under the limit, so a
// denied request never consumes quota. Returns -1 when the limit is reached,
// otherwise the remaining allowance after the increment.
var admitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return -1
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return tonumber(ARGV[1]) - current
`)

type redisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

// NewRedisLimiter returns a Limiter backed by Redis, suitable for
// multi-instance deployments. Counters live on day-bucketed keys that expire
// on their own; the lazy day reset falls out of the key changing at midnight.
func NewRedisLimiter(client *redis.Client, limit int) Limiter {
	return &redisLimiter{
		client: client,
		limit:  limit,
		now:    time.Now,
	}
}

func (l *redisLimiter) Admit(ctx context.Context, userID string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:user:%s:%s", userID, dayKey(l.now()))

	// Keys outlive the day they count so a clock skewed replica never
	// resurrects a dropped counter; 48h covers any timezone drift.
	remaining, err := admitScript.Run(ctx, l.client, []string{key}, l.limit, int((48 * time.Hour).Seconds())).Int()
	if err != nil {
		slog.ErrorContext(ctx, "rate limit storage error", "error", err, "user_id", userID)
		return Decision{Allowed: false, Limit: l.limit}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if remaining < 0 {
		return Decision{Allowed: false, Remaining: 0, Limit: l.limit}, nil
	}

	return Decision{Allowed: true, Remaining: remaining, Limit: l.limit}, nil
}
