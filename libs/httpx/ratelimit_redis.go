package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window rate limiter shared by every
// clinic-service replica.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	key    KeyFunc
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, key: ClientIP}
}

func (rl *RedisRateLimiter) WithKey(fn KeyFunc) *RedisRateLimiter {
	if fn != nil {
		rl.key = fn
	}
	return rl
}

// Middleware enforces the limit. With failOpen a Redis outage lets traffic
// through instead of failing every clinic request.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, err := rl.incr(r.Context(), rl.bucket(r))
			if err != nil {
				if logger != nil {
					logger.Warn("redis rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable", "message": "rate limiter unavailable"})
				return
			}
			if count > int64(rl.limit) {
				WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited", "message": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bucket includes the window index so keys roll over even if PEXPIRE was lost.
func (rl *RedisRateLimiter) bucket(r *http.Request) string {
	window := time.Now().UnixMilli() / rl.window.Milliseconds()
	return rl.prefix + ":" + rl.key(r) + ":" + strconv.FormatInt(window, 10)
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
