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

// RedisRateLimiter is a fixed-window limiter shared by every replica through Redis.
type RedisRateLimiter struct {
	rdb      *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
	logger   *slog.Logger
}

type RedisLimitConfig struct {
	Limit  int
	Window time.Duration
	Prefix string
	// FailOpen lets requests through while Redis is unreachable.
	FailOpen bool
	Logger   *slog.Logger
}

// windowScript returns the hit count of the current window and its remaining lifetime in ms.
var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb *redis.Client, cfg RedisLimitConfig) *RedisRateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Prefix = strings.TrimSpace(cfg.Prefix); cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RedisRateLimiter{
		rdb:      rdb,
		limit:    cfg.Limit,
		window:   cfg.Window,
		prefix:   cfg.Prefix,
		failOpen: cfg.FailOpen,
		logger:   cfg.Logger,
	}
}

func (rl *RedisRateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, ttl, err := rl.hit(r.Context(), rl.prefix+":"+clientKey(r))
			if err != nil {
				rl.logger.Warn("redis rate limiter error", "err", err)
				if rl.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(rl.limit)-count), 10))
			if count > int64(rl.limit) {
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(ttl, rl.window)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	res, err := windowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// retryAfterSeconds rounds the window's remaining lifetime up to whole seconds. A key without
// expiry reports a negative ttl, in which case the full window is advertised.
func retryAfterSeconds(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	return int((ttl + time.Second - 1) / time.Second)
}
