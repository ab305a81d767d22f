package api

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills the bucket by whole intervals, then takes one token.
// It returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + intervals)
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// RateLimiter is a per-user token bucket kept in Redis. A nil client turns it
// into a pass-through, and so does any Redis error at request time.
type RateLimiter struct {
	rdb      *redis.Client
	capacity int
	interval time.Duration
	prefix   string
}

func NewRateLimiter(rdb *redis.Client, capacity int, interval time.Duration) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimiter{rdb: rdb, capacity: capacity, interval: interval, prefix: "rl"}
}

func (l *RateLimiter) ttl() time.Duration {
	ttl := time.Duration(l.capacity+1) * l.interval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// Limit returns middleware that charges one token from the caller's bucket for
// the named route group. It must run after JWTAuthMiddleware.
func (l *RateLimiter) Limit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil || l.rdb == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := userIDFromContext(r.Context())
			if userID == "" {
				userID = "anon"
			}
			key := strings.Join([]string{l.prefix, "user", userID, "route", route}, ":")

			vals, err := tokenBucketScript.Run(r.Context(), l.rdb, []string{key},
				time.Now().UnixMilli(),
				l.capacity,
				l.interval.Milliseconds(),
				int64(l.ttl()/time.Second),
			).Result()
			if err != nil {
				log.Printf("Rate limiter unavailable for key %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}

			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				log.Printf("Unexpected rate limiter result for key %s: %#v", key, vals)
				next.ServeHTTP(w, r)
				return
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       fmt.Sprintf("Too many %s requests, try again later", route),
					"retry_after": secs,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
