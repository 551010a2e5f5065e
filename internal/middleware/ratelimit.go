package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/dmarves/toolshare/internal/config"
)

// tokenBucketScript refills and drains a bucket atomically so concurrent
// requests against the same key never double-spend a token.
//
// KEYS[1] bucket hash; ARGV: now_ms, capacity, refill_tokens, interval_ms,
// ttl_seconds. Returns {allowed, tokens_left, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed >= interval then
  local ticks = math.floor(elapsed / interval)
  tokens = math.min(capacity, tokens + ticks * refill)
  last = last + ticks * interval
end

local allowed = 0
local retry_after = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after = interval - (now - last)
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last)
redis.call('EXPIRE', key, ttl)
return {allowed, tokens, retry_after}
`)

// NewTokenBucket returns an Echo middleware enforcing a per-key token
// bucket in Redis. With limiting disabled or no Redis client it degrades
// to a passthrough, and a Redis error at request time also lets the
// request through rather than failing closed on an infrastructure hiccup.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			now := time.Now().UnixMilli()
			res, err := tokenBucketScript.Run(c.Request().Context(), rdb,
				[]string{key},
				now,
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL.Seconds()),
			).Slice()
			if err != nil || len(res) != 3 {
				if cfg.Debug {
					log.Printf("ratelimit: script for %s failed: %v", key, err)
				}
				return next(c)
			}
			allowed := asInt64(res[0])
			remaining := asInt64(res[1])
			retryAfterMS := asInt64(res[2])

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if allowed != 1 {
				secs := (retryAfterMS + 999) / 1000
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.FormatInt(secs, 10))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"detail": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

// buildRateKey derives the bucket key from the configured strategy so
// deployments can scope limits per client, per account or per endpoint.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	var parts []string
	switch cfg.KeyStrategy {
	case "ip":
		parts = []string{ip}
	case "user":
		parts = []string{currentUserID(c)}
	case "route":
		parts = []string{route}
	case "ip_user":
		parts = []string{ip, currentUserID(c)}
	case "ip_route":
		parts = []string{ip, route}
	case "user_route":
		parts = []string{currentUserID(c), route}
	default:
		parts = []string{ip, currentUserID(c), route}
	}
	return cfg.Prefix + ":" + strings.Join(parts, "_")
}

// currentUserID reads the identity set by JWTAuth, tolerating the claim
// types json decoding produces. Anonymous callers share the "anon" slot.
func currentUserID(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	}
	return "anon"
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprint(n), 10, 64)
		return parsed
	}
}
