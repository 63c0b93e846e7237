package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"patchdb/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

var errNoRateLimitStore = errors.New("rate limit store unavailable")

// RateLimiter enforces fixed-window request quotas stored in Redis.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

// NewRateLimiter returns a limiter backed by rdb. Limits are not enforced in
// the test, development and stress environments.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "test", "development", "dev", "stress":
		return &RateLimiter{rdb: rdb}
	}
	return &RateLimiter{rdb: rdb, enabled: true}
}

// Quota is the outcome of a single rate limit check.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Allow counts one hit for id against resource and reports whether it fits
// in limit hits per window.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (Quota, error) {
	if !l.enabled {
		return Quota{Allowed: true, Remaining: limit}, nil
	}
	if l.rdb == nil {
		return Quota{}, errNoRateLimitStore
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return Quota{}, err
	}

	resetIn := ttl.Val()
	if incr.Val() == 1 || resetIn < 0 {
		if err := l.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return Quota{}, err
		}
		resetIn = window
	}

	remaining := limit - int(incr.Val())
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Allowed: incr.Val() <= int64(limit), Remaining: remaining, ResetIn: resetIn}, nil
}

// Limit returns a Fiber middleware enforcing limit requests per window for
// resource. It keys by the authenticated user when present, otherwise by
// remote IP, and lets requests through when Redis is unavailable.
func (l *RateLimiter) Limit(resource string, limit int, window time.Duration) fiber.Handler {
	return l.LimitWithPolicy(resource, limit, window, FailOpen)
}

// LimitWithPolicy is Limit with an explicit failure policy.
func (l *RateLimiter) LimitWithPolicy(resource string, limit int, window time.Duration, policy FailPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if identity, ok := CurrentIdentity(c); ok {
			id = "user:" + identity.UserID.String()
		}

		quota, err := l.Allow(c.UserContext(), resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "Rate limit store unavailable, rejecting request",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if l.enabled {
			c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(quota.Remaining))
		}
		if !quota.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(quota.ResetIn.Round(time.Second)/time.Second)))
			return models.NewTooManyRequestsError("rate limit exceeded")
		}
		return c.Next()
	}
}
