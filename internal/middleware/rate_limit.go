package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "accountant:rl:"

// RateLimit caps requests per client IP per minute using a Redis counter.
// It is a no-op without Redis or with a non-positive limit, and fails open on
// cache errors.
func RateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}

		window := time.Now().UTC().Format("200601021504")
		key := rateLimitPrefix + c.IP() + ":" + window
		ctx := c.UserContext()

		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(60-time.Now().Second()))
			return fiber.NewError(http.StatusTooManyRequests, "too many batches, try again later")
		}
		return c.Next()
	}
}
