package middleware

import (
	"strconv"
	"time"

	"github.com/fadilmartias/pte-practice/internal/util"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter allows max requests per client IP in a sliding window.
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return rateLimiter(max, expiration, func(c *fiber.Ctx) string { return c.IP() })
}

// SessionRateLimiter limits per session id route parameter, so clients
// sharing an address do not starve each other's event relays.
func SessionRateLimiter(max int, expiration time.Duration) fiber.Handler {
	return rateLimiter(max, expiration, func(c *fiber.Ctx) string {
		return c.IP() + "/" + c.Params("id")
	})
}

func rateLimiter(max int, expiration time.Duration, key func(*fiber.Ctx) string) fiber.Handler {
	if max == 0 {
		max = 50
	}
	if expiration == 0 {
		expiration = 1 * time.Minute
	}
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   expiration,
		KeyGenerator: key,
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(expiration.Seconds())))
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusTooManyRequests,
				Message: "Too many requests",
			})
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
