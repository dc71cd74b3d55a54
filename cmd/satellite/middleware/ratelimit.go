package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/junobuild/satellite/common/ratelimit"
)

// GlobalRateLimit throttles the whole write surface with one shared
// counter. Limiter errors fail open so a Redis hiccup never takes the
// API down.
func GlobalRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobal(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, result)
			}
			return next(c)
		}
	}
}

// CallerRateLimit throttles each caller independently. It runs after
// CallerExtractor; requests without a caller pass through to the auth
// rejection instead.
func CallerRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := CallerFrom(c)
			if !ok {
				return next(c)
			}

			result, err := limiter.CheckCaller(c.Request().Context(), caller, limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, result)
			}
			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, result *ratelimit.Result) error {
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":               "rate_limit_exceeded",
		"limit":               result.Limit,
		"retry_after_seconds": result.RetryAfterSeconds,
	})
}
