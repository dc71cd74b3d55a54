package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CallerHeader carries the caller identity on API requests
const CallerHeader = "X-Caller-ID"

// callerContextKey is the echo context key the caller id is stored under
const callerContextKey = "caller_id"

// CallerExtractor requires a valid caller id header on every request it
// guards and stores it on the context
func CallerExtractor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(CallerHeader)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
			}

			caller, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid caller id")
			}

			c.Set(callerContextKey, caller)
			return next(c)
		}
	}
}

// RequireController gates admin routes to the configured controllers
func RequireController(controllers []uuid.UUID) echo.MiddlewareFunc {
	set := make(map[uuid.UUID]struct{}, len(controllers))
	for _, id := range controllers {
		set[id] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := CallerFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing caller id")
			}
			if _, allowed := set[caller]; !allowed {
				return echo.NewHTTPError(http.StatusForbidden, "caller is not a controller")
			}
			return next(c)
		}
	}
}

// CallerFrom reads the caller id stored by CallerExtractor
func CallerFrom(c echo.Context) (uuid.UUID, bool) {
	caller, ok := c.Get(callerContextKey).(uuid.UUID)
	return caller, ok
}
