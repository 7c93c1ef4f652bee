package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// corsMiddleware answers cross-origin requests from allowed dashboard
// origins. An empty allowed list means "allow any origin", matching the
// teacher's default-open local-dev posture.
func corsMiddleware(allowed []string) echo.MiddlewareFunc {
	allowAll := len(allowed) == 0
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowSet[o] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			if origin != "" {
				_, ok := allowSet[origin]
				if allowAll || ok {
					c.Response().Header().Set("Access-Control-Allow-Origin", origin)
					c.Response().Header().Set("Vary", "Origin")
				}
			}
			c.Response().Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodOptions,
			}, ", "))
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
