package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders hardens responses that carry patient data. API responses
// are never cached. Stored files under filesPrefix (exam PDFs, images and
// audio) may be embedded by the clinic front end, so they get a sandboxed
// policy and a short private cache instead of the API defaults.
func SecurityHeaders(filesPrefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if filesPrefix != "" && strings.HasPrefix(c.Request().URL.Path, filesPrefix) {
				h.Set("X-Frame-Options", "SAMEORIGIN")
				h.Set("Content-Security-Policy", "default-src 'none'; sandbox; frame-ancestors 'self'")
				h.Set("Cache-Control", "private, max-age=300")
				return next(c)
			}

			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
