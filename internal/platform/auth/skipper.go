package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. The Google OAuth callback is reached by
// a browser redirect that carries no bearer token.
var publicPaths = map[string]bool{
	"/health":                       true,
	"/health/db":                    true,
	"/api/calendar/google/callback": true,
}

func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()] || publicPaths[c.Request().URL.Path]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
