package auth

import (
	"github.com/labstack/echo/v4"
)

// IsPublicPath reports whether path is reachable without a bearer token:
// the health and metrics endpoints plus the login endpoint itself.
func IsPublicPath(path string) bool {
	switch path {
	case "/health", "/health/db", "/metrics", "/api/v1/auth/login":
		return true
	}
	return false
}

// AuthSkipper adapts IsPublicPath for use as a middleware skipper.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}
