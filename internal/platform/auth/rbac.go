package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// roleRank orders the clinic roles. A user holding a ranked role satisfies
// any requirement at or below that rank; admin satisfies everything.
var roleRank = map[string]int{
	RoleStaff: 1,
	RoleAdmin: 2,
}

// RequireRole rejects the request with 403 unless the caller holds one of
// roles or a role ranked above it.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}

func HasRole(userRoles []string, required ...string) bool {
	for _, has := range userRoles {
		has = strings.ToLower(has)
		if has == RoleAdmin {
			return true
		}
		for _, r := range required {
			if satisfies(has, strings.ToLower(r)) {
				return true
			}
		}
	}
	return false
}

func satisfies(has, required string) bool {
	if has == required {
		return true
	}
	hr, ok := roleRank[has]
	if !ok {
		return false
	}
	rr, ok := roleRank[required]
	return ok && hr >= rr
}
