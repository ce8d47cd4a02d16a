package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// RBAC is a coarse route filter on the token role. Whether the caller may
// touch a particular participant or study is decided by the services.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, _ := c.Get(ContextRole).(string)
			if role, ok := domain.ParseRole(raw); !ok || !allowed[role] {
				return echo.NewHTTPError(http.StatusForbidden, "role not allowed for this route")
			}
			return next(c)
		}
	}
}
