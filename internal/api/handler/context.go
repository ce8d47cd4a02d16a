package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mobistudy/mobistudy-api/internal/api/middleware"
	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// ctxActor builds the caller from the claims injected by the Auth middleware
// and rejects tokens that are structurally valid but unusable: an unknown
// role or a missing subject.
func ctxActor(c echo.Context) (access.Actor, error) {
	raw, _ := c.Get(middleware.ContextRole).(string)
	role, ok := domain.ParseRole(raw)
	if !ok {
		return access.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	key, _ := c.Get(middleware.ContextUserKey).(string)
	if key == "" {
		return access.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "token missing user identity")
	}
	return access.Actor{Role: role, Key: key}, nil
}
