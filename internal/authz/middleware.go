package authz

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caregate/caregate/internal/platform/identity"
)

// Require returns middleware that gates a route behind an authorization
// decision for the given action. The resource owner, when relevant, is
// taken from the named path parameter (usually ":patientId").
func Require(a *Authorizer, action, ownerParam string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := identity.FromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			owner := ""
			if ownerParam != "" {
				owner = c.Param(ownerParam)
			}

			decision := a.Authorize(c.Request().Context(), principal, action, owner)
			if !decision.Allowed {
				return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
			}
			return next(c)
		}
	}
}
