package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

// RequireRole rejects callers whose role is not one of roles. There is no
// implicit admin bypass: doctor-only routes stay closed to admins.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, err := ActorFrom(c)
			if err != nil {
				return apperr.HTTPError(err)
			}
			for _, r := range roles {
				if a.Role == r {
					return next(c)
				}
			}
			return apperr.HTTPError(apperr.Forbidden(
				fmt.Sprintf("required role: %s", strings.Join(roles, " or "))))
		}
	}
}
