package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

// Recovery turns a handler panic into a 500 with the standard error body and
// logs the stack against the request ID.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				req := c.Request()
				logger.Error().
					Interface("request_id", c.Get("request_id")).
					Str("method", req.Method).
					Str("path", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				err = apperr.HTTPError(fmt.Errorf("panic in %s %s: %v", req.Method, c.Path(), r))
			}()
			return next(c)
		}
	}
}
