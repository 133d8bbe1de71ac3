package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

// BodyLimits holds byte caps for JSON bodies and multipart uploads.
type BodyLimits struct {
	JSON   int64
	Upload int64
}

// BodyLimit rejects bodies over the cap for their content type with 413.
// Declared lengths are checked up front; streamed bodies fail on the read
// that crosses the cap.
func BodyLimit(limits BodyLimits) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := limits.JSON
			if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
				limit = limits.Upload
			}
			if req.ContentLength > limit {
				return bodyTooLarge(limit)
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

			err := next(c)
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return bodyTooLarge(mbe.Limit)
			}
			return err
		}
	}
}

func bodyTooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge, apperr.Body{
		Success: false,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit),
	})
}
