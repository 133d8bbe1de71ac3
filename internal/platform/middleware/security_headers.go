package middleware

import (
	"github.com/labstack/echo/v4"
)

// DefaultSecurityHeaders suit a JSON API that serves patient data. Handlers
// that render HTML override Content-Security-Policy themselves.
var DefaultSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "0",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Cache-Control":             "no-store",
}

// SecurityHeaders sets DefaultSecurityHeaders merged with overrides. An empty
// override value removes the header.
func SecurityHeaders(overrides map[string]string) echo.MiddlewareFunc {
	headers := make(map[string]string, len(DefaultSecurityHeaders))
	for k, v := range DefaultSecurityHeaders {
		headers[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			delete(headers, k)
			continue
		}
		headers[k] = v
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
