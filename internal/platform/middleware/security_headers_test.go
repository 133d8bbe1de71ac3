package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurityHeaders(t *testing.T, overrides map[string]string, h echo.HandlerFunc) (http.Header, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), rec)
	err := SecurityHeaders(overrides)(h)(c)
	return rec.Header(), err
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	got, err := runSecurityHeaders(t, nil, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, want := range DefaultSecurityHeaders {
		if got.Get(name) != want {
			t.Errorf("%s = %q, want %q", name, got.Get(name), want)
		}
	}
}

func TestSecurityHeaders_SetBeforeHandlerFails(t *testing.T) {
	boom := echo.NewHTTPError(http.StatusNotFound, "patient not found")
	got, err := runSecurityHeaders(t, nil, func(c echo.Context) error { return boom })

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected the handler's 404, got %v", err)
	}
	if got.Get("Cache-Control") != "no-store" {
		t.Error("error responses must not be cached")
	}
}

func TestSecurityHeaders_Overrides(t *testing.T) {
	got, err := runSecurityHeaders(t, map[string]string{
		"Strict-Transport-Security": "",
		"X-Frame-Options":           "SAMEORIGIN",
	}, func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := got.Get("Strict-Transport-Security"); v != "" {
		t.Errorf("expected HSTS to be removed, got %q", v)
	}
	if v := got.Get("X-Frame-Options"); v != "SAMEORIGIN" {
		t.Errorf("expected override, got %q", v)
	}
	if DefaultSecurityHeaders["X-Frame-Options"] != "DENY" {
		t.Error("overrides must not mutate the defaults")
	}
}
