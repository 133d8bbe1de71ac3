package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/platform/auth"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h := RequestID()(func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = RequestID()(okHandler)(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestLogger_AttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())
	c.Set("request_id", "req-1")

	h := Logger(logger)(func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Info().Msg("inside")
		return okHandler(c)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, `"request_id":"req-1"`) != 2 {
		t.Errorf("expected request id on both log lines, got %s", out)
	}
}

func TestLogger_HandlesError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/missing", nil), rec)

	h := Logger(zerolog.Nop())(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})
	if err := h(c); err != nil {
		t.Fatalf("expected error to be handled, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())
	if err := Recovery(zerolog.Nop())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	patientID := uuid.New()
	userID := uuid.New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/"+patientID.String(), nil)
	req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{UserID: userID, Role: auth.RoleDoctor}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})
	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Action != "delete" || entry.Resource != "patients" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.PatientID != patientID.String() || entry.UserID != userID.String() {
		t.Errorf("unexpected ids in entry %+v", entry)
	}
	if entry.RequestID != "req-123" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected request metadata %+v", entry)
	}
}

func TestAudit_SkipsNonPHIRoutes(t *testing.T) {
	e := echo.New()
	called := false
	rec := AuditRecorderFunc(func(AuditEntry) error {
		called = true
		return nil
	})
	for _, path := range []string{"/health", "/api/v1/auth/login", "/api/v1/survey"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		_ = Audit(zerolog.Nop(), rec)(okHandler)(c)
	}
	if called {
		t.Error("expected no audit entries for non-PHI routes")
	}
}

func TestSplitResource(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/visits/" + id + "/vitals", "visits", id},
		{"/api/v1/medical-history/" + id, "medical-history", id},
		{"/api/v1/patients", "patients", ""},
		{"/api/v1/patients/not-a-uuid", "patients", ""},
		{"/health", "", ""},
	}
	for _, tt := range tests {
		resource, gotID := splitResource(tt.path)
		if resource != tt.resource || gotID != tt.id {
			t.Errorf("splitResource(%q) = (%q, %q), want (%q, %q)", tt.path, resource, gotID, tt.resource, tt.id)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	mw := BodyLimit(BodyLimits{JSON: 10, Upload: 1 << 10})

	body := strings.Repeat("x", 20)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	err := mw(okHandler)(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/patients/x/documents", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEMultipartForm+"; boundary=abc")
	c = e.NewContext(req, httptest.NewRecorder())
	if err := mw(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c); err != nil {
		t.Fatalf("expected multipart body within upload limit, got %v", err)
	}
}

func TestBodyLimit_StreamingOverflow(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("y", 64))))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit(BodyLimits{JSON: 16, Upload: 16})(func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	})(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 while streaming, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequestTimeout(10*time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if err := RequestTimeout(time.Second)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
