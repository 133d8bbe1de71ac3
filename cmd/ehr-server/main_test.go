package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/config"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "0",
		Env:            "test",
		JWTSigningKey:  "test-signing-key-with-at-least-32-bytes",
		JWTIssuer:      "mdhs-ehr",
		TokenTTL:       time.Hour,
		ResetTokenTTL:  time.Hour,
		PublicBaseURL:  "http://localhost:3000",
		DevUserRole:    "doctor",
		CORSOrigins:    []string{"http://localhost:3000"},
		UploadDir:      t.TempDir(),
		MaxUploadMB:    10,
		RateLimitRPS:   0.001,
		RateLimitBurst: 2,
		RequestTimeout: 5 * time.Second,
	}
}

// newTestApp builds the app without a database. Only routes that fail before
// reaching a repository may be exercised.
func newTestApp(t *testing.T) (*app, *echo.Echo) {
	t.Helper()
	a, err := newApp(testConfig(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	t.Cleanup(a.Close)
	return a, a.router()
}

func do(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RegistersAllRoutes(t *testing.T) {
	_, e := newTestApp(t)

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	want := []string{
		"GET /health",
		"GET /health/db",
		"GET /metrics",
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/password-reset",
		"POST /api/v1/auth/password-reset/:token",
		"GET /api/v1/account",
		"PUT /api/v1/account",
		"POST /api/v1/account/image",
		"GET /api/v1/admin/users",
		"GET /api/v1/patients",
		"POST /api/v1/patients",
		"GET /api/v1/patients/:id",
		"PUT /api/v1/patients/:id",
		"DELETE /api/v1/patients/:id",
		"GET /api/v1/patients/:id/doctors",
		"POST /api/v1/patients/:id/doctors",
		"DELETE /api/v1/patients/:id/doctors/:doctorId",
		"GET /api/v1/patients/:id/visits",
		"POST /api/v1/patients/:id/visits",
		"GET /api/v1/visits/:id",
		"PUT /api/v1/visits/:id",
		"DELETE /api/v1/visits/:id",
		"GET /api/v1/visits/:id/records",
		"GET /api/v1/patients/:id/vitals/chart",
		"POST /api/v1/visits/:id/observations",
		"DELETE /api/v1/medical-history/:id",
		"GET /api/v1/appointments/:id",
		"POST /api/v1/patients/:id/documents",
		"GET /api/v1/documents/:id/content",
		"DELETE /api/v1/documents/:id",
		"GET /api/v1/survey",
		"POST /api/v1/survey",
		"GET /api/v1/admin/surveys",
	}
	for _, r := range want {
		if !registered[r] {
			t.Errorf("route %s is not registered", r)
		}
	}
}

func TestRouter_PublicAndProtectedPaths(t *testing.T) {
	_, e := newTestApp(t)

	if rec := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /health: expected 200, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics: expected 200, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/patients", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/v1/patients without token: expected 401, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/patients", "", "not-a-jwt"); rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/v1/patients with garbage token: expected 401, got %d", rec.Code)
	}

	// Public auth routes are reachable without a token; an empty body fails
	// validation before any repository is touched.
	if rec := do(e, http.MethodPost, "/api/v1/auth/login", `{}`, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST /api/v1/auth/login: expected 422, got %d", rec.Code)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	_, e := newTestApp(t)
	rec := do(e, http.MethodGet, "/health", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected nosniff header, got %q", rec.Header().Get("X-Content-Type-Options"))
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id")
	}
}

func TestRouter_RoleGates(t *testing.T) {
	a, e := newTestApp(t)

	adminToken, _, err := a.tokens.Issue(uuid.New(), auth.RoleAdmin, "admin@example.org")
	if err != nil {
		t.Fatal(err)
	}
	doctorToken, _, err := a.tokens.Issue(uuid.New(), auth.RoleDoctor, "doc@example.org")
	if err != nil {
		t.Fatal(err)
	}

	if rec := do(e, http.MethodGet, "/api/v1/patients", "", adminToken); rec.Code != http.StatusForbidden {
		t.Errorf("admin on doctor route: expected 403, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/admin/users", "", doctorToken); rec.Code != http.StatusForbidden {
		t.Errorf("doctor on admin route: expected 403, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/admin/surveys", "", doctorToken); rec.Code != http.StatusForbidden {
		t.Errorf("doctor on survey summary: expected 403, got %d", rec.Code)
	}
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	a, e := newTestApp(t)
	token, _, err := a.tokens.Issue(uuid.New(), auth.RoleAdmin, "admin@example.org")
	if err != nil {
		t.Fatal(err)
	}

	if rec := do(e, http.MethodPost, "/api/v1/auth/logout", "", token); rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/api/v1/admin/users", "", token); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestRouter_RateLimitsCredentialRoutes(t *testing.T) {
	_, e := newTestApp(t)

	for i := 0; i < 2; i++ {
		if rec := do(e, http.MethodPost, "/api/v1/auth/login", `{}`, ""); rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i+1)
		}
	}
	rec := do(e, http.MethodPost, "/api/v1/auth/login", `{}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestNewRevocationStore(t *testing.T) {
	cfg := testConfig(t)

	store, client, err := newRevocationStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mem, ok := store.(*auth.MemoryRevocationStore)
	if !ok || client != nil {
		t.Fatalf("expected memory store without REDIS_URL, got %T", store)
	}
	mem.Close()

	cfg.RedisURL = "redis://localhost:6379/0"
	store, client, err = newRevocationStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*auth.RedisRevocationStore); !ok || client == nil {
		t.Errorf("expected redis store, got %T", store)
	}
	client.Close()

	cfg.RedisURL = "not a url"
	if _, _, err := newRevocationStore(cfg, zerolog.Nop()); err == nil {
		t.Error("expected an error for a malformed REDIS_URL")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "initial", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "survey", Applied: false},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and two rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-03-01 12:00:00") {
		t.Errorf("unexpected applied row %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row %q", lines[3])
	}
}

func TestDemoAccount_PassesValidation(t *testing.T) {
	req := demoAccount("demo.doctor", auth.RoleDoctor, "Demo1234")
	if len(req.IDCardNumber) != 11 {
		t.Errorf("expected an 11 digit id card number, got %q", req.IDCardNumber)
	}
	if req.Email != "demo.doctor@mdhs.local" {
		t.Errorf("unexpected email %q", req.Email)
	}
	if req.ConfirmPassword != req.Password {
		t.Error("confirmation must match the password")
	}
}
