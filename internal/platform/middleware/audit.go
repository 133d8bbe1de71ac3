package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/platform/auth"
)

// AuditEntry records one access to patient data.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	ResourceID string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries in addition to the log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// phiResources are the first path segments below /api/v1 that expose
// patient data.
var phiResources = map[string]bool{
	"patients":        true,
	"visits":          true,
	"observations":    true,
	"allergies":       true,
	"medications":     true,
	"immunizations":   true,
	"procedures":      true,
	"vitals":          true,
	"medical-history": true,
	"appointments":    true,
	"documents":       true,
}

// Audit emits a type=phi_audit log entry for every request touching patient
// data, after the handler ran so the status code is known.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, resourceID := splitResource(req.URL.Path)
			if !phiResources[resource] {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entry := AuditEntry{
				Resource:   resource,
				ResourceID: resourceID,
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				Path:       req.URL.Path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if a, ok := auth.ActorFromContext(req.Context()); ok {
				entry.UserID = a.UserID.String()
				entry.Role = a.Role
			}
			if resource == "patients" {
				entry.PatientID = resourceID
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResource returns the first segment below /api/v1 and, when it is a
// UUID, the segment after it.
func splitResource(path string) (resource, id string) {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return "", ""
	}
	segments := strings.Split(rest, "/")
	resource = segments[0]
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			id = segments[1]
		}
	}
	return resource, id
}
