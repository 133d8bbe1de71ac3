// Package apperr defines the error taxonomy shared by services and handlers.
// Services wrap one of the sentinel errors; handlers translate the result into
// an HTTP response exactly once through HTTPError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrConfirmation = errors.New("confirmation does not match")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldError carries field level messages for validation and uniqueness failures.
type FieldError struct {
	Kind   error
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *FieldError) Unwrap() error { return e.Kind }

// Validation returns a validation error for a single field.
func Validation(field, msg string) error {
	return &FieldError{Kind: ErrValidation, Fields: map[string]string{field: msg}}
}

// ValidationFields returns a validation error covering several fields.
func ValidationFields(fields map[string]string) error {
	return &FieldError{Kind: ErrValidation, Fields: fields}
}

// Conflict returns a uniqueness error for field.
func Conflict(field, msg string) error {
	return &FieldError{Kind: ErrConflict, Fields: map[string]string{field: msg}}
}

// NotFound wraps ErrNotFound with the resource name.
func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// Forbidden wraps ErrForbidden with a reason that is logged but not shown to the caller.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

type publicError struct {
	kind error
	msg  string
}

func (e *publicError) Error() string { return e.msg }

func (e *publicError) Unwrap() error { return e.kind }

// Unauthorized wraps ErrUnauthorized with a message that is shown to the caller.
func Unauthorized(msg string) error {
	return &publicError{kind: ErrUnauthorized, msg: msg}
}

// Fields returns the field messages carried by err, if any.
func Fields(err error) map[string]string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Fields
	}
	return nil
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		if len(Fields(err)) > 1 {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConfirmation), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error payload consumed by the front end for flash messages.
type Body struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HTTPError converts err into an echo error carrying a Body. Authorization
// failures never expose their internal reason.
func HTTPError(err error) *echo.HTTPError {
	status := Status(err)
	msg := err.Error()
	switch status {
	case http.StatusForbidden:
		msg = ErrForbidden.Error()
	case http.StatusUnauthorized:
		msg = ErrUnauthorized.Error()
		var pe *publicError
		if errors.As(err, &pe) {
			msg = pe.msg
		}
	case http.StatusInternalServerError:
		msg = "internal server error"
	}
	return echo.NewHTTPError(status, Body{Success: false, Message: msg, Fields: Fields(err)})
}
