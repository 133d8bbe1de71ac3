// Package access decides who may touch which patient. Every read or write of
// patient data goes through Guard.AuthorizePatient before the store is hit.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/metrics"
)

// Denial reasons, used as the metrics label.
const (
	ReasonRole    = "role"
	ReasonNoGrant = "no_grant"
)

type Guard struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewGuard(repo Repository, m *metrics.Metrics, logger zerolog.Logger) *Guard {
	return &Guard{repo: repo, metrics: m, logger: logger}
}

// RequireRole fails with ErrForbidden unless the actor has one of roles.
// Admins are not let through doctor-only checks.
func (g *Guard) RequireRole(actor auth.Actor, roles ...string) error {
	for _, r := range roles {
		if actor.Is(r) {
			return nil
		}
	}
	return g.deny(actor, ReasonRole, fmt.Sprintf("role %q, required %s", actor.Role, strings.Join(roles, " or ")))
}

// AuthorizePatient admits doctors holding a grant for patientID. Callers
// without a grant are refused whether or not the patient exists.
func (g *Guard) AuthorizePatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID) error {
	if err := g.RequireRole(actor, auth.RoleDoctor); err != nil {
		return err
	}
	ok, err := g.repo.HasGrant(ctx, actor.UserID, patientID)
	if err != nil {
		return fmt.Errorf("check grant: %w", err)
	}
	if !ok {
		return g.deny(actor, ReasonNoGrant, "no grant for patient "+patientID.String())
	}
	return nil
}

// ConfirmPatient checks the typed confirmation against the patient's name.
func (g *Guard) ConfirmPatient(ctx context.Context, patientID uuid.UUID, input string) error {
	first, last, err := g.repo.PatientName(ctx, patientID)
	if err != nil {
		return err
	}
	return ConfirmName(first, last, input)
}

func (g *Guard) deny(actor auth.Actor, reason, detail string) error {
	g.metrics.AccessDenied(reason)
	g.logger.Warn().
		Str("user_id", actor.UserID.String()).
		Str("role", actor.Role).
		Str("reason", reason).
		Msg("access denied: " + detail)
	return apperr.Forbidden(detail)
}

// ConfirmName compares "first last" with input ignoring case, surrounding
// whitespace and runs of inner whitespace.
func ConfirmName(first, last, input string) error {
	want := normalizeName(first + " " + last)
	if want == "" || !strings.EqualFold(want, normalizeName(input)) {
		return fmt.Errorf("type the patient's full name to confirm: %w", apperr.ErrConfirmation)
	}
	return nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
