package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/metrics"
)

func deniedCount(t *testing.T, m *metrics.Metrics, reason string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "ehr_access_denied_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == reason {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func newTestGuard() (*Guard, *MemoryRepo, *metrics.Metrics) {
	repo := NewMemoryRepo()
	m := metrics.New()
	return NewGuard(repo, m, zerolog.Nop()), repo, m
}

func doctor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: auth.RoleDoctor}
}

func TestRequireRole(t *testing.T) {
	g, _, m := newTestGuard()

	assert.NoError(t, g.RequireRole(doctor(), auth.RoleDoctor))
	assert.NoError(t, g.RequireRole(auth.Actor{Role: auth.RoleAdmin}, auth.RoleAdmin, auth.RoleDoctor))

	err := g.RequireRole(auth.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}, auth.RoleDoctor)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, 1.0, deniedCount(t, m, ReasonRole))
}

func TestAuthorizePatient(t *testing.T) {
	ctx := context.Background()
	g, repo, m := newTestGuard()
	doc := doctor()
	patientID := uuid.New()
	repo.AddPatient(patientID, "Jane", "Doe")

	err := g.AuthorizePatient(ctx, doc, patientID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: doc.UserID, PatientID: patientID}))
	assert.NoError(t, g.AuthorizePatient(ctx, doc, patientID))

	// a granted admin account is still not a doctor
	admin := auth.Actor{UserID: doc.UserID, Role: auth.RoleAdmin}
	assert.ErrorIs(t, g.AuthorizePatient(ctx, admin, patientID), apperr.ErrForbidden)

	assert.Equal(t, 1.0, deniedCount(t, m, ReasonNoGrant))
	assert.Equal(t, 1.0, deniedCount(t, m, ReasonRole))
}

func TestAuthorizePatient_UnknownPatientIsForbidden(t *testing.T) {
	g, _, _ := newTestGuard()
	err := g.AuthorizePatient(context.Background(), doctor(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConfirmName(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"jane doe", true},
		{"Jane Doe", true},
		{"  JANE   doe ", true},
		{"Jane D", false},
		{"Doe Jane", false},
		{"", false},
	}
	for _, tt := range tests {
		err := ConfirmName("Jane", "Doe", tt.input)
		if tt.ok {
			assert.NoError(t, err, tt.input)
		} else {
			assert.ErrorIs(t, err, apperr.ErrConfirmation, tt.input)
		}
	}
}

func TestConfirmPatient(t *testing.T) {
	ctx := context.Background()
	g, repo, _ := newTestGuard()
	id := uuid.New()
	repo.AddPatient(id, "Jane", "Doe")

	assert.NoError(t, g.ConfirmPatient(ctx, id, "jane doe"))
	assert.ErrorIs(t, g.ConfirmPatient(ctx, id, "Jane D"), apperr.ErrConfirmation)
	assert.ErrorIs(t, g.ConfirmPatient(ctx, uuid.New(), "jane doe"), apperr.ErrNotFound)
}
