package access

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
)

func newTestService() (*Service, *MemoryRepo) {
	g, repo, _ := newTestGuard()
	return NewService(repo, g, db.NopTransactor{}), repo
}

func TestGrantByUsername(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	owner := doctor()
	colleague := &Doctor{ID: uuid.New(), Username: "house", FirstName: "Greg", LastName: "House"}
	repo.AddDoctor(&Doctor{ID: owner.UserID, Username: "owner"})
	repo.AddDoctor(colleague)
	patientID := uuid.New()
	repo.AddPatient(patientID, "Jane", "Doe")
	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: owner.UserID, PatientID: patientID}))

	g, err := svc.GrantByUsername(ctx, owner, patientID, "house")
	require.NoError(t, err)
	assert.Equal(t, colleague.ID, g.DoctorID)
	require.NotNil(t, g.GrantedBy)
	assert.Equal(t, owner.UserID, *g.GrantedBy)

	doctors, err := svc.ListDoctors(ctx, owner, patientID)
	require.NoError(t, err)
	assert.Len(t, doctors, 2)

	_, err = svc.GrantByUsername(ctx, owner, patientID, "nobody")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.Fields(err), "username")
}

func TestGrantByUsername_RequiresGrant(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	repo.AddDoctor(&Doctor{ID: uuid.New(), Username: "house"})
	patientID := uuid.New()

	_, err := svc.GrantByUsername(ctx, doctor(), patientID, "house")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	n, _ := repo.CountGrants(ctx, patientID)
	assert.Zero(t, n)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	owner := doctor()
	other := uuid.New()
	patientID := uuid.New()
	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: owner.UserID, PatientID: patientID}))

	err := svc.Revoke(ctx, owner, patientID, owner.UserID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "last grant must stay")

	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: other, PatientID: patientID}))
	require.NoError(t, svc.Revoke(ctx, owner, patientID, other))
	ok, _ := repo.HasGrant(ctx, other, patientID)
	assert.False(t, ok)

	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: other, PatientID: patientID}))
	assert.ErrorIs(t, svc.Revoke(ctx, owner, patientID, uuid.New()), apperr.ErrNotFound)
}

func TestRevoke_ConcurrentRevokesKeepOneDoctor(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	a, b := doctor(), doctor()
	patientID := uuid.New()
	repo.AddPatient(patientID, "Jane", "Doe")
	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: a.UserID, PatientID: patientID}))
	require.NoError(t, repo.Grant(ctx, &Grant{DoctorID: b.UserID, PatientID: patientID}))

	// Each doctor removes their own grant at the same time.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, actor := range []auth.Actor{a, b} {
		wg.Add(1)
		go func(i int, actor auth.Actor) {
			defer wg.Done()
			<-start
			errs[i] = svc.Revoke(ctx, actor, patientID, actor.UserID)
		}(i, actor)
	}
	close(start)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, apperr.ErrValidation)
		}
	}
	assert.Equal(t, 1, failed, "exactly one revoke must be refused")
	n, _ := repo.CountGrants(ctx, patientID)
	assert.Equal(t, 1, n)
}
