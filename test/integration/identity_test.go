//go:build integration

package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/domain/identity"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/notification"
	"github.com/mdhs/ehr/internal/platform/sequence"
)

func TestDisplayIDs_SequentialPerYear(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	doctor := s.doctor(t, "house")

	first := s.patient(t, doctor, "Ada", "Lovelace")
	second := s.patient(t, doctor, "Grace", "Hopper")
	assert.Equal(t, "MDHS-2026-0001", first.PatientID)
	assert.Equal(t, "MDHS-2026-0002", second.PatientID)

	next := newStack(t, fixedYear(2027))
	d2 := next.doctor(t, "wilson")
	assert.Equal(t, "MDHS-2027-0001", next.patient(t, d2, "Alan", "Turing").PatientID)
}

func TestDisplayIDs_SeededFromExistingRows(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	doctor := s.doctor(t, "house")
	s.patient(t, doctor, "Ada", "Lovelace")

	// Rows imported without going through the counter.
	_, err := pool.Exec(ctx, `UPDATE patient SET patient_id = 'MDHS-2026-0041'`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `DELETE FROM display_id_counter WHERE scope = $1`, string(sequence.ScopePatient))
	require.NoError(t, err)

	assert.Equal(t, "MDHS-2026-0042", s.patient(t, doctor, "Grace", "Hopper").PatientID)
}

func TestDisplayIDs_ConcurrentAllocationsAreUnique(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	doctor := s.doctor(t, "house")

	const n = 8
	ids := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.patients.Create(context.Background(), doctor, identity.PatientInput{
				FirstName: "Same", LastName: "Name", Gender: "male",
				ContactNumber: "5550100001", HomeAddress: "3 Loop Road",
			})
			if err != nil {
				errs <- err
				return
			}
			ids <- p.PatientID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		t.Errorf("create patient: %v", err)
	}

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate display id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestRegister_UniqueConstraints(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()

	u, err := s.accounts.Register(ctx, registerRequest("house", "house@example.org"))
	require.NoError(t, err)
	assert.Equal(t, "MDHS-USER-2026-0001", u.UserID)

	_, err = s.accounts.Register(ctx, registerRequest("house", "other@example.org"))
	require.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	assert.Contains(t, apperr.Fields(err), "username")

	// Email uniqueness ignores case.
	_, err = s.accounts.Register(ctx, registerRequest("wilson", "HOUSE@example.org"))
	require.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	assert.Contains(t, apperr.Fields(err), "email")

	// The failed inserts rolled back with their counter increments.
	u, err = s.accounts.Register(ctx, registerRequest("wilson", "wilson@example.org"))
	require.NoError(t, err)
	assert.Equal(t, "MDHS-USER-2026-0002", u.UserID)
}

func TestLoginAndPasswordReset(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()

	_, err := s.accounts.Register(ctx, registerRequest("house", "house@example.org"))
	require.NoError(t, err)

	_, err = s.accounts.Login(ctx, identity.LoginRequest{Username: "house", Password: "Secret123", Role: auth.RoleDoctor})
	require.NoError(t, err)
	_, err = s.accounts.Login(ctx, identity.LoginRequest{Username: "house", Password: "Secret123", Role: auth.RoleAdmin})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized), "wrong role must not log in, got %v", err)

	require.NoError(t, s.accounts.RequestPasswordReset(ctx, "house@example.org"))
	calls := s.mail.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "house@example.org", calls[0].To)
	token := resetToken(t, calls[0])

	require.NoError(t, s.accounts.ResetPassword(ctx, token,
		identity.PasswordResetConfirm{Password: "Changed123", ConfirmPassword: "Changed123"}))
	_, err = s.accounts.Login(ctx, identity.LoginRequest{Username: "house", Password: "Changed123", Role: auth.RoleDoctor})
	require.NoError(t, err)

	err = s.accounts.ResetPassword(ctx, token,
		identity.PasswordResetConfirm{Password: "Another123", ConfirmPassword: "Another123"})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "reset links are single use, got %v", err)
}

func resetToken(t *testing.T, call notification.EmailCall) string {
	t.Helper()
	const marker = "http://localhost:3000/reset-password/"
	i := strings.Index(call.Body, marker)
	require.GreaterOrEqual(t, i, 0, "reset link missing from %q", call.Body)
	token := call.Body[i+len(marker):]
	if end := strings.IndexAny(token, " \r\n"); end >= 0 {
		token = token[:end]
	}
	return token
}
