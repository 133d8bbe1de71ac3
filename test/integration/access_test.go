//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
)

func TestGrants_ConcurrentRevokesKeepOneDoctor(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	house := s.doctor(t, "house")
	wilson := s.doctor(t, "wilson")

	for round := 0; round < 5; round++ {
		p := s.patient(t, house, "Ada", "Lovelace")
		_, err := s.grants.GrantByUsername(ctx, house, p.ID, "wilson")
		require.NoError(t, err)

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, actor := range []auth.Actor{house, wilson} {
			wg.Add(1)
			go func(i int, actor auth.Actor) {
				defer wg.Done()
				<-start
				errs[i] = s.grants.Revoke(ctx, actor, p.ID, actor.UserID)
			}(i, actor)
		}
		close(start)
		wg.Wait()

		refused := 0
		for _, err := range errs {
			if err != nil {
				refused++
				assert.True(t, errors.Is(err, apperr.ErrValidation), "round %d: got %v", round, err)
			}
		}
		assert.Equal(t, 1, refused, "round %d: exactly one revoke must be refused", round)
		assert.Equal(t, 1, countRows(t, "doctor_patient", "patient_id", p.ID), "round %d", round)
	}
}
