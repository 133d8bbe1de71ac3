//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/pkg/pagination"
)

func TestSurvey_UpsertAndSummary(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	house := s.doctor(t, "house")
	wilson := s.doctor(t, "wilson")
	admin := auth.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}

	best := []int{5, 1, 5, 1, 5, 1, 5, 1, 5, 1}
	worst := []int{1, 5, 1, 5, 1, 5, 1, 5, 1, 5}
	neutral := []int{3, 3, 3, 3, 3, 3, 3, 3, 3, 3}

	first, err := s.surveys.Submit(ctx, house, worst)
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.Score)

	again, err := s.surveys.Submit(ctx, house, best)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 100.0, again.Score)

	_, err = s.surveys.Submit(ctx, wilson, neutral)
	require.NoError(t, err)

	got, err := s.surveys.Get(ctx, house)
	require.NoError(t, err)
	assert.Equal(t, best, got.Answers[:])

	sum, err := s.surveys.Summary(ctx, admin, pagination.Params{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 75.0, sum.MeanScore, 0.001)
	assert.Len(t, sum.Responses, 2)
}
