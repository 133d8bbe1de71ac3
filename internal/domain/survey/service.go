package survey

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/metrics"
	"github.com/mdhs/ehr/pkg/pagination"
)

type Service struct {
	repo    Repository
	guard   *access.Guard
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(repo Repository, guard *access.Guard, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{repo: repo, guard: guard, metrics: m, logger: logger}
}

// Submit scores and stores the caller's answers. A second submission
// replaces the first.
func (s *Service) Submit(ctx context.Context, actor auth.Actor, answers []int) (*Response, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	if len(answers) != NumQuestions {
		return nil, apperr.Validation("answers", fmt.Sprintf("exactly %d answers are required", NumQuestions))
	}
	resp := &Response{UserID: actor.UserID}
	copy(resp.Answers[:], answers)
	score, err := Score(resp.Answers)
	if err != nil {
		return nil, err
	}
	resp.Score = score

	if err := s.repo.Upsert(ctx, resp); err != nil {
		return nil, fmt.Errorf("save survey response: %w", err)
	}
	s.metrics.SurveySubmitted()
	s.logger.Info().
		Str("user_id", actor.UserID.String()).
		Float64("score", score).
		Msg("survey submitted")
	return resp, nil
}

// Get returns the caller's stored response, or nil when there is none yet.
func (s *Service) Get(ctx context.Context, actor auth.Actor) (*Response, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	resp, err := s.repo.GetByUser(ctx, actor.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return resp, err
}

func (s *Service) Summary(ctx context.Context, actor auth.Actor, p pagination.Params) (*Summary, error) {
	if err := s.guard.RequireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	responses, total, err := s.repo.List(ctx, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	mean, err := s.repo.MeanScore(ctx)
	if err != nil {
		return nil, err
	}
	if responses == nil {
		responses = []*Response{}
	}
	return &Summary{Count: total, MeanScore: mean, Responses: responses}, nil
}
