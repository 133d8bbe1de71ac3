package encounter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/pkg/pagination"
)

type Service struct {
	repo   Repository
	guard  *access.Guard
	tx     db.Transactor
	logger zerolog.Logger
}

func NewService(repo Repository, guard *access.Guard, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, guard: guard, tx: tx, logger: logger}
}

var validStatuses = map[string]bool{
	"planned":     true,
	"in-progress": true,
	"completed":   true,
	"cancelled":   true,
}

var validClasses = map[string]bool{
	"outpatient": true,
	"inpatient":  true,
	"virtual":    true,
}

var validPriorities = map[string]bool{
	"routine": true,
	"urgent":  true,
	"asap":    true,
	"stat":    true,
}

func validateVisit(v *Visit) error {
	if v.Status == "" {
		v.Status = "planned"
	}
	if v.ClassCode == "" {
		v.ClassCode = "outpatient"
	}
	if v.Priority == "" {
		v.Priority = "routine"
	}
	fields := map[string]string{}
	if v.VisitDate.IsZero() {
		fields["visit_date"] = "this field is required"
	}
	if strings.TrimSpace(v.ReasonCode) == "" {
		fields["reason_code"] = "this field is required"
	}
	if !validStatuses[v.Status] {
		fields["status"] = "invalid status: " + v.Status
	}
	if !validClasses[v.ClassCode] {
		fields["class_code"] = "invalid class: " + v.ClassCode
	}
	if !validPriorities[v.Priority] {
		fields["priority"] = "invalid priority: " + v.Priority
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, patientID uuid.UUID, in VisitInput) (*Visit, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	v := &Visit{PatientID: patientID, DoctorID: actor.UserID}
	in.apply(v)
	if err := validateVisit(v); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, v); err != nil {
		if _, ok := db.ForeignKeyViolation(err); ok {
			return nil, apperr.NotFound("patient")
		}
		return nil, fmt.Errorf("create visit: %w", err)
	}
	return v, nil
}

// Get loads a visit and checks the caller's grant on its patient.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Visit, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizePatient(ctx, actor, v.PatientID); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in VisitInput) (*Visit, error) {
	v, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	in.apply(v)
	if err := validateVisit(v); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("update visit: %w", err)
	}
	return v, nil
}

// Delete removes the visit and, through the foreign keys, all of its
// clinical records. confirmName must match the patient's name.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID, confirmName string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		v, err := s.Get(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := s.guard.ConfirmPatient(ctx, v.PatientID, confirmName); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Info().
			Str("visit_id", id.String()).
			Str("patient_id", v.PatientID.String()).
			Str("user_id", actor.UserID.String()).
			Msg("visit deleted")
		return nil
	})
}

func (s *Service) ListByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, p pagination.Params) ([]*Visit, int, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, p.Limit, p.Offset)
}
