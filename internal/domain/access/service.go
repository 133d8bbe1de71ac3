package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
)

// Service manages which doctors hold a grant for a patient.
type Service struct {
	repo  Repository
	guard *Guard
	tx    db.Transactor
}

func NewService(repo Repository, guard *Guard, tx db.Transactor) *Service {
	return &Service{repo: repo, guard: guard, tx: tx}
}

func (s *Service) ListDoctors(ctx context.Context, actor auth.Actor, patientID uuid.UUID) ([]*Doctor, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListDoctors(ctx, patientID)
}

// GrantByUsername shares the patient with another doctor. Granting twice is a no-op.
func (s *Service) GrantByUsername(ctx context.Context, actor auth.Actor, patientID uuid.UUID, username string) (*Grant, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	doctorID, err := s.repo.DoctorByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("username", "no doctor with this username")
	}
	if err != nil {
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	by := actor.UserID
	g := &Grant{DoctorID: doctorID, PatientID: patientID, GrantedBy: &by}
	if err := s.repo.Grant(ctx, g); err != nil {
		return nil, fmt.Errorf("grant access: %w", err)
	}
	return g, nil
}

// Revoke removes a doctor's grant. The last grant of a patient cannot be
// removed, otherwise nobody could reach the record again.
func (s *Service) Revoke(ctx context.Context, actor auth.Actor, patientID, doctorID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
			return err
		}
		err := s.repo.RevokeUnlessLast(ctx, doctorID, patientID)
		switch {
		case errors.Is(err, ErrLastGrant):
			return apperr.Validation("doctor_id", "a patient must keep at least one doctor")
		case errors.Is(err, apperr.ErrNotFound):
			return err
		case err != nil:
			return fmt.Errorf("revoke grant: %w", err)
		}
		return nil
	})
}
