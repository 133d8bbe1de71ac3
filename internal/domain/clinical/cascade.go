package clinical

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/platform/auth"
)

// DeleteResult reports what a record deletion removed.
type DeleteResult struct {
	Deleted      bool `json:"deleted"`
	VisitDeleted bool `json:"visit_deleted"`
}

type childCounter struct {
	kind  Kind
	count func(ctx context.Context, visitID uuid.UUID) (int, error)
}

// deleteRecord removes one record and then the visit it belonged to if that
// visit has no records of any kind left. Everything runs in one transaction;
// the visit row is locked before the child is deleted so two concurrent
// deletions of a visit's last records cannot both see a remaining sibling.
func deleteRecord[T record](ctx context.Context, s *Service, repo Repository[T], kind Kind, actor auth.Actor, id uuid.UUID,
	confirm func(ctx context.Context, patientID uuid.UUID) error) (DeleteResult, error) {
	var res DeleteResult
	var visitID, patientID uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		rec, err := getRecord(ctx, s, repo, actor, id)
		if err != nil {
			return err
		}
		visitID, patientID = rec.base().VisitID, rec.base().PatientID
		if confirm != nil {
			if err := confirm(ctx, patientID); err != nil {
				return err
			}
		}
		exists, err := s.visits.Lock(ctx, visitID)
		if err != nil {
			return fmt.Errorf("lock visit: %w", err)
		}
		if err := repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", kind, err)
		}
		res.Deleted = true
		if !exists {
			return nil
		}
		res.VisitDeleted, err = s.cascadeVisit(ctx, visitID)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.logger.Info().
		Str("kind", string(kind)).
		Str("record_id", id.String()).
		Str("visit_id", visitID.String()).
		Str("patient_id", patientID.String()).
		Str("user_id", actor.UserID.String()).
		Bool("visit_deleted", res.VisitDeleted).
		Msg("clinical record deleted")
	if res.VisitDeleted {
		s.metrics.CascadeDeleted(string(kind))
	}
	return res, nil
}

// cascadeVisit deletes the visit when every kind reports zero records for it.
// The caller holds the visit row lock.
func (s *Service) cascadeVisit(ctx context.Context, visitID uuid.UUID) (bool, error) {
	for _, c := range s.counters {
		n, err := c.count(ctx, visitID)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", c.kind, err)
		}
		if n > 0 {
			return false, nil
		}
	}
	if err := s.visits.Delete(ctx, visitID); err != nil {
		return false, fmt.Errorf("delete empty visit: %w", err)
	}
	return true, nil
}

func (s *Service) DeleteObservation(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Observations, KindObservation, actor, id, nil)
}

func (s *Service) DeleteAllergy(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Allergies, KindAllergy, actor, id, nil)
}

func (s *Service) DeleteMedication(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Medications, KindMedication, actor, id, nil)
}

func (s *Service) DeleteImmunization(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Immunizations, KindImmunization, actor, id, nil)
}

func (s *Service) DeleteProcedure(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Procedures, KindProcedure, actor, id, nil)
}

func (s *Service) DeleteVitals(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord[*Vitals](ctx, s, s.repos.Vitals, KindVitals, actor, id, nil)
}

// DeleteMedicalHistory additionally requires the patient's name as confirmation.
func (s *Service) DeleteMedicalHistory(ctx context.Context, actor auth.Actor, id uuid.UUID, confirmName string) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.MedicalHistory, KindMedicalHistory, actor, id,
		func(ctx context.Context, patientID uuid.UUID) error {
			return s.guard.ConfirmPatient(ctx, patientID, confirmName)
		})
}

func (s *Service) DeleteAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (DeleteResult, error) {
	return deleteRecord(ctx, s, s.repos.Appointments, KindAppointment, actor, id, nil)
}
