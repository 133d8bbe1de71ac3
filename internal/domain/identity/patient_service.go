package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/internal/platform/metrics"
	"github.com/mdhs/ehr/internal/platform/sequence"
	"github.com/mdhs/ehr/pkg/pagination"
)

// AttachmentPurger lists and removes the stored files of a patient.
type AttachmentPurger interface {
	StoragePaths(ctx context.Context, patientID uuid.UUID) ([]string, error)
	RemoveBlobs(ctx context.Context, paths []string)
}

type PatientService struct {
	repo    PatientRepository
	grants  access.Repository
	guard   *access.Guard
	ids     sequence.Generator
	tx      db.Transactor
	purger  AttachmentPurger
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewPatientService wires the patient use cases. purger may be nil.
func NewPatientService(repo PatientRepository, grants access.Repository, guard *access.Guard, ids sequence.Generator,
	tx db.Transactor, purger AttachmentPurger, m *metrics.Metrics, logger zerolog.Logger) *PatientService {
	return &PatientService{
		repo:    repo,
		grants:  grants,
		guard:   guard,
		ids:     ids,
		tx:      tx,
		purger:  purger,
		metrics: m,
		logger:  logger,
	}
}

func normalizePatient(in PatientInput, p *Patient) {
	in.apply(p)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.ContactNumber = strings.TrimSpace(p.ContactNumber)
	p.HomeAddress = strings.TrimSpace(p.HomeAddress)
}

// Create stores the patient with a generated display id and grants the
// creating doctor access, atomically.
func (s *PatientService) Create(ctx context.Context, actor auth.Actor, in PatientInput) (*Patient, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	p := &Patient{CreatedBy: actor.UserID}
	normalizePatient(in, p)

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := sequence.Allocate(ctx, s.ids, s.metrics, sequence.ScopePatient, "patient_id", constraintPatientID,
			func(ctx context.Context, displayID string) error {
				p.PatientID = displayID
				return s.repo.Create(ctx, p)
			})
		if err != nil {
			return err
		}
		by := actor.UserID
		if err := s.grants.Grant(ctx, &access.Grant{DoctorID: actor.UserID, PatientID: p.ID, GrantedBy: &by}); err != nil {
			return fmt.Errorf("grant creator access: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, translateConflict(err)
	}
	return p, nil
}

func (s *PatientService) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *PatientService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in PatientInput) (*Patient, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, id); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	normalizePatient(in, p)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the patient and everything recorded for them once the
// caller has typed the patient's full name. Stored files are removed after
// the transaction commits.
func (s *PatientService) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID, confirmName string) error {
	var paths []string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.guard.AuthorizePatient(ctx, actor, id); err != nil {
			return err
		}
		if err := s.guard.ConfirmPatient(ctx, id, confirmName); err != nil {
			return err
		}
		if s.purger != nil {
			var err error
			if paths, err = s.purger.StoragePaths(ctx, id); err != nil {
				return fmt.Errorf("list patient files: %w", err)
			}
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		s.purger.RemoveBlobs(ctx, paths)
	}

	s.logger.Info().
		Str("patient_id", id.String()).
		Str("user_id", actor.UserID.String()).
		Int("files", len(paths)).
		Msg("patient deleted")
	return nil
}

// List returns the patients the calling doctor has been granted.
func (s *PatientService) List(ctx context.Context, actor auth.Actor, p pagination.Params) ([]*Patient, int, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, 0, err
	}
	return s.repo.ListForDoctor(ctx, actor.UserID, p.Query, p.Limit, p.Offset)
}
