package clinical

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/internal/platform/metrics"
	"github.com/mdhs/ehr/pkg/pagination"
)

type Service struct {
	visits  VisitStore
	repos   Repositories
	guard   *access.Guard
	tx      db.Transactor
	metrics *metrics.Metrics
	logger  zerolog.Logger

	counters []childCounter
}

func NewService(visits VisitStore, repos Repositories, guard *access.Guard, tx db.Transactor,
	m *metrics.Metrics, logger zerolog.Logger) *Service {
	s := &Service{visits: visits, repos: repos, guard: guard, tx: tx, metrics: m, logger: logger}
	s.counters = []childCounter{
		{KindObservation, repos.Observations.CountByVisit},
		{KindAllergy, repos.Allergies.CountByVisit},
		{KindMedication, repos.Medications.CountByVisit},
		{KindImmunization, repos.Immunizations.CountByVisit},
		{KindProcedure, repos.Procedures.CountByVisit},
		{KindVitals, repos.Vitals.CountByVisit},
		{KindMedicalHistory, repos.MedicalHistory.CountByVisit},
		{KindAppointment, repos.Appointments.CountByVisit},
	}
	return s
}

// authorizeVisit loads a visit for a doctor holding a grant on its patient.
// The role check comes first so non-doctors learn nothing about the id.
func (s *Service) authorizeVisit(ctx context.Context, actor auth.Actor, visitID uuid.UUID) (*encounter.Visit, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizePatient(ctx, actor, v.PatientID); err != nil {
		return nil, err
	}
	return v, nil
}

func createRecord[T record](ctx context.Context, s *Service, repo Repository[T], actor auth.Actor, visitID uuid.UUID, rec T) (T, error) {
	var zero T
	visit, err := s.authorizeVisit(ctx, actor, visitID)
	if err != nil {
		return zero, err
	}
	if err := rec.check(); err != nil {
		return zero, err
	}
	b := rec.base()
	b.PatientID = visit.PatientID
	b.VisitID = visit.ID
	b.RecordedBy = actor.UserID
	if err := repo.Create(ctx, rec); err != nil {
		// The visit was removed by a cascade that committed after the check.
		if _, ok := db.ForeignKeyViolation(err); ok {
			return zero, apperr.NotFound("visit")
		}
		return zero, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

func getRecord[T record](ctx context.Context, s *Service, repo Repository[T], actor auth.Actor, id uuid.UUID) (T, error) {
	var zero T
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return zero, err
	}
	rec, err := repo.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := s.guard.AuthorizePatient(ctx, actor, rec.base().PatientID); err != nil {
		return zero, err
	}
	return rec, nil
}

// updateRecord replaces the kind specific fields of the record with those of
// in. Ownership columns are kept from the stored row.
func updateRecord[T record](ctx context.Context, s *Service, repo Repository[T], actor auth.Actor, id uuid.UUID, in T) (T, error) {
	var zero T
	existing, err := getRecord(ctx, s, repo, actor, id)
	if err != nil {
		return zero, err
	}
	if err := in.check(); err != nil {
		return zero, err
	}
	*in.base() = *existing.base()
	if err := repo.Update(ctx, in); err != nil {
		return zero, fmt.Errorf("update record: %w", err)
	}
	return in, nil
}

func listRecords[T record](ctx context.Context, s *Service, repo Repository[T], actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]T, int, error) {
	if _, err := s.authorizeVisit(ctx, actor, visitID); err != nil {
		return nil, 0, err
	}
	return repo.ListByVisit(ctx, visitID, p.Limit, p.Offset)
}

// -- Observation --

func (s *Service) CreateObservation(ctx context.Context, actor auth.Actor, visitID uuid.UUID, o *Observation) (*Observation, error) {
	return createRecord(ctx, s, s.repos.Observations, actor, visitID, o)
}

func (s *Service) GetObservation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Observation, error) {
	return getRecord(ctx, s, s.repos.Observations, actor, id)
}

func (s *Service) UpdateObservation(ctx context.Context, actor auth.Actor, id uuid.UUID, o *Observation) (*Observation, error) {
	return updateRecord(ctx, s, s.repos.Observations, actor, id, o)
}

func (s *Service) ListObservations(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*Observation, int, error) {
	return listRecords(ctx, s, s.repos.Observations, actor, visitID, p)
}

// -- AllergyIntolerance --

func (s *Service) CreateAllergy(ctx context.Context, actor auth.Actor, visitID uuid.UUID, a *AllergyIntolerance) (*AllergyIntolerance, error) {
	return createRecord(ctx, s, s.repos.Allergies, actor, visitID, a)
}

func (s *Service) GetAllergy(ctx context.Context, actor auth.Actor, id uuid.UUID) (*AllergyIntolerance, error) {
	return getRecord(ctx, s, s.repos.Allergies, actor, id)
}

func (s *Service) UpdateAllergy(ctx context.Context, actor auth.Actor, id uuid.UUID, a *AllergyIntolerance) (*AllergyIntolerance, error) {
	return updateRecord(ctx, s, s.repos.Allergies, actor, id, a)
}

func (s *Service) ListAllergies(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*AllergyIntolerance, int, error) {
	return listRecords(ctx, s, s.repos.Allergies, actor, visitID, p)
}

// -- MedicationStatement --

func (s *Service) CreateMedication(ctx context.Context, actor auth.Actor, visitID uuid.UUID, m *MedicationStatement) (*MedicationStatement, error) {
	return createRecord(ctx, s, s.repos.Medications, actor, visitID, m)
}

func (s *Service) GetMedication(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MedicationStatement, error) {
	return getRecord(ctx, s, s.repos.Medications, actor, id)
}

func (s *Service) UpdateMedication(ctx context.Context, actor auth.Actor, id uuid.UUID, m *MedicationStatement) (*MedicationStatement, error) {
	return updateRecord(ctx, s, s.repos.Medications, actor, id, m)
}

func (s *Service) ListMedications(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*MedicationStatement, int, error) {
	return listRecords(ctx, s, s.repos.Medications, actor, visitID, p)
}

// -- Immunization --

func (s *Service) CreateImmunization(ctx context.Context, actor auth.Actor, visitID uuid.UUID, i *Immunization) (*Immunization, error) {
	return createRecord(ctx, s, s.repos.Immunizations, actor, visitID, i)
}

func (s *Service) GetImmunization(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Immunization, error) {
	return getRecord(ctx, s, s.repos.Immunizations, actor, id)
}

func (s *Service) UpdateImmunization(ctx context.Context, actor auth.Actor, id uuid.UUID, i *Immunization) (*Immunization, error) {
	return updateRecord(ctx, s, s.repos.Immunizations, actor, id, i)
}

func (s *Service) ListImmunizations(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*Immunization, int, error) {
	return listRecords(ctx, s, s.repos.Immunizations, actor, visitID, p)
}

// -- Procedure --

func (s *Service) CreateProcedure(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p *Procedure) (*Procedure, error) {
	return createRecord(ctx, s, s.repos.Procedures, actor, visitID, p)
}

func (s *Service) GetProcedure(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Procedure, error) {
	return getRecord(ctx, s, s.repos.Procedures, actor, id)
}

func (s *Service) UpdateProcedure(ctx context.Context, actor auth.Actor, id uuid.UUID, p *Procedure) (*Procedure, error) {
	return updateRecord(ctx, s, s.repos.Procedures, actor, id, p)
}

func (s *Service) ListProcedures(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*Procedure, int, error) {
	return listRecords(ctx, s, s.repos.Procedures, actor, visitID, p)
}

// -- Vitals --

func (s *Service) CreateVitals(ctx context.Context, actor auth.Actor, visitID uuid.UUID, v *Vitals) (*Vitals, error) {
	return createRecord[*Vitals](ctx, s, s.repos.Vitals, actor, visitID, v)
}

func (s *Service) GetVitals(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Vitals, error) {
	return getRecord[*Vitals](ctx, s, s.repos.Vitals, actor, id)
}

func (s *Service) UpdateVitals(ctx context.Context, actor auth.Actor, id uuid.UUID, v *Vitals) (*Vitals, error) {
	return updateRecord[*Vitals](ctx, s, s.repos.Vitals, actor, id, v)
}

func (s *Service) ListVitals(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	return listRecords[*Vitals](ctx, s, s.repos.Vitals, actor, visitID, p)
}

// -- MedicalHistory --

func (s *Service) CreateMedicalHistory(ctx context.Context, actor auth.Actor, visitID uuid.UUID, h *MedicalHistory) (*MedicalHistory, error) {
	return createRecord(ctx, s, s.repos.MedicalHistory, actor, visitID, h)
}

func (s *Service) GetMedicalHistory(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MedicalHistory, error) {
	return getRecord(ctx, s, s.repos.MedicalHistory, actor, id)
}

func (s *Service) UpdateMedicalHistory(ctx context.Context, actor auth.Actor, id uuid.UUID, h *MedicalHistory) (*MedicalHistory, error) {
	return updateRecord(ctx, s, s.repos.MedicalHistory, actor, id, h)
}

func (s *Service) ListMedicalHistory(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*MedicalHistory, int, error) {
	return listRecords(ctx, s, s.repos.MedicalHistory, actor, visitID, p)
}

// -- Appointment --

func (s *Service) CreateAppointment(ctx context.Context, actor auth.Actor, visitID uuid.UUID, a *Appointment) (*Appointment, error) {
	return createRecord(ctx, s, s.repos.Appointments, actor, visitID, a)
}

func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return getRecord(ctx, s, s.repos.Appointments, actor, id)
}

func (s *Service) UpdateAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, a *Appointment) (*Appointment, error) {
	return updateRecord(ctx, s, s.repos.Appointments, actor, id, a)
}

func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, visitID uuid.UUID, p pagination.Params) ([]*Appointment, int, error) {
	return listRecords(ctx, s, s.repos.Appointments, actor, visitID, p)
}
