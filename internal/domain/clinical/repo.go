package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/domain/encounter"
)

// Repository is the storage contract shared by the eight record kinds.
type Repository[T record] interface {
	Create(ctx context.Context, rec T) error
	GetByID(ctx context.Context, id uuid.UUID) (T, error)
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]T, int, error)
	CountByVisit(ctx context.Context, visitID uuid.UUID) (int, error)
}

type VitalsRepository interface {
	Repository[*Vitals]
	// ListByPatientType returns a patient's vitals of one type, oldest first.
	ListByPatientType(ctx context.Context, patientID uuid.UUID, vitalType string) ([]*Vitals, error)
}

// Repositories bundles the eight stores.
type Repositories struct {
	Observations   Repository[*Observation]
	Allergies      Repository[*AllergyIntolerance]
	Medications    Repository[*MedicationStatement]
	Immunizations  Repository[*Immunization]
	Procedures     Repository[*Procedure]
	Vitals         VitalsRepository
	MedicalHistory Repository[*MedicalHistory]
	Appointments   Repository[*Appointment]
}

// VisitStore is the part of the visit repository the cascade needs.
// encounter.Repository satisfies it.
type VisitStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*encounter.Visit, error)
	Lock(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
