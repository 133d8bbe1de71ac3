package clinical

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/auth"
)

// maxRecordsPerKind caps each collection of the visit summary.
const maxRecordsPerKind = 500

// VisitRecords is a visit with all of its clinical records.
type VisitRecords struct {
	Visit          *encounter.Visit       `json:"visit"`
	Observations   []*Observation         `json:"observations"`
	Allergies      []*AllergyIntolerance  `json:"allergies"`
	Medications    []*MedicationStatement `json:"medications"`
	Immunizations  []*Immunization        `json:"immunizations"`
	Procedures     []*Procedure           `json:"procedures"`
	Vitals         []*Vitals              `json:"vitals"`
	MedicalHistory []*MedicalHistory      `json:"medical_history"`
	Appointments   []*Appointment         `json:"appointments"`
}

func listAll[T record](ctx context.Context, repo Repository[T], visitID uuid.UUID, dst *[]T, kind Kind) error {
	recs, _, err := repo.ListByVisit(ctx, visitID, maxRecordsPerKind, 0)
	if err != nil {
		return fmt.Errorf("list %s: %w", kind, err)
	}
	if recs == nil {
		recs = []T{}
	}
	*dst = recs
	return nil
}

func (s *Service) VisitRecords(ctx context.Context, actor auth.Actor, visitID uuid.UUID) (*VisitRecords, error) {
	visit, err := s.authorizeVisit(ctx, actor, visitID)
	if err != nil {
		return nil, err
	}
	out := &VisitRecords{Visit: visit}
	steps := []func() error{
		func() error { return listAll(ctx, s.repos.Observations, visitID, &out.Observations, KindObservation) },
		func() error { return listAll(ctx, s.repos.Allergies, visitID, &out.Allergies, KindAllergy) },
		func() error { return listAll(ctx, s.repos.Medications, visitID, &out.Medications, KindMedication) },
		func() error { return listAll(ctx, s.repos.Immunizations, visitID, &out.Immunizations, KindImmunization) },
		func() error { return listAll(ctx, s.repos.Procedures, visitID, &out.Procedures, KindProcedure) },
		func() error { return listAll[*Vitals](ctx, s.repos.Vitals, visitID, &out.Vitals, KindVitals) },
		func() error { return listAll(ctx, s.repos.MedicalHistory, visitID, &out.MedicalHistory, KindMedicalHistory) },
		func() error { return listAll(ctx, s.repos.Appointments, visitID, &out.Appointments, KindAppointment) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
