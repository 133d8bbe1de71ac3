package encounter

import (
	"time"

	"github.com/google/uuid"
)

// Visit is one encounter between a doctor and a patient. The eight clinical
// record kinds hang off a visit.
type Visit struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	VisitDate     time.Time `json:"visit_date"`
	ReasonCode    string    `json:"reason_code"`
	DiagnosisCode *string   `json:"diagnosis_code,omitempty"`
	Status        string    `json:"status"`
	ClassCode     string    `json:"class_code"`
	Priority      string    `json:"priority"`
	Location      *string   `json:"location,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VisitInput is the create and update payload.
type VisitInput struct {
	VisitDate     time.Time `json:"visit_date" validate:"required"`
	ReasonCode    string    `json:"reason_code" validate:"required,notblank,max=100"`
	DiagnosisCode *string   `json:"diagnosis_code" validate:"omitempty,max=100"`
	Status        string    `json:"status" validate:"omitempty,oneof=planned in-progress completed cancelled"`
	ClassCode     string    `json:"class_code" validate:"omitempty,oneof=outpatient inpatient virtual"`
	Priority      string    `json:"priority" validate:"omitempty,oneof=routine urgent asap stat"`
	Location      *string   `json:"location" validate:"omitempty,max=255"`
	Notes         *string   `json:"notes"`
}

func (in VisitInput) apply(v *Visit) {
	v.VisitDate = in.VisitDate.UTC()
	v.ReasonCode = in.ReasonCode
	v.DiagnosisCode = in.DiagnosisCode
	v.Status = in.Status
	v.ClassCode = in.ClassCode
	v.Priority = in.Priority
	v.Location = in.Location
	v.Notes = in.Notes
}

// DeleteRequest carries the typed patient name confirming a deletion.
type DeleteRequest struct {
	ConfirmName string `json:"confirm_name" query:"confirm_name"`
}
