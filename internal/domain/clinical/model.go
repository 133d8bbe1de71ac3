// Package clinical stores the eight kinds of records attached to a visit and
// removes a visit once its last record is gone.
package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

// Kind names a clinical record collection. The set is closed.
type Kind string

const (
	KindObservation    Kind = "observation"
	KindAllergy        Kind = "allergy_intolerance"
	KindMedication     Kind = "medication_statement"
	KindImmunization   Kind = "immunization"
	KindProcedure      Kind = "procedure"
	KindVitals         Kind = "vitals"
	KindMedicalHistory Kind = "medical_history"
	KindAppointment    Kind = "appointment"
)

// Base holds the columns shared by every clinical record.
type Base struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	VisitID    uuid.UUID `json:"visit_id"`
	RecordedBy uuid.UUID `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (b *Base) base() *Base { return b }

// record is implemented by pointers to the eight record types.
type record interface {
	base() *Base
	check() error
}

type checker map[string]string

func (c checker) required(field, v string) {
	if strings.TrimSpace(v) == "" {
		c[field] = "this field is required"
	}
}

func (c checker) oneOf(field, v string, valid map[string]bool) {
	if v == "" {
		c[field] = "this field is required"
	} else if !valid[v] {
		c[field] = "invalid value: " + v
	}
}

func (c checker) date(field string, t time.Time) {
	if t.IsZero() {
		c[field] = "this field is required"
	}
}

func (c checker) err() error {
	if len(c) == 0 {
		return nil
	}
	return apperr.ValidationFields(c)
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

type Observation struct {
	Base
	Status      string     `json:"status"`
	Category    *string    `json:"category,omitempty" validate:"omitempty,max=50"`
	Code        string     `json:"code" validate:"max=100"`
	Value       *string    `json:"value,omitempty" validate:"omitempty,max=255"`
	Unit        *string    `json:"unit,omitempty" validate:"omitempty,max=50"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

var observationStatuses = set("registered", "preliminary", "final", "amended", "cancelled")

func (o *Observation) check() error {
	c := checker{}
	c.oneOf("status", o.Status, observationStatuses)
	c.required("code", o.Code)
	return c.err()
}

type AllergyIntolerance struct {
	Base
	ClinicalStatus     string     `json:"clinical_status"`
	VerificationStatus string     `json:"verification_status"`
	Type               string     `json:"type"`
	Category           string     `json:"category"`
	Criticality        string     `json:"criticality"`
	Code               string     `json:"code" validate:"max=100"`
	Reaction           *string    `json:"reaction,omitempty" validate:"omitempty,max=255"`
	OnsetDate          *time.Time `json:"onset_date,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

var (
	allergyClinicalStatuses     = set("active", "inactive", "resolved")
	allergyVerificationStatuses = set("unconfirmed", "confirmed", "refuted", "entered-in-error")
	allergyTypes                = set("allergy", "intolerance")
	allergyCategories           = set("food", "medication", "environment", "biologic")
	allergyCriticalities        = set("low", "high", "unable-to-assess")
)

func (a *AllergyIntolerance) check() error {
	c := checker{}
	c.oneOf("clinical_status", a.ClinicalStatus, allergyClinicalStatuses)
	c.oneOf("verification_status", a.VerificationStatus, allergyVerificationStatuses)
	c.oneOf("type", a.Type, allergyTypes)
	c.oneOf("category", a.Category, allergyCategories)
	c.oneOf("criticality", a.Criticality, allergyCriticalities)
	c.required("code", a.Code)
	return c.err()
}

type MedicationStatement struct {
	Base
	Status         string     `json:"status"`
	Medication     string     `json:"medication" validate:"max=255"`
	Code           *string    `json:"code,omitempty" validate:"omitempty,max=100"`
	Dosage         *string    `json:"dosage,omitempty" validate:"omitempty,max=255"`
	EffectiveStart *time.Time `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty"`
	Reason         *string    `json:"reason,omitempty" validate:"omitempty,max=255"`
	Notes          *string    `json:"notes,omitempty"`
}

var medicationStatuses = set("active", "completed", "intended", "stopped", "on-hold", "not-taken", "entered-in-error")

func (m *MedicationStatement) check() error {
	c := checker{}
	c.oneOf("status", m.Status, medicationStatuses)
	c.required("medication", m.Medication)
	if m.EffectiveStart != nil && m.EffectiveEnd != nil && m.EffectiveEnd.Before(*m.EffectiveStart) {
		c["effective_end"] = "must not be before effective_start"
	}
	return c.err()
}

type Immunization struct {
	Base
	Status         string    `json:"status"`
	VaccineCode    string    `json:"vaccine_code" validate:"max=100"`
	OccurrenceDate time.Time `json:"occurrence_date"`
	LotNumber      *string   `json:"lot_number,omitempty" validate:"omitempty,max=50"`
	Site           *string   `json:"site,omitempty" validate:"omitempty,max=100"`
	DoseNumber     *int      `json:"dose_number,omitempty" validate:"omitempty,min=1"`
	Notes          *string   `json:"notes,omitempty"`
}

var immunizationStatuses = set("completed", "pending", "not-done", "entered-in-error")

func (i *Immunization) check() error {
	c := checker{}
	c.oneOf("status", i.Status, immunizationStatuses)
	c.required("vaccine_code", i.VaccineCode)
	c.date("occurrence_date", i.OccurrenceDate)
	if i.DoseNumber != nil && *i.DoseNumber < 1 {
		c["dose_number"] = "must be at least 1"
	}
	return c.err()
}

type Procedure struct {
	Base
	Status        string    `json:"status"`
	Code          string    `json:"code" validate:"max=100"`
	PerformedDate time.Time `json:"performed_date"`
	BodySite      *string   `json:"body_site,omitempty" validate:"omitempty,max=100"`
	Outcome       *string   `json:"outcome,omitempty" validate:"omitempty,max=255"`
	Notes         *string   `json:"notes,omitempty"`
}

var procedureStatuses = set("planned", "in-progress", "completed", "not-done", "stopped", "entered-in-error")

func (p *Procedure) check() error {
	c := checker{}
	c.oneOf("status", p.Status, procedureStatuses)
	c.required("code", p.Code)
	c.date("performed_date", p.PerformedDate)
	return c.err()
}

type Vitals struct {
	Base
	Status       string    `json:"status"`
	Type         string    `json:"type" validate:"max=50"`
	Value        string    `json:"value" validate:"max=50"`
	Unit         string    `json:"unit" validate:"max=20"`
	DateRecorded time.Time `json:"date_recorded"`
}

var vitalsStatuses = set("final", "amended", "entered-in-error")

func (v *Vitals) check() error {
	c := checker{}
	c.oneOf("status", v.Status, vitalsStatuses)
	c.required("type", v.Type)
	c.required("value", v.Value)
	c.required("unit", v.Unit)
	c.date("date_recorded", v.DateRecorded)
	return c.err()
}

type MedicalHistory struct {
	Base
	ClinicalStatus string     `json:"clinical_status"`
	Condition      string     `json:"condition" validate:"max=255"`
	Code           *string    `json:"code,omitempty" validate:"omitempty,max=100"`
	OnsetDate      time.Time  `json:"onset_date"`
	ResolutionDate *time.Time `json:"resolution_date,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

var historyStatuses = set("active", "recurrence", "relapse", "inactive", "remission", "resolved")

func (h *MedicalHistory) check() error {
	c := checker{}
	c.oneOf("clinical_status", h.ClinicalStatus, historyStatuses)
	c.required("condition", h.Condition)
	c.date("onset_date", h.OnsetDate)
	if h.ResolutionDate != nil && h.ResolutionDate.Before(h.OnsetDate) {
		c["resolution_date"] = "must not be before onset_date"
	}
	return c.err()
}

type Appointment struct {
	Base
	Status      string     `json:"status"`
	Description string     `json:"description" validate:"max=255"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=255"`
	Reason      *string    `json:"reason,omitempty" validate:"omitempty,max=255"`
	Notes       *string    `json:"notes,omitempty"`
}

var appointmentStatuses = set("proposed", "pending", "booked", "arrived", "fulfilled", "cancelled", "noshow")

func (a *Appointment) check() error {
	c := checker{}
	c.oneOf("status", a.Status, appointmentStatuses)
	c.required("description", a.Description)
	c.date("start_time", a.StartTime)
	if a.EndTime != nil && a.EndTime.Before(a.StartTime) {
		c["end_time"] = "must not be before start_time"
	}
	return c.err()
}

// DeleteRequest carries the typed patient name for medical history deletion.
type DeleteRequest struct {
	ConfirmName string `json:"confirm_name" query:"confirm_name"`
}
