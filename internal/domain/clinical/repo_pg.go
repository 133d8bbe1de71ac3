package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/db"
)

// table maps one record kind onto its SQL table. Every table starts with the
// Base columns followed by the kind's own columns.
type table[T record] struct {
	pool     *pgxpool.Pool
	name     string
	resource string
	cols     []string
	orderBy  string
	newRec   func() T
	fields   func(T) []interface{} // scan destinations of cols
	values   func(T) []interface{} // insert and update arguments of cols
}

const baseCols = `id, patient_id, visit_id, recorded_by, created_at, updated_at`

func (t *table[T]) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, t.pool)
}

func (t *table[T]) selectCols() string {
	return baseCols + ", " + strings.Join(t.cols, ", ")
}

func (t *table[T]) scan(row pgx.Row) (T, error) {
	rec := t.newRec()
	b := rec.base()
	dest := append([]interface{}{&b.ID, &b.PatientID, &b.VisitID, &b.RecordedBy, &b.CreatedAt, &b.UpdatedAt}, t.fields(rec)...)
	if err := row.Scan(dest...); err != nil {
		var zero T
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, apperr.NotFound(t.resource)
		}
		return zero, err
	}
	return rec, nil
}

func (t *table[T]) collect(rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ",")
}

func (t *table[T]) Create(ctx context.Context, rec T) error {
	b := rec.base()
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	args := append([]interface{}{b.ID, b.PatientID, b.VisitID, b.RecordedBy, b.CreatedAt, b.UpdatedAt}, t.values(rec)...)
	_, err := t.conn(ctx).Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		t.name, t.selectCols(), placeholders(1, len(args))), args...)
	return err
}

func (t *table[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	return t.scan(t.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.selectCols(), t.name), id))
}

func (t *table[T]) Update(ctx context.Context, rec T) error {
	b := rec.base()
	b.UpdatedAt = time.Now().UTC()

	sets := make([]string, len(t.cols))
	for i, col := range t.cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+3)
	}
	args := append([]interface{}{b.ID, b.UpdatedAt}, t.values(rec)...)
	tag, err := t.conn(ctx).Exec(ctx, fmt.Sprintf(`UPDATE %s SET updated_at = $2, %s WHERE id = $1`,
		t.name, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(t.resource)
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := t.conn(ctx).Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.name), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(t.resource)
	}
	return nil
}

func (t *table[T]) ListByVisit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]T, int, error) {
	total, err := t.CountByVisit(ctx, visitID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := t.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE visit_id = $1
		ORDER BY %s LIMIT $2 OFFSET $3`, t.selectCols(), t.name, t.orderBy), visitID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := t.collect(rows)
	return out, total, err
}

func (t *table[T]) CountByVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	var n int
	err := t.conn(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE visit_id = $1`, t.name), visitID).Scan(&n)
	return n, err
}

type vitalsTable struct {
	*table[*Vitals]
}

func (t vitalsTable) ListByPatientType(ctx context.Context, patientID uuid.UUID, vitalType string) ([]*Vitals, error) {
	rows, err := t.conn(ctx).Query(ctx, `SELECT `+t.selectCols()+` FROM vitals
		WHERE patient_id = $1 AND type = $2 AND status <> 'entered-in-error'
		ORDER BY date_recorded`, patientID, vitalType)
	if err != nil {
		return nil, err
	}
	return t.collect(rows)
}

// NewPGRepositories builds the eight PostgreSQL stores.
func NewPGRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Observations: &table[*Observation]{
			pool: pool, name: "observation", resource: "observation", orderBy: "created_at",
			cols:   []string{"status", "category", "code", "value", "unit", "effective_at", "notes"},
			newRec: func() *Observation { return &Observation{} },
			fields: func(o *Observation) []interface{} {
				return []interface{}{&o.Status, &o.Category, &o.Code, &o.Value, &o.Unit, &o.EffectiveAt, &o.Notes}
			},
			values: func(o *Observation) []interface{} {
				return []interface{}{o.Status, o.Category, o.Code, o.Value, o.Unit, o.EffectiveAt, o.Notes}
			},
		},
		Allergies: &table[*AllergyIntolerance]{
			pool: pool, name: "allergy_intolerance", resource: "allergy", orderBy: "created_at",
			cols: []string{"clinical_status", "verification_status", "type", "category", "criticality",
				"code", "reaction", "onset_date", "notes"},
			newRec: func() *AllergyIntolerance { return &AllergyIntolerance{} },
			fields: func(a *AllergyIntolerance) []interface{} {
				return []interface{}{&a.ClinicalStatus, &a.VerificationStatus, &a.Type, &a.Category, &a.Criticality,
					&a.Code, &a.Reaction, &a.OnsetDate, &a.Notes}
			},
			values: func(a *AllergyIntolerance) []interface{} {
				return []interface{}{a.ClinicalStatus, a.VerificationStatus, a.Type, a.Category, a.Criticality,
					a.Code, a.Reaction, a.OnsetDate, a.Notes}
			},
		},
		Medications: &table[*MedicationStatement]{
			pool: pool, name: "medication_statement", resource: "medication", orderBy: "created_at",
			cols: []string{"status", "medication", "code", "dosage", "effective_start", "effective_end",
				"reason", "notes"},
			newRec: func() *MedicationStatement { return &MedicationStatement{} },
			fields: func(m *MedicationStatement) []interface{} {
				return []interface{}{&m.Status, &m.Medication, &m.Code, &m.Dosage, &m.EffectiveStart, &m.EffectiveEnd,
					&m.Reason, &m.Notes}
			},
			values: func(m *MedicationStatement) []interface{} {
				return []interface{}{m.Status, m.Medication, m.Code, m.Dosage, m.EffectiveStart, m.EffectiveEnd,
					m.Reason, m.Notes}
			},
		},
		Immunizations: &table[*Immunization]{
			pool: pool, name: "immunization", resource: "immunization", orderBy: "occurrence_date",
			cols:   []string{"status", "vaccine_code", "occurrence_date", "lot_number", "site", "dose_number", "notes"},
			newRec: func() *Immunization { return &Immunization{} },
			fields: func(i *Immunization) []interface{} {
				return []interface{}{&i.Status, &i.VaccineCode, &i.OccurrenceDate, &i.LotNumber, &i.Site, &i.DoseNumber, &i.Notes}
			},
			values: func(i *Immunization) []interface{} {
				return []interface{}{i.Status, i.VaccineCode, i.OccurrenceDate, i.LotNumber, i.Site, i.DoseNumber, i.Notes}
			},
		},
		Procedures: &table[*Procedure]{
			pool: pool, name: "procedure_record", resource: "procedure", orderBy: "performed_date",
			cols:   []string{"status", "code", "performed_date", "body_site", "outcome", "notes"},
			newRec: func() *Procedure { return &Procedure{} },
			fields: func(p *Procedure) []interface{} {
				return []interface{}{&p.Status, &p.Code, &p.PerformedDate, &p.BodySite, &p.Outcome, &p.Notes}
			},
			values: func(p *Procedure) []interface{} {
				return []interface{}{p.Status, p.Code, p.PerformedDate, p.BodySite, p.Outcome, p.Notes}
			},
		},
		Vitals: vitalsTable{&table[*Vitals]{
			pool: pool, name: "vitals", resource: "vitals", orderBy: "date_recorded",
			cols:   []string{"status", "type", "value", "unit", "date_recorded"},
			newRec: func() *Vitals { return &Vitals{} },
			fields: func(v *Vitals) []interface{} {
				return []interface{}{&v.Status, &v.Type, &v.Value, &v.Unit, &v.DateRecorded}
			},
			values: func(v *Vitals) []interface{} {
				return []interface{}{v.Status, v.Type, v.Value, v.Unit, v.DateRecorded}
			},
		}},
		MedicalHistory: &table[*MedicalHistory]{
			pool: pool, name: "medical_history", resource: "medical history entry", orderBy: "onset_date",
			cols:   []string{"clinical_status", "condition", "code", "onset_date", "resolution_date", "notes"},
			newRec: func() *MedicalHistory { return &MedicalHistory{} },
			fields: func(h *MedicalHistory) []interface{} {
				return []interface{}{&h.ClinicalStatus, &h.Condition, &h.Code, &h.OnsetDate, &h.ResolutionDate, &h.Notes}
			},
			values: func(h *MedicalHistory) []interface{} {
				return []interface{}{h.ClinicalStatus, h.Condition, h.Code, h.OnsetDate, h.ResolutionDate, h.Notes}
			},
		},
		Appointments: &table[*Appointment]{
			pool: pool, name: "appointment", resource: "appointment", orderBy: "start_time",
			cols:   []string{"status", "description", "start_time", "end_time", "location", "reason", "notes"},
			newRec: func() *Appointment { return &Appointment{} },
			fields: func(a *Appointment) []interface{} {
				return []interface{}{&a.Status, &a.Description, &a.StartTime, &a.EndTime, &a.Location, &a.Reason, &a.Notes}
			},
			values: func(a *Appointment) []interface{} {
				return []interface{}{a.Status, a.Description, a.StartTime, a.EndTime, a.Location, a.Reason, a.Notes}
			},
		},
	}
}
