package encounter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const visitCols = `id, patient_id, doctor_id, visit_date, reason_code, diagnosis_code,
	status, class_code, priority, location, notes, created_at, updated_at`

func (r *repoPG) scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.VisitDate, &v.ReasonCode, &v.DiagnosisCode,
		&v.Status, &v.ClassCode, &v.Priority, &v.Location, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("visit")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (id, patient_id, doctor_id, visit_date, reason_code, diagnosis_code,
			status, class_code, priority, location, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		v.ID, v.PatientID, v.DoctorID, v.VisitDate, v.ReasonCode, v.DiagnosisCode,
		v.Status, v.ClassCode, v.Priority, v.Location, v.Notes, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET visit_date=$2, reason_code=$3, diagnosis_code=$4, status=$5,
			class_code=$6, priority=$7, location=$8, notes=$9, updated_at=$10
		WHERE id = $1`,
		v.ID, v.VisitDate, v.ReasonCode, v.DiagnosisCode, v.Status,
		v.ClassCode, v.Priority, v.Location, v.Notes, v.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM visit WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+visitCols+` FROM visit
		WHERE patient_id = $1 ORDER BY visit_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Lock(ctx context.Context, id uuid.UUID) (bool, error) {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM visit WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
