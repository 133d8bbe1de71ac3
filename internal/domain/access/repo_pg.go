package access

import (
	"context"
	"errors"
	"fmt"
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

func (r *repoPG) HasGrant(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_patient WHERE doctor_id = $1 AND patient_id = $2
		)`, doctorID, patientID).Scan(&ok)
	return ok, err
}

func (r *repoPG) Grant(ctx context.Context, g *Grant) error {
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_patient (doctor_id, patient_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doctor_id, patient_id) DO NOTHING`,
		g.DoctorID, g.PatientID, g.GrantedBy, g.GrantedAt)
	return err
}

// RevokeUnlessLast locks the patient row before counting, so a second revoke
// on the same patient waits and then counts the grants the first one left.
func (r *repoPG) RevokeUnlessLast(ctx context.Context, doctorID, patientID uuid.UUID) error {
	return db.NewTransactor(r.pool).InTx(ctx, func(ctx context.Context) error {
		q := r.conn(ctx)
		var locked int
		err := q.QueryRow(ctx, `SELECT 1 FROM patient WHERE id = $1 FOR UPDATE`, patientID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("patient")
		}
		if err != nil {
			return fmt.Errorf("lock patient: %w", err)
		}

		var n int
		if err := q.QueryRow(ctx,
			`SELECT COUNT(*) FROM doctor_patient WHERE patient_id = $1`, patientID).Scan(&n); err != nil {
			return fmt.Errorf("count grants: %w", err)
		}
		if n <= 1 {
			return ErrLastGrant
		}

		tag, err := q.Exec(ctx,
			`DELETE FROM doctor_patient WHERE doctor_id = $1 AND patient_id = $2`, doctorID, patientID)
		if err != nil {
			return fmt.Errorf("delete grant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("grant")
		}
		return nil
	})
}

func (r *repoPG) ListDoctors(ctx context.Context, patientID uuid.UUID) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.user_id, u.username, u.first_name, u.last_name, dp.granted_at
		FROM doctor_patient dp
		JOIN users u ON u.id = dp.doctor_id
		WHERE dp.patient_id = $1
		ORDER BY dp.granted_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.UserID, &d.Username, &d.FirstName, &d.LastName, &d.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *repoPG) PatientName(ctx context.Context, patientID uuid.UUID) (string, string, error) {
	var first, last string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT first_name, last_name FROM patient WHERE id = $1`, patientID).Scan(&first, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", apperr.NotFound("patient")
	}
	if err != nil {
		return "", "", fmt.Errorf("load patient name: %w", err)
	}
	return first, last, nil
}

func (r *repoPG) DoctorByUsername(ctx context.Context, username string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM users WHERE username = $1 AND role = 'doctor'`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, apperr.NotFound("doctor")
	}
	return id, err
}
