package documents

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

const docCols = `id, patient_id, visit_id, category, file_name, content_type, size_bytes, sha256,
	storage_path, description, uploaded_by, created_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.VisitID, &d.Category, &d.FileName, &d.ContentType, &d.SizeBytes,
		&d.SHA256, &d.StoragePath, &d.Description, &d.UploadedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("document")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO document (`+docCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		d.ID, d.PatientID, d.VisitID, d.Category, d.FileName, d.ContentType, d.SizeBytes,
		d.SHA256, d.StoragePath, d.Description, d.UploadedBy, d.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+docCols+` FROM document WHERE id = $1`, id))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document")
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error) {
	where := ` WHERE patient_id = $1 AND ($2 = '' OR category = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM document`+where, patientID, category).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+docCols+` FROM document`+where+
		` ORDER BY created_at DESC LIMIT $3 OFFSET $4`, patientID, category, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repoPG) StoragePaths(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT storage_path FROM document WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
