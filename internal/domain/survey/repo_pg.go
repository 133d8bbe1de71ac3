package survey

import (
	"context"
	"errors"

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

const responseCols = `id, user_id, q1, q2, q3, q4, q5, q6, q7, q8, q9, q10, score, submitted_at, updated_at`

func scanResponse(row pgx.Row) (*Response, error) {
	var resp Response
	a := &resp.Answers
	err := row.Scan(&resp.ID, &resp.UserID, &a[0], &a[1], &a[2], &a[3], &a[4], &a[5], &a[6], &a[7], &a[8], &a[9],
		&resp.Score, &resp.SubmittedAt, &resp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("survey response")
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *repoPG) Upsert(ctx context.Context, resp *Response) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	a := resp.Answers
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO survey_response (id, user_id, q1, q2, q3, q4, q5, q6, q7, q8, q9, q10, score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT ON CONSTRAINT survey_response_user_id_key DO UPDATE SET
			q1 = EXCLUDED.q1, q2 = EXCLUDED.q2, q3 = EXCLUDED.q3, q4 = EXCLUDED.q4, q5 = EXCLUDED.q5,
			q6 = EXCLUDED.q6, q7 = EXCLUDED.q7, q8 = EXCLUDED.q8, q9 = EXCLUDED.q9, q10 = EXCLUDED.q10,
			score = EXCLUDED.score,
			updated_at = NOW()
		RETURNING id, submitted_at, updated_at`,
		resp.ID, resp.UserID, a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7], a[8], a[9], resp.Score,
	).Scan(&resp.ID, &resp.SubmittedAt, &resp.UpdatedAt)
}

func (r *repoPG) GetByUser(ctx context.Context, userID uuid.UUID) (*Response, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx, `SELECT `+responseCols+` FROM survey_response WHERE user_id = $1`, userID))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Response, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM survey_response`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+responseCols+` FROM survey_response
		ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, resp)
	}
	return out, total, rows.Err()
}

func (r *repoPG) MeanScore(ctx context.Context) (float64, error) {
	var mean float64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(AVG(score), 0)::float8 FROM survey_response`).Scan(&mean)
	return mean, err
}
