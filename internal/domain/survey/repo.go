package survey

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts the user's response or overwrites the existing one.
	Upsert(ctx context.Context, r *Response) error
	GetByUser(ctx context.Context, userID uuid.UUID) (*Response, error)
	List(ctx context.Context, limit, offset int) ([]*Response, int, error)
	MeanScore(ctx context.Context) (float64, error)
}
