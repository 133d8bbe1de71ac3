package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)

	// Lock takes a row lock on the visit for the rest of the transaction and
	// reports whether the visit still exists.
	Lock(ctx context.Context, id uuid.UUID) (bool, error)
}
