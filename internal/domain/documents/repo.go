package documents

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, category string, limit, offset int) ([]*Document, int, error)
	// StoragePaths returns the blob paths of every document of the patient.
	StoragePaths(ctx context.Context, patientID uuid.UUID) ([]string, error)
}
