package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, query string, limit, offset int) ([]*User, int, error)

	// SaveEducation inserts or replaces the user's education row.
	SaveEducation(ctx context.Context, userID uuid.UUID, e *Education) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListForDoctor returns the patients the doctor holds a grant for.
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, query string, limit, offset int) ([]*Patient, int, error)
}
