package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLastGrant is returned when revoking would leave a patient without a doctor.
var ErrLastGrant = errors.New("patient has a single grant")

type Repository interface {
	HasGrant(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	Grant(ctx context.Context, g *Grant) error
	// RevokeUnlessLast deletes the grant unless it is the patient's only one.
	// Calls for the same patient are serialized, so concurrent revokes cannot
	// remove every grant between them.
	RevokeUnlessLast(ctx context.Context, doctorID, patientID uuid.UUID) error
	ListDoctors(ctx context.Context, patientID uuid.UUID) ([]*Doctor, error)

	// PatientName returns the name used for deletion confirmation.
	PatientName(ctx context.Context, patientID uuid.UUID) (first, last string, err error)
	// DoctorByUsername resolves a doctor account; other roles are not found.
	DoctorByUsername(ctx context.Context, username string) (uuid.UUID, error)
}
