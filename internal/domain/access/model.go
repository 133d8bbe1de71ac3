package access

import (
	"time"

	"github.com/google/uuid"
)

// Grant links a doctor to a patient. It is the only relation consulted when
// deciding whether a doctor may see or change a patient's records.
type Grant struct {
	DoctorID  uuid.UUID  `json:"doctor_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	GrantedBy *uuid.UUID `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
}

// Doctor is a doctor holding a grant, as listed on the patient page.
type Doctor struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	GrantedAt time.Time `json:"granted_at"`
}

type GrantRequest struct {
	Username string `json:"username" validate:"required,min=4,max=20"`
}
