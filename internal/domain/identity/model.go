package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a doctor or administrator account.
type User struct {
	ID               uuid.UUID  `json:"id"`
	UserID           string     `json:"user_id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             string     `json:"role"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	BirthDate        *time.Time `json:"birth_date,omitempty"`
	Gender           string     `json:"gender"`
	ContactNumber    string     `json:"contact_number"`
	IDCardNumber     string     `json:"id_card_number"`
	Country          *string    `json:"country,omitempty"`
	HomeAddress      string     `json:"home_address"`
	ProfileImagePath *string    `json:"profile_image_path,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Education *Education `json:"education,omitempty"`
}

// Education holds a doctor's qualifications and emergency contact.
type Education struct {
	MedDeg            *string    `json:"med_deg,omitempty" validate:"omitempty,max=255"`
	MedDegSpec        *string    `json:"med_deg_spec,omitempty" validate:"omitempty,max=255"`
	BoardCert         *string    `json:"board_cert,omitempty" validate:"omitempty,max=255"`
	LicenseNumber     string     `json:"license_number" validate:"required,notblank,max=100"`
	LicenseIssuer     *string    `json:"license_issuer,omitempty" validate:"omitempty,max=255"`
	LicenseExpiration *time.Time `json:"license_expiration,omitempty"`
	YearsOfExperience *int       `json:"years_of_experience,omitempty" validate:"omitempty,min=0,max=80"`
	ECDName           *string    `json:"ecd_name,omitempty" validate:"omitempty,max=200"`
	ECDNumber         *string    `json:"ecd_number,omitempty" validate:"omitempty,max=20"`
}

type RegisterRequest struct {
	Username        string     `json:"username" validate:"required,min=4,max=20"`
	Email           string     `json:"email" validate:"required,email,max=255"`
	Password        string     `json:"password" validate:"required,strongpw"`
	ConfirmPassword string     `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string     `json:"first_name" validate:"required,notblank,max=100"`
	LastName        string     `json:"last_name" validate:"required,notblank,max=100"`
	BirthDate       *time.Time `json:"birth_date"`
	Gender          string     `json:"gender" validate:"required,oneof=male female other"`
	ContactNumber   string     `json:"contact_number" validate:"required,min=10,max=15"`
	IDCardNumber    string     `json:"id_card_number" validate:"required,len=11,numeric"`
	Country         *string    `json:"country" validate:"omitempty,max=100"`
	HomeAddress     string     `json:"home_address" validate:"required,notblank,max=255"`
	LicenseNumber   string     `json:"license_number" validate:"required,notblank,max=100"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin doctor"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirm struct {
	Password        string `json:"password" validate:"required,strongpw"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// AccountUpdate changes the caller's profile. Nil fields are left alone; a
// password change needs CurrentPassword.
type AccountUpdate struct {
	Username        *string    `json:"username" validate:"omitempty,min=4,max=20"`
	Email           *string    `json:"email" validate:"omitempty,email,max=255"`
	ContactNumber   *string    `json:"contact_number" validate:"omitempty,min=10,max=15"`
	Country         *string    `json:"country" validate:"omitempty,max=100"`
	HomeAddress     *string    `json:"home_address" validate:"omitempty,notblank,max=255"`
	Education       *Education `json:"education"`
	CurrentPassword string     `json:"current_password"`
	NewPassword     string     `json:"new_password" validate:"omitempty,strongpw"`
	ConfirmPassword string     `json:"confirm_password" validate:"omitempty,eqfield=NewPassword"`
}

// Patient is a person whose records are kept. PatientID is the display id.
type Patient struct {
	ID                   uuid.UUID  `json:"id"`
	PatientID            string     `json:"patient_id"`
	FirstName            string     `json:"first_name"`
	LastName             string     `json:"last_name"`
	BirthDate            *time.Time `json:"birth_date,omitempty"`
	Gender               string     `json:"gender"`
	ContactNumber        string     `json:"contact_number"`
	Email                *string    `json:"email,omitempty"`
	HomeAddress          string     `json:"home_address"`
	Country              *string    `json:"country,omitempty"`
	MaritalStatus        *string    `json:"marital_status,omitempty"`
	BloodType            *string    `json:"blood_type,omitempty"`
	EmergencyContactName *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactRel  *string    `json:"emergency_contact_rel,omitempty"`
	EmergencyContactNum  *string    `json:"emergency_contact_num,omitempty"`
	CreatedBy            uuid.UUID  `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// PatientInput is the create and update payload for patients.
type PatientInput struct {
	FirstName            string     `json:"first_name" validate:"required,notblank,max=100"`
	LastName             string     `json:"last_name" validate:"required,notblank,max=100"`
	BirthDate            *time.Time `json:"birth_date"`
	Gender               string     `json:"gender" validate:"required,oneof=male female other"`
	ContactNumber        string     `json:"contact_number" validate:"required,min=10,max=15"`
	Email                *string    `json:"email" validate:"omitempty,email,max=255"`
	HomeAddress          string     `json:"home_address" validate:"required,notblank,max=255"`
	Country              *string    `json:"country" validate:"omitempty,max=100"`
	MaritalStatus        *string    `json:"marital_status" validate:"omitempty,oneof=single married divorced widowed separated"`
	BloodType            *string    `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	EmergencyContactName *string    `json:"emergency_contact_name" validate:"omitempty,max=200"`
	EmergencyContactRel  *string    `json:"emergency_contact_rel" validate:"omitempty,max=50"`
	EmergencyContactNum  *string    `json:"emergency_contact_num" validate:"omitempty,max=20"`
}

func (in PatientInput) apply(p *Patient) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.BirthDate = in.BirthDate
	p.Gender = in.Gender
	p.ContactNumber = in.ContactNumber
	p.Email = in.Email
	p.HomeAddress = in.HomeAddress
	p.Country = in.Country
	p.MaritalStatus = in.MaritalStatus
	p.BloodType = in.BloodType
	p.EmergencyContactName = in.EmergencyContactName
	p.EmergencyContactRel = in.EmergencyContactRel
	p.EmergencyContactNum = in.EmergencyContactNum
}

type DeleteRequest struct {
	ConfirmName string `json:"confirm_name" query:"confirm_name"`
}
