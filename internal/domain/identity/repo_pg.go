package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/pkg/pagination"
)

// -- Users --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `u.id, u.user_id, u.username, u.email, u.password_hash, u.role, u.first_name, u.last_name,
	u.birth_date, u.gender, u.contact_number, u.id_card_number, u.country, u.home_address,
	u.profile_image_path, u.created_at, u.updated_at,
	e.user_id IS NOT NULL, e.med_deg, e.med_deg_spec, e.board_cert, COALESCE(e.license_number, ''),
	e.license_issuer, e.license_expiration, e.years_of_experience, e.ecd_name, e.ecd_number`

const userFrom = ` FROM users u LEFT JOIN user_education e ON e.user_id = u.id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var e Education
	var hasEducation bool
	err := row.Scan(&u.ID, &u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName,
		&u.BirthDate, &u.Gender, &u.ContactNumber, &u.IDCardNumber, &u.Country, &u.HomeAddress,
		&u.ProfileImagePath, &u.CreatedAt, &u.UpdatedAt,
		&hasEducation, &e.MedDeg, &e.MedDegSpec, &e.BoardCert, &e.LicenseNumber,
		&e.LicenseIssuer, &e.LicenseExpiration, &e.YearsOfExperience, &e.ECDName, &e.ECDNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	if hasEducation {
		u.Education = &e
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, user_id, username, email, password_hash, role, first_name, last_name,
			birth_date, gender, contact_number, id_card_number, country, home_address,
			profile_image_path, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		u.ID, u.UserID, u.Username, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName,
		u.BirthDate, u.Gender, u.ContactNumber, u.IDCardNumber, u.Country, u.HomeAddress,
		u.ProfileImagePath, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE u.id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE u.username = $1`, username))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE lower(u.email) = lower($1)`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET username=$2, email=$3, password_hash=$4, first_name=$5, last_name=$6,
			birth_date=$7, gender=$8, contact_number=$9, country=$10, home_address=$11,
			profile_image_path=$12, updated_at=$13
		WHERE id = $1`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.BirthDate, u.Gender, u.ContactNumber, u.Country, u.HomeAddress,
		u.ProfileImagePath, u.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, query string, limit, offset int) ([]*User, int, error) {
	like := pagination.Params{Query: query}.Like()
	where := ` WHERE ($1 = '' OR u.username ILIKE $1 OR u.email ILIKE $1 OR u.last_name ILIKE $1)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, like).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+userFrom+where+
		` ORDER BY u.created_at DESC LIMIT $2 OFFSET $3`, like, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *userRepoPG) SaveEducation(ctx context.Context, userID uuid.UUID, e *Education) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_education (user_id, med_deg, med_deg_spec, board_cert, license_number,
			license_issuer, license_expiration, years_of_experience, ecd_name, ecd_number, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			med_deg = EXCLUDED.med_deg,
			med_deg_spec = EXCLUDED.med_deg_spec,
			board_cert = EXCLUDED.board_cert,
			license_number = EXCLUDED.license_number,
			license_issuer = EXCLUDED.license_issuer,
			license_expiration = EXCLUDED.license_expiration,
			years_of_experience = EXCLUDED.years_of_experience,
			ecd_name = EXCLUDED.ecd_name,
			ecd_number = EXCLUDED.ecd_number,
			updated_at = NOW()`,
		userID, e.MedDeg, e.MedDegSpec, e.BoardCert, e.LicenseNumber,
		e.LicenseIssuer, e.LicenseExpiration, e.YearsOfExperience, e.ECDName, e.ECDNumber)
	return err
}

// -- Patients --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `p.id, p.patient_id, p.first_name, p.last_name, p.birth_date, p.gender, p.contact_number,
	p.email, p.home_address, p.country, p.marital_status, p.blood_type,
	p.emergency_contact_name, p.emergency_contact_rel, p.emergency_contact_num,
	p.created_by, p.created_at, p.updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.ContactNumber,
		&p.Email, &p.HomeAddress, &p.Country, &p.MaritalStatus, &p.BloodType,
		&p.EmergencyContactName, &p.EmergencyContactRel, &p.EmergencyContactNum,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, patient_id, first_name, last_name, birth_date, gender, contact_number,
			email, home_address, country, marital_status, blood_type,
			emergency_contact_name, emergency_contact_rel, emergency_contact_num,
			created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		p.ID, p.PatientID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.ContactNumber,
		p.Email, p.HomeAddress, p.Country, p.MaritalStatus, p.BloodType,
		p.EmergencyContactName, p.EmergencyContactRel, p.EmergencyContactNum,
		p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient p WHERE p.id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, birth_date=$4, gender=$5, contact_number=$6,
			email=$7, home_address=$8, country=$9, marital_status=$10, blood_type=$11,
			emergency_contact_name=$12, emergency_contact_rel=$13, emergency_contact_num=$14,
			updated_at=$15
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.ContactNumber,
		p.Email, p.HomeAddress, p.Country, p.MaritalStatus, p.BloodType,
		p.EmergencyContactName, p.EmergencyContactRel, p.EmergencyContactNum,
		p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) ListForDoctor(ctx context.Context, doctorID uuid.UUID, query string, limit, offset int) ([]*Patient, int, error) {
	like := pagination.Params{Query: query}.Like()
	from := ` FROM patient p JOIN doctor_patient dp ON dp.patient_id = p.id
		WHERE dp.doctor_id = $1
		AND ($2 = '' OR p.first_name ILIKE $2 OR p.last_name ILIKE $2 OR p.patient_id ILIKE $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, doctorID, like).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+from+
		` ORDER BY p.last_name, p.first_name LIMIT $3 OFFSET $4`, doctorID, like, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
