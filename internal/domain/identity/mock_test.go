package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/platform/apperr"
)

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// mockUserRepo enforces the same unique constraints as the users table.
type mockUserRepo struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*User
	education map[uuid.UUID]*Education
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User), education: make(map[uuid.UUID]*Education)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		switch {
		case existing.UserID == u.UserID:
			return uniqueViolation(constraintUserID)
		case existing.Username == u.Username:
			return uniqueViolation(constraintUsername)
		case strings.EqualFold(existing.Email, u.Email):
			return uniqueViolation(constraintEmail)
		}
	}
	u.ID = uuid.New()
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			cp.Education = m.education[u.ID]
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return apperr.NotFound("user")
	}
	for id, existing := range m.users {
		if id == u.ID {
			continue
		}
		if existing.Username == u.Username {
			return uniqueViolation(constraintUsername)
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return uniqueViolation(constraintEmail)
		}
	}
	cp := *u
	cp.Education = nil
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) List(_ context.Context, query string, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if query == "" || strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockUserRepo) SaveEducation(_ context.Context, userID uuid.UUID, e *Education) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.education[userID] = &cp
	return nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// mockPatientRepo mirrors patient rows into the access repository so that
// grants and confirmation names behave like the database.
type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	grants   *access.MemoryRepo
}

func newMockPatientRepo(grants *access.MemoryRepo) *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient), grants: grants}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.patients {
		if existing.PatientID == p.PatientID {
			return uniqueViolation(constraintPatientID)
		}
	}
	p.ID = uuid.New()
	cp := *p
	m.patients[p.ID] = &cp
	m.grants.AddPatient(p.ID, p.FirstName, p.LastName)
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("patient")
	}
	cp := *p
	m.patients[p.ID] = &cp
	m.grants.AddPatient(p.ID, p.FirstName, p.LastName)
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return apperr.NotFound("patient")
	}
	delete(m.patients, id)
	m.grants.RemovePatient(id)
	return nil
}

func (m *mockPatientRepo) ListForDoctor(ctx context.Context, doctorID uuid.UUID, _ string, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for id, p := range m.patients {
		if ok, _ := m.grants.HasGrant(ctx, doctorID, id); ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out, len(out), nil
}

func (m *mockPatientRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patients)
}

type fakePurger struct {
	paths   []string
	removed []string
}

func (f *fakePurger) StoragePaths(context.Context, uuid.UUID) ([]string, error) {
	return f.paths, nil
}

func (f *fakePurger) RemoveBlobs(_ context.Context, paths []string) {
	f.removed = append(f.removed, paths...)
}
