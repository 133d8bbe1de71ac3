package access

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/platform/apperr"
)

type grantKey struct {
	doctor, patient uuid.UUID
}

// MemoryRepo is an in-process Repository for unit tests of the packages
// that depend on the guard.
type MemoryRepo struct {
	mu       sync.RWMutex
	grants   map[grantKey]*Grant
	patients map[uuid.UUID][2]string
	doctors  map[string]*Doctor
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		grants:   make(map[grantKey]*Grant),
		patients: make(map[uuid.UUID][2]string),
		doctors:  make(map[string]*Doctor),
	}
}

// AddPatient registers a patient name for confirmation checks.
func (m *MemoryRepo) AddPatient(id uuid.UUID, first, last string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[id] = [2]string{first, last}
}

// RemovePatient drops the patient and its grants, like the FK cascade does.
func (m *MemoryRepo) RemovePatient(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
	for k := range m.grants {
		if k.patient == id {
			delete(m.grants, k)
		}
	}
}

func (m *MemoryRepo) AddDoctor(d *Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.Username] = d
}

func (m *MemoryRepo) HasGrant(_ context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[grantKey{doctorID, patientID}]
	return ok, nil
}

func (m *MemoryRepo) Grant(_ context.Context, g *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := grantKey{g.DoctorID, g.PatientID}
	if _, ok := m.grants[k]; ok {
		return nil
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	cp := *g
	m.grants[k] = &cp
	return nil
}

func (m *MemoryRepo) RevokeUnlessLast(_ context.Context, doctorID, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countLocked(patientID) <= 1 {
		return ErrLastGrant
	}
	k := grantKey{doctorID, patientID}
	if _, ok := m.grants[k]; !ok {
		return apperr.NotFound("grant")
	}
	delete(m.grants, k)
	return nil
}

// CountGrants reports how many doctors hold a grant for the patient.
func (m *MemoryRepo) CountGrants(_ context.Context, patientID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(patientID), nil
}

func (m *MemoryRepo) countLocked(patientID uuid.UUID) int {
	n := 0
	for k := range m.grants {
		if k.patient == patientID {
			n++
		}
	}
	return n
}

func (m *MemoryRepo) ListDoctors(_ context.Context, patientID uuid.UUID) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Doctor
	for _, d := range m.doctors {
		if g, ok := m.grants[grantKey{d.ID, patientID}]; ok {
			cp := *d
			cp.GrantedAt = g.GrantedAt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemoryRepo) PatientName(_ context.Context, patientID uuid.UUID) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.patients[patientID]
	if !ok {
		return "", "", apperr.NotFound("patient")
	}
	return n[0], n[1], nil
}

func (m *MemoryRepo) DoctorByUsername(_ context.Context, username string) (uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[username]
	if !ok {
		return uuid.Nil, apperr.NotFound("doctor")
	}
	return d.ID, nil
}
