package clinical

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
)

type memTable[T record] struct {
	rows  map[uuid.UUID]T
	order []uuid.UUID
}

func newMemTable[T record]() *memTable[T] {
	return &memTable[T]{rows: make(map[uuid.UUID]T)}
}

func (m *memTable[T]) Create(_ context.Context, rec T) error {
	b := rec.base()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.rows[b.ID] = rec
	m.order = append(m.order, b.ID)
	return nil
}

func (m *memTable[T]) GetByID(_ context.Context, id uuid.UUID) (T, error) {
	rec, ok := m.rows[id]
	if !ok {
		var zero T
		return zero, apperr.NotFound("record")
	}
	return rec, nil
}

func (m *memTable[T]) Update(_ context.Context, rec T) error {
	if _, ok := m.rows[rec.base().ID]; !ok {
		return apperr.NotFound("record")
	}
	rec.base().UpdatedAt = time.Now()
	m.rows[rec.base().ID] = rec
	return nil
}

func (m *memTable[T]) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rows[id]; !ok {
		return apperr.NotFound("record")
	}
	delete(m.rows, id)
	return nil
}

func (m *memTable[T]) ListByVisit(_ context.Context, visitID uuid.UUID, limit, offset int) ([]T, int, error) {
	var all []T
	for _, id := range m.order {
		if rec, ok := m.rows[id]; ok && rec.base().VisitID == visitID {
			all = append(all, rec)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memTable[T]) CountByVisit(_ context.Context, visitID uuid.UUID) (int, error) {
	n := 0
	for _, rec := range m.rows {
		if rec.base().VisitID == visitID {
			n++
		}
	}
	return n, nil
}

// removeVisit mimics ON DELETE CASCADE.
func (m *memTable[T]) removeVisit(visitID uuid.UUID) {
	for id, rec := range m.rows {
		if rec.base().VisitID == visitID {
			delete(m.rows, id)
		}
	}
}

type memVitals struct {
	*memTable[*Vitals]
}

func (m memVitals) ListByPatientType(_ context.Context, patientID uuid.UUID, vitalType string) ([]*Vitals, error) {
	var out []*Vitals
	for _, id := range m.order {
		if v, ok := m.rows[id]; ok && v.PatientID == patientID && v.Type == vitalType {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockVisits struct {
	visits  map[uuid.UUID]*encounter.Visit
	locked  []uuid.UUID
	onLock  func(id uuid.UUID)
	failDel error
}

func newMockVisits() *mockVisits {
	return &mockVisits{visits: make(map[uuid.UUID]*encounter.Visit)}
}

func (m *mockVisits) add(patientID uuid.UUID) *encounter.Visit {
	v := &encounter.Visit{ID: uuid.New(), PatientID: patientID, VisitDate: time.Now(), Status: "planned"}
	m.visits[v.ID] = v
	return v
}

func (m *mockVisits) GetByID(_ context.Context, id uuid.UUID) (*encounter.Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, apperr.NotFound("visit")
	}
	return v, nil
}

func (m *mockVisits) Lock(_ context.Context, id uuid.UUID) (bool, error) {
	m.locked = append(m.locked, id)
	if m.onLock != nil {
		m.onLock(id)
	}
	_, ok := m.visits[id]
	return ok, nil
}

func (m *mockVisits) Delete(_ context.Context, id uuid.UUID) error {
	if m.failDel != nil {
		return m.failDel
	}
	if _, ok := m.visits[id]; !ok {
		return errors.New("visit already deleted")
	}
	delete(m.visits, id)
	return nil
}
