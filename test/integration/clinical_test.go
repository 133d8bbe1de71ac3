//go:build integration

package integration

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/domain/clinical"
	"github.com/mdhs/ehr/internal/domain/documents"
	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{7}, 64)...)

func bloodPressure(value string, at time.Time) *clinical.Vitals {
	return &clinical.Vitals{Status: "final", Type: "blood-pressure", Value: value, Unit: "mmHg", DateRecorded: at}
}

func (s *stack) visit(t *testing.T, doctor auth.Actor, patientID uuid.UUID) *encounter.Visit {
	t.Helper()
	v, err := s.visits.Create(context.Background(), doctor, patientID, encounter.VisitInput{
		VisitDate:  time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
		ReasonCode: "I10",
	})
	require.NoError(t, err)
	return v
}

func countRows(t *testing.T, table string, column string, id uuid.UUID) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		"SELECT count(*) FROM "+table+" WHERE "+column+" = $1", id).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestCascade_LastRecordRemovesVisit(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	doctor := s.doctor(t, "house")
	p := s.patient(t, doctor, "Ada", "Lovelace")
	v := s.visit(t, doctor, p.ID)

	first, err := s.clinical.CreateVitals(ctx, doctor, v.ID, bloodPressure("120/80", v.VisitDate))
	require.NoError(t, err)
	second, err := s.clinical.CreateVitals(ctx, doctor, v.ID, bloodPressure("135/85", v.VisitDate.Add(time.Hour)))
	require.NoError(t, err)

	res, err := s.clinical.DeleteVitals(ctx, doctor, first.ID)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.False(t, res.VisitDeleted)
	assert.Equal(t, 1, countRows(t, "visit", "id", v.ID))

	res, err = s.clinical.DeleteVitals(ctx, doctor, second.ID)
	require.NoError(t, err)
	assert.True(t, res.VisitDeleted)
	assert.Zero(t, countRows(t, "visit", "id", v.ID))
}

func TestVisitRecords_GathersEveryKind(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	doctor := s.doctor(t, "house")
	p := s.patient(t, doctor, "Ada", "Lovelace")
	v := s.visit(t, doctor, p.ID)

	_, err := s.clinical.CreateVitals(ctx, doctor, v.ID, bloodPressure("120/80", v.VisitDate))
	require.NoError(t, err)

	recs, err := s.clinical.VisitRecords(ctx, doctor, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, recs.Visit.ID)
	assert.Len(t, recs.Vitals, 1)
	assert.NotNil(t, recs.Observations)
	assert.Empty(t, recs.Appointments)
}

func TestPatientDelete_RemovesEverything(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	doctor := s.doctor(t, "house")
	p := s.patient(t, doctor, "Ada", "Lovelace")
	v := s.visit(t, doctor, p.ID)

	_, err := s.clinical.CreateVitals(ctx, doctor, v.ID, bloodPressure("120/80", v.VisitDate))
	require.NoError(t, err)
	_, err = s.documents.Upload(ctx, doctor, p.ID, documents.UploadInput{VisitID: &v.ID, FileName: "scan.png"},
		bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.Equal(t, 1, s.blobs.Len())

	err = s.patients.Delete(ctx, doctor, p.ID, "Ada Love")
	require.True(t, errors.Is(err, apperr.ErrConfirmation), "got %v", err)
	assert.Equal(t, 1, countRows(t, "patient", "id", p.ID))

	require.NoError(t, s.patients.Delete(ctx, doctor, p.ID, "ada lovelace"))
	assert.Zero(t, countRows(t, "patient", "id", p.ID))
	assert.Zero(t, countRows(t, "visit", "patient_id", p.ID))
	assert.Zero(t, countRows(t, "vitals", "patient_id", p.ID))
	assert.Zero(t, countRows(t, "document", "patient_id", p.ID))
	assert.Zero(t, countRows(t, "doctor_patient", "patient_id", p.ID))
	assert.Zero(t, s.blobs.Len())
}

func TestGrants_SharingAndLastDoctor(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	house := s.doctor(t, "house")
	wilson := s.doctor(t, "wilson")
	p := s.patient(t, house, "Ada", "Lovelace")

	_, err := s.patients.Get(ctx, wilson, p.ID)
	require.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	_, err = s.grants.GrantByUsername(ctx, house, p.ID, "wilson")
	require.NoError(t, err)
	_, err = s.patients.Get(ctx, wilson, p.ID)
	require.NoError(t, err)

	doctors, err := s.grants.ListDoctors(ctx, house, p.ID)
	require.NoError(t, err)
	assert.Len(t, doctors, 2)

	require.NoError(t, s.grants.Revoke(ctx, wilson, p.ID, house.UserID))
	err = s.grants.Revoke(ctx, wilson, p.ID, wilson.UserID)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "last doctor must stay, got %v", err)

	_, err = s.patients.Get(ctx, house, p.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)
}

func TestVitalsChart_RendersSeries(t *testing.T) {
	s := newStack(t, fixedYear(2026))
	ctx := context.Background()
	doctor := s.doctor(t, "house")
	p := s.patient(t, doctor, "Ada", "Lovelace")
	v := s.visit(t, doctor, p.ID)

	for i, reading := range []string{"120/80", "128/82", "131/79"} {
		_, err := s.clinical.CreateVitals(ctx, doctor, v.ID, bloodPressure(reading, v.VisitDate.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, s.clinical.RenderVitalsChart(ctx, doctor, p.ID, "blood-pressure", &buf))
	assert.Contains(t, buf.String(), "systolic")
	assert.Contains(t, buf.String(), "diastolic")
}
