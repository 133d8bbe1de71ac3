package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/validate"
	"github.com/mdhs/ehr/pkg/pagination"
)

type stubVisits struct {
	visits []*encounter.Visit
}

func (s stubVisits) ListByPatient(_ context.Context, _ auth.Actor, patientID uuid.UUID, _ pagination.Params) ([]*encounter.Visit, int, error) {
	var out []*encounter.Visit
	for _, v := range s.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, len(out), nil
}

type handlerFixture struct {
	h        *Handler
	e        *echo.Echo
	accounts *accountFixture
	patients *patientFixture
	visits   *stubVisits
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	f := &handlerFixture{
		accounts: newAccountFixture(t),
		patients: newPatientFixture(),
		visits:   &stubVisits{},
		e:        echo.New(),
	}
	f.e.Validator = validate.New()
	f.h = NewHandler(f.accounts.svc, f.patients.svc, f.visits)
	return f
}

func (f *handlerFixture) context(method, body string, actor *auth.Actor) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != nil {
		req = req.WithContext(auth.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	return f.e.NewContext(req, rec), rec
}

func httpErr(t *testing.T, err error) (*echo.HTTPError, apperr.Body) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	body, ok := he.Message.(apperr.Body)
	require.True(t, ok)
	return he, body
}

const registerBody = `{"username":"jdoe","email":"jane@example.org","password":"Secret123",
	"confirm_password":"Secret123","first_name":"Jane","last_name":"Doe","gender":"female",
	"contact_number":"5550101234","id_card_number":"12345678901","home_address":"1 Main Street",
	"license_number":"LIC-42"}`

func TestHandler_Register(t *testing.T) {
	f := newHandlerFixture(t)

	c, rec := f.context(http.MethodPost, registerBody, nil)
	require.NoError(t, f.h.Register(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password_hash")
	assert.Contains(t, rec.Body.String(), "MDHS-USER-2026-0001")

	c, _ = f.context(http.MethodPost, registerBody, nil)
	he, body := httpErr(t, f.h.Register(c))
	assert.Equal(t, http.StatusConflict, he.Code)
	assert.Contains(t, body.Fields, "username")
}

func TestHandler_RegisterValidation(t *testing.T) {
	f := newHandlerFixture(t)
	weak := strings.Replace(registerBody, `"password":"Secret123"`, `"password":"secret"`, 1)
	weak = strings.Replace(weak, `"12345678901"`, `"123"`, 1)

	c, _ := f.context(http.MethodPost, weak, nil)
	he, body := httpErr(t, f.h.Register(c))
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
	assert.Contains(t, body.Fields, "password")
	assert.Contains(t, body.Fields, "id_card_number")
	assert.Zero(t, f.accounts.users.count())
}

func TestHandler_Login(t *testing.T) {
	f := newHandlerFixture(t)
	c, _ := f.context(http.MethodPost, registerBody, nil)
	require.NoError(t, f.h.Register(c))

	c, rec := f.context(http.MethodPost, `{"username":"jdoe","password":"Secret123","role":"doctor"}`, nil)
	require.NoError(t, f.h.Login(c))
	var resp struct {
		Data LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Token)
	assert.True(t, resp.Data.ExpiresAt.After(time.Now()))

	c, _ = f.context(http.MethodPost, `{"username":"jdoe","password":"nope","role":"doctor"}`, nil)
	he, body := httpErr(t, f.h.Login(c))
	assert.Equal(t, http.StatusUnauthorized, he.Code)
	assert.Equal(t, "invalid username or password", body.Message)
}

func TestHandler_PatientLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	doctor := f.patients.doctor

	c, rec := f.context(http.MethodPost, `{"first_name":"Jane","last_name":"Doe","gender":"female",
		"contact_number":"5550109999","home_address":"1 Main Street","blood_type":"AB-"}`, &doctor)
	require.NoError(t, f.h.CreatePatient(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data Patient `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	f.visits.visits = []*encounter.Visit{{ID: uuid.New(), PatientID: id, ReasonCode: "R51"}}

	c, rec = f.context(http.MethodGet, "", &doctor)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	require.NoError(t, f.h.GetPatient(c))
	assert.Contains(t, rec.Body.String(), `"patient_id":"MDHS-2026-0001"`)
	assert.Contains(t, rec.Body.String(), `"reason_code":"R51"`)

	c, _ = f.context(http.MethodDelete, `{"confirm_name":"Jane D"}`, &doctor)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	he, _ := httpErr(t, f.h.DeletePatient(c))
	assert.Equal(t, http.StatusConflict, he.Code)

	c, rec = f.context(http.MethodDelete, `{"confirm_name":"jane doe"}`, &doctor)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	require.NoError(t, f.h.DeletePatient(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.patients.repo.count())
}

func TestHandler_GetPatientRequiresActor(t *testing.T) {
	f := newHandlerFixture(t)
	c, _ := f.context(http.MethodGet, "", nil)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	he, _ := httpErr(t, f.h.GetPatient(c))
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestHandler_UploadProfileImage(t *testing.T) {
	f := newHandlerFixture(t)
	u, err := f.accounts.svc.Register(ctx, registerRequest("jdoe", "jane@example.org"))
	require.NoError(t, err)
	actor := auth.Actor{UserID: u.ID, Role: auth.RoleDoctor}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "me.png")
	require.NoError(t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 1, 2, 3))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req = req.WithContext(auth.WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()

	require.NoError(t, f.h.UploadProfileImage(f.e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.accounts.blobs.Len())
}
