package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medibook/medibook/internal/api"
	"github.com/medibook/medibook/internal/identity"
	"github.com/medibook/medibook/internal/policy"
	"github.com/medibook/medibook/internal/scheduling"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (*scheduling.Caller, error) {
	args := m.Called(ctx, token)
	if c := args.Get(0); c != nil {
		return c.(*scheduling.Caller), args.Error(1)
	}
	return nil, args.Error(1)
}

// memRepo backs the service with maps so handler tests run against the real
// service and policy without a database.
type memRepo struct {
	doctors      map[uuid.UUID]scheduling.Doctor
	departments  map[uuid.UUID]scheduling.Department
	appointments map[uuid.UUID]scheduling.Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]scheduling.Doctor),
		departments:  make(map[uuid.UUID]scheduling.Department),
		appointments: make(map[uuid.UUID]scheduling.Appointment),
	}
}

func (r *memRepo) GetProfileByID(context.Context, uuid.UUID) (*scheduling.Profile, error) {
	return nil, scheduling.ErrProfileNotFound
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*scheduling.Doctor, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, scheduling.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) GetDoctorByProfileID(context.Context, uuid.UUID) (*scheduling.Doctor, error) {
	return nil, scheduling.ErrDoctorNotFound
}

func (r *memRepo) ListDoctors(_ context.Context, _ *uuid.UUID) ([]scheduling.DoctorDetail, error) {
	var out []scheduling.DoctorDetail
	for _, d := range r.doctors {
		out = append(out, scheduling.DoctorDetail{Doctor: d})
	}
	return out, nil
}

func (r *memRepo) ListDepartments(context.Context) ([]scheduling.Department, error) {
	var out []scheduling.Department
	for _, d := range r.departments {
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) CreateDepartment(_ context.Context, name, description string) (*scheduling.Department, error) {
	dep := scheduling.Department{ID: uuid.New(), Name: name, Description: description}
	r.departments[dep.ID] = dep
	return &dep, nil
}

func (r *memRepo) UpdateDepartment(_ context.Context, id uuid.UUID, name, description string) (*scheduling.Department, error) {
	dep, ok := r.departments[id]
	if !ok {
		return nil, scheduling.ErrDepartmentNotFound
	}
	dep.Name = name
	dep.Description = description
	r.departments[id] = dep
	return &dep, nil
}

func (r *memRepo) ListAvailability(context.Context, uuid.UUID) ([]scheduling.Availability, error) {
	return nil, nil
}

func (r *memRepo) ReplaceAvailability(_ context.Context, _ uuid.UUID, windows []scheduling.Availability) ([]scheduling.Availability, error) {
	return windows, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, appt *scheduling.Appointment) (*scheduling.Appointment, error) {
	for _, existing := range r.appointments {
		if existing.DoctorID == appt.DoctorID &&
			existing.AppointmentDate == appt.AppointmentDate &&
			existing.AppointmentTime == appt.AppointmentTime &&
			!existing.Status.IsTerminal() {
			return nil, scheduling.ErrSlotTaken
		}
	}
	created := *appt
	created.ID = uuid.New()
	created.Status = scheduling.StatusPending
	created.CreatedAt = time.Now()
	r.appointments[created.ID] = created
	return &created, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) ListAppointments(_ context.Context, f scheduling.AppointmentFilter) ([]scheduling.AppointmentDetail, error) {
	var out []scheduling.AppointmentDetail
	for _, a := range r.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, scheduling.AppointmentDetail{Appointment: a})
	}
	return out, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to scheduling.AppointmentStatus, change scheduling.StatusChange) (*scheduling.Appointment, error) {
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, scheduling.ErrAppointmentNotFound
	}
	a.Status = to
	if change.DoctorNote != nil {
		a.DoctorNote = change.DoctorNote
	}
	if change.CancelledBy != nil {
		a.CancelledBy = change.CancelledBy
	}
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) InsertEvent(context.Context, scheduling.EventLog) error { return nil }

type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopPublisher struct{}

func (nopPublisher) PublishAppointmentChange(context.Context, scheduling.ChangeEvent) error {
	return nil
}

type env struct {
	router   http.Handler
	repo     *memRepo
	resolver *mockResolver

	doctorID uuid.UUID
	patient  *scheduling.Caller
	doctor   *scheduling.Caller
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := newMemRepo()
	resolver := &mockResolver{}
	svc := scheduling.NewService(repo, policy.NewEngine(), passLocker{}, nopPublisher{}, zerolog.Nop())

	e := &env{
		repo:     repo,
		resolver: resolver,
		doctorID: uuid.New(),
	}
	repo.doctors[e.doctorID] = scheduling.Doctor{ID: e.doctorID, ProfileID: uuid.New()}

	e.patient = &scheduling.Caller{ProfileID: uuid.New(), Role: scheduling.RolePatient, EmailConfirmed: true}
	did := e.doctorID
	e.doctor = &scheduling.Caller{ProfileID: uuid.New(), Role: scheduling.RoleDoctor, DoctorID: &did, EmailConfirmed: true}

	resolver.On("Resolve", mock.Anything, "patient-token").Return(e.patient, nil)
	resolver.On("Resolve", mock.Anything, "doctor-token").Return(e.doctor, nil)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return(nil, identity.ErrUnauthenticated)

	e.router = api.NewRouter(api.RouterConfig{
		Service:  svc,
		Resolver: resolver,
		Logger:   zerolog.Nop(),
		Env:      "test",
		Version:  "test",
	})
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func createBody(doctorID uuid.UUID) map[string]any {
	return map[string]any{
		"doctor_id": doctorID.String(),
		"date":      time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		"time":      "10:00",
	}
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	t.Run("no token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/appointments", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", decodeError(t, rec).Error)
	})

	t.Run("bad token", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/appointments", "nonsense", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("public routes stay open", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/departments", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/departments", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/departments", nil)
	req.Header.Set("X-Request-ID", "req-42")
	echo := httptest.NewRecorder()
	e.router.ServeHTTP(echo, req)
	assert.Equal(t, "req-42", echo.Header().Get("X-Request-ID"))
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost, "/appointments", "patient-token", createBody(e.doctorID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp api.AppointmentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, e.patient.ProfileID, resp.PatientID)
		assert.Equal(t, e.doctorID, resp.DoctorID)
	})

	t.Run("slot taken", func(t *testing.T) {
		e := newEnv(t)
		body := createBody(e.doctorID)
		rec := e.do(t, http.MethodPost, "/appointments", "patient-token", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = e.do(t, http.MethodPost, "/appointments", "patient-token", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "slot_taken", decodeError(t, rec).Error)
	})

	t.Run("doctor cannot book", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost, "/appointments", "doctor-token", createBody(e.doctorID))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decodeError(t, rec).Error)
	})

	t.Run("past slot", func(t *testing.T) {
		e := newEnv(t)
		body := createBody(e.doctorID)
		body["date"] = "2020-01-01"
		rec := e.do(t, http.MethodPost, "/appointments", "patient-token", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_slot", decodeError(t, rec).Error)
	})

	t.Run("unknown doctor", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, http.MethodPost, "/appointments", "patient-token", createBody(uuid.New()))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Error)
	})

	t.Run("malformed doctor id", func(t *testing.T) {
		e := newEnv(t)
		body := createBody(e.doctorID)
		body["doctor_id"] = "not-a-uuid"
		rec := e.do(t, http.MethodPost, "/appointments", "patient-token", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDecisionEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/appointments", "patient-token", createBody(e.doctorID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var appt api.AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	path := fmt.Sprintf("/appointments/%s/decision", appt.ID)

	t.Run("bogus outcome", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, path, "doctor-token", map[string]any{"outcome": "maybe"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_outcome", decodeError(t, rec).Error)
	})

	t.Run("confirm", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, path, "doctor-token", map[string]any{"outcome": "confirmed"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp api.AppointmentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "confirmed", resp.Status)
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, path, "doctor-token", map[string]any{"outcome": "rejected"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
	})

	t.Run("patient cancel after confirm conflicts", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), "patient-token", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)
	})
}

func TestListAppointmentsEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/appointments", "patient-token", createBody(e.doctorID))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodGet, "/appointments?status=pending", "patient-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []api.AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, e.patient.ProfileID, resp[0].PatientID)
}

func TestDepartmentEndpoints(t *testing.T) {
	e := newEnv(t)
	admin := &scheduling.Caller{ProfileID: uuid.New(), Role: scheduling.RoleAdmin, EmailConfirmed: true}
	e.resolver.ExpectedCalls = nil
	e.resolver.On("Resolve", mock.Anything, "admin-token").Return(admin, nil)
	e.resolver.On("Resolve", mock.Anything, "patient-token").Return(e.patient, nil)

	t.Run("admin creates", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/departments", "admin-token", map[string]any{"name": "Radiology"})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("name required", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/departments", "admin-token", map[string]any{"description": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("patient denied", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/departments", "patient-token", map[string]any{"name": "Radiology"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSetAvailabilityEndpoint(t *testing.T) {
	e := newEnv(t)
	path := fmt.Sprintf("/doctors/%s/availability", e.doctorID)

	t.Run("owning doctor", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, "doctor-token", map[string]any{
			"windows": []map[string]any{{"weekday": 1, "start_time": "09:00", "end_time": "12:00"}},
		})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("bad window", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, "doctor-token", map[string]any{
			"windows": []map[string]any{{"weekday": 1, "start_time": "12:00", "end_time": "09:00"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_window", decodeError(t, rec).Error)
	})

	t.Run("patient denied", func(t *testing.T) {
		rec := e.do(t, http.MethodPut, path, "patient-token", map[string]any{
			"windows": []map[string]any{{"weekday": 1, "start_time": "09:00", "end_time": "12:00"}},
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
