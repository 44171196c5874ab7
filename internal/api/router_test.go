package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

type MockAppointments struct {
	mock.Mock
}

func apptResult(args mock.Arguments) (*appointment.Appointment, error) {
	if v := args.Get(0); v != nil {
		return v.(*appointment.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

func apptsResult(args mock.Arguments) ([]appointment.Appointment, error) {
	if v := args.Get(0); v != nil {
		return v.([]appointment.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAppointments) Book(ctx context.Context, actor access.Actor, req appointment.BookingRequest) (*appointment.Appointment, error) {
	return apptResult(m.Called(ctx, actor, req))
}

func (m *MockAppointments) Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return apptResult(m.Called(ctx, actor, id))
}

func (m *MockAppointments) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return apptResult(m.Called(ctx, actor, id))
}

func (m *MockAppointments) Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return apptResult(m.Called(ctx, actor, id))
}

func (m *MockAppointments) Delete(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockAppointments) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	return apptResult(m.Called(ctx, actor, id))
}

func (m *MockAppointments) List(ctx context.Context, actor access.Actor, q appointment.ListQuery) ([]appointment.Appointment, error) {
	return apptsResult(m.Called(ctx, actor, q))
}

func (m *MockAppointments) Summary(ctx context.Context, actor access.Actor) (appointment.Summary, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(appointment.Summary), args.Error(1)
}

func (m *MockAppointments) PendingDelta(ctx context.Context, actor access.Actor, known []uuid.UUID) ([]appointment.Appointment, error) {
	return apptsResult(m.Called(ctx, actor, known))
}

func (m *MockAppointments) WeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (appointment.WeeklyAvailability, error) {
	args := m.Called(ctx, doctorID)
	if v := args.Get(0); v != nil {
		return v.(appointment.WeeklyAvailability), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAppointments) UpdateSchedule(ctx context.Context, actor access.Actor, w appointment.WeeklyAvailability) (appointment.WeeklyAvailability, error) {
	args := m.Called(ctx, actor, w)
	if v := args.Get(0); v != nil {
		return v.(appointment.WeeklyAvailability), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAppointments) FreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	args := m.Called(ctx, doctorID, date)
	if v := args.Get(0); v != nil {
		return v.([]time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAppointments) AvailableDoctors(ctx context.Context, specialtyID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, specialtyID, at)
	if v := args.Get(0); v != nil {
		return v.([]uuid.UUID), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAppointments) Location() *time.Location {
	return time.UTC
}

type MockAccounts struct {
	mock.Mock
}

func userResult(args mock.Arguments) (*account.User, error) {
	if v := args.Get(0); v != nil {
		return v.(*account.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) Register(ctx context.Context, in account.NewUser) (*account.User, error) {
	return userResult(m.Called(ctx, in))
}

func (m *MockAccounts) CreateUser(ctx context.Context, actor access.Actor, in account.NewUser) (*account.User, error) {
	return userResult(m.Called(ctx, actor, in))
}

func (m *MockAccounts) Login(ctx context.Context, email, password string) (*account.Session, error) {
	args := m.Called(ctx, email, password)
	if v := args.Get(0); v != nil {
		return v.(*account.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetUser(ctx context.Context, id uuid.UUID) (*account.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *MockAccounts) ListUsers(ctx context.Context, actor access.Actor, role *access.Role) ([]account.User, error) {
	args := m.Called(ctx, actor, role)
	if v := args.Get(0); v != nil {
		return v.([]account.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) ListSpecialties(ctx context.Context) ([]account.Specialty, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]account.Specialty), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) CreateSpecialty(ctx context.Context, actor access.Actor, name, description string) (*account.Specialty, error) {
	args := m.Called(ctx, actor, name, description)
	if v := args.Get(0); v != nil {
		return v.(*account.Specialty), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) DeleteSpecialty(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockAccounts) DoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]account.User, error) {
	args := m.Called(ctx, specialtyID)
	if v := args.Get(0); v != nil {
		return v.([]account.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	pingOK   = pingerFunc(func(context.Context) error { return nil })
	pingDown = pingerFunc(func(context.Context) error { return errors.New("down") })
)

type testServer struct {
	handler      http.Handler
	appointments *MockAppointments
	accounts     *MockAccounts
	tokens       *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		appointments: new(MockAppointments),
		accounts:     new(MockAccounts),
		tokens:       auth.NewTokenManager("test-key", time.Hour),
	}
	ts.handler = NewRouter(RouterConfig{
		Appointments: ts.appointments,
		Accounts:     ts.accounts,
		Tokens:       ts.tokens,
		Postgres:     pingOK,
		Redis:        pingOK,
		Env:          "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, actor *access.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		token, _, err := ts.tokens.Issue(*actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func newActor(role access.Role) *access.Actor {
	return &access.Actor{ID: uuid.New(), Role: role}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, nil, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	cases := []struct {
		name       string
		pg, redis  Pinger
		wantCode   int
		wantStatus string
	}{
		{"all up", pingOK, pingOK, http.StatusOK, "ok"},
		{"redis down", pingOK, pingDown, http.StatusOK, "degraded"},
		{"postgres down", pingDown, pingOK, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.pg, tc.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			var body ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantStatus, body.Status)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, nil, http.MethodGet, "/appointments", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", decodeError(t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeError(t, rec).Error)
}

func TestBookAppointment(t *testing.T) {
	ts := newTestServer(t)
	patient := newActor(access.RolePatient)
	doctorID := uuid.New()
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

	ts.appointments.On("Book", mock.Anything, *patient, appointment.BookingRequest{
		DoctorID:    doctorID,
		ScheduledAt: at,
		Notes:       "headache",
	}).Return(&appointment.Appointment{ID: uuid.New(), DoctorID: doctorID, ScheduledAt: at, Status: appointment.StatusPending}, nil)

	body := `{"doctor_id":"` + doctorID.String() + `","date":"2025-01-06","time":"09:00","notes":" headache "}`
	rec := ts.do(t, patient, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got appointment.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, appointment.StatusPending, got.Status)
	ts.appointments.AssertExpectations(t)
}

func TestBookAppointment_BadBody(t *testing.T) {
	ts := newTestServer(t)
	patient := newActor(access.RolePatient)

	for _, body := range []string{
		`not json`,
		`{"doctor_id":"nope","scheduled_at":"2025-01-06T09:00:00Z"}`,
		`{"doctor_id":"` + uuid.NewString() + `"}`,
		`{"doctor_id":"` + uuid.NewString() + `","scheduled_at":"monday"}`,
		`{"doctor_id":"` + uuid.NewString() + `","scheduled_at":"2025-01-06T09:00:00Z","extra":1}`,
	} {
		rec := ts.do(t, patient, http.MethodPost, "/appointments", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	ts.appointments.AssertNotCalled(t, "Book", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookAppointment_ErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{appointment.ErrConflict, http.StatusConflict, "conflict"},
		{appointment.ErrPastBooking, http.StatusUnprocessableEntity, "past_booking"},
		{appointment.ErrInvalidSlot, http.StatusUnprocessableEntity, "invalid_slot"},
		{appointment.ErrDoctorUnavailable, http.StatusUnprocessableEntity, "doctor_unavailable"},
		{appointment.ErrOutsideWorkingHours, http.StatusUnprocessableEntity, "outside_working_hours"},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, "not_found"},
		{access.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.wantErr, func(t *testing.T) {
			ts := newTestServer(t)
			ts.appointments.On("Book", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err)

			body := `{"doctor_id":"` + uuid.NewString() + `","scheduled_at":"2025-01-06T09:00:00Z"}`
			rec := ts.do(t, newActor(access.RolePatient), http.MethodPost, "/appointments", body)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantErr, decodeError(t, rec).Error)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.appointments.On("Summary", mock.Anything, mock.Anything).Return(appointment.Summary{}, errors.New("pq: password authentication failed"))

	rec := ts.do(t, newActor(access.RoleAdmin), http.MethodGet, "/appointments/summary", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestTransitions(t *testing.T) {
	doctor := newActor(access.RoleDoctor)
	id := uuid.New()

	for _, route := range []struct{ path, method string }{
		{"confirm", "Confirm"},
		{"cancel", "Cancel"},
		{"complete", "Complete"},
	} {
		t.Run(route.path, func(t *testing.T) {
			ts := newTestServer(t)
			ts.appointments.On(route.method, mock.Anything, *doctor, id).
				Return(&appointment.Appointment{ID: id}, nil)

			rec := ts.do(t, doctor, http.MethodPost, "/appointments/"+id.String()+"/"+route.path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			ts.appointments.AssertExpectations(t)
		})
	}

	ts := newTestServer(t)
	ts.appointments.On("Complete", mock.Anything, mock.Anything, id).Return(nil, appointment.ErrInvalidTransition)
	rec := ts.do(t, doctor, http.MethodPost, "/appointments/"+id.String()+"/complete", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = ts.do(t, doctor, http.MethodPost, "/appointments/not-a-uuid/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAppointment(t *testing.T) {
	ts := newTestServer(t)
	patient := newActor(access.RolePatient)
	ok, pending := uuid.New(), uuid.New()

	ts.appointments.On("Delete", mock.Anything, *patient, ok).Return(nil)
	ts.appointments.On("Delete", mock.Anything, *patient, pending).Return(appointment.ErrInvalidDeletion)

	assert.Equal(t, http.StatusNoContent, ts.do(t, patient, http.MethodDelete, "/appointments/"+ok.String(), "").Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, patient, http.MethodDelete, "/appointments/"+pending.String(), "").Code)
}

func TestListAppointments_Query(t *testing.T) {
	ts := newTestServer(t)
	admin := newActor(access.RoleAdmin)
	doctorID := uuid.New()
	confirmed := appointment.StatusConfirmed

	ts.appointments.On("List", mock.Anything, *admin, appointment.ListQuery{
		Status:   &confirmed,
		When:     appointment.WhenUpcoming,
		DoctorID: &doctorID,
	}).Return(nil, nil)

	rec := ts.do(t, admin, http.MethodGet, "/appointments?status=confirmed&when=upcoming&doctor_id="+doctorID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body AppointmentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Appointments)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, admin, http.MethodGet, "/appointments?status=done", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, admin, http.MethodGet, "/appointments?when=tomorrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, admin, http.MethodGet, "/appointments?doctor_id=x", "").Code)
}

func TestPendingDelta(t *testing.T) {
	ts := newTestServer(t)
	doctor := newActor(access.RoleDoctor)
	a, b := uuid.New(), uuid.New()

	ts.appointments.On("PendingDelta", mock.Anything, *doctor, []uuid.UUID{a, b}).
		Return([]appointment.Appointment{{ID: uuid.New(), Status: appointment.StatusPending}}, nil)

	rec := ts.do(t, doctor, http.MethodGet, "/appointments/pending?known="+a.String()+","+b.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body AppointmentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, doctor, http.MethodGet, "/appointments/pending?known=zzz", "").Code)
}

func TestLoginAndRegister(t *testing.T) {
	ts := newTestServer(t)
	user := account.User{ID: uuid.New(), Email: "ana@example.com", Role: access.RolePatient}

	ts.accounts.On("Login", mock.Anything, "ana@example.com", "hunter22").
		Return(&account.Session{Token: "t", User: user}, nil)
	ts.accounts.On("Login", mock.Anything, "ana@example.com", "wrong").
		Return(nil, auth.ErrInvalidCredentials)
	ts.accounts.On("Register", mock.Anything, mock.MatchedBy(func(n account.NewUser) bool {
		return n.Email == "ana@example.com"
	})).Return(&user, nil)

	rec := ts.do(t, nil, http.MethodPost, "/login", `{"email":"ana@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = ts.do(t, nil, http.MethodPost, "/login", `{"email":"ana@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, nil, http.MethodPost, "/register", `{"email":"ana@example.com","password":"hunter22","name":"Ana","surname":"Diaz"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUsersAndSpecialties(t *testing.T) {
	ts := newTestServer(t)
	admin := newActor(access.RoleAdmin)
	patient := newActor(access.RolePatient)
	doctorRole := access.RoleDoctor
	specialtyID := uuid.New()

	ts.accounts.On("ListUsers", mock.Anything, *admin, &doctorRole).Return(nil, nil)
	ts.accounts.On("ListSpecialties", mock.Anything).Return([]account.Specialty{{ID: specialtyID, Name: "Cardiology"}}, nil)
	ts.accounts.On("DeleteSpecialty", mock.Anything, *patient, specialtyID).Return(access.ErrUnauthorized)
	ts.accounts.On("DeleteSpecialty", mock.Anything, *admin, specialtyID).Return(account.ErrSpecialtyInUse)

	rec := ts.do(t, admin, http.MethodGet, "/users?role=doctor", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, ts.do(t, admin, http.MethodGet, "/users?role=nurse", "").Code)

	rec = ts.do(t, nil, http.MethodGet, "/specialties", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, patient, http.MethodDelete, "/specialties/"+specialtyID.String(), "").Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, admin, http.MethodDelete, "/specialties/"+specialtyID.String(), "").Code)
}

func TestSchedule(t *testing.T) {
	ts := newTestServer(t)
	doctor := newActor(access.RoleDoctor)
	weekly := appointment.DefaultWeeklyAvailability()

	ts.appointments.On("WeeklyAvailability", mock.Anything, doctor.ID).Return(weekly, nil)
	ts.appointments.On("UpdateSchedule", mock.Anything, *doctor, mock.Anything).Return(nil, appointment.ErrInvalidSchedule)

	rec := ts.do(t, doctor, http.MethodGet, "/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"monday"`)

	assert.Equal(t, http.StatusForbidden, ts.do(t, newActor(access.RolePatient), http.MethodGet, "/schedule", "").Code)

	body := `{"monday":{"start":"17:00","end":"08:00","available":true}}`
	assert.Equal(t, http.StatusUnprocessableEntity, ts.do(t, doctor, http.MethodPut, "/schedule", body).Code)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, doctor, http.MethodPut, "/schedule", `{"someday":{}}`).Code)
}

func TestDoctorSlotsAndAvailability(t *testing.T) {
	ts := newTestServer(t)
	patient := newActor(access.RolePatient)
	doctorID, specialtyID := uuid.New(), uuid.New()
	date := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	at := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

	ts.appointments.On("FreeSlots", mock.Anything, doctorID, date).Return([]time.Time{at}, nil)
	ts.appointments.On("AvailableDoctors", mock.Anything, specialtyID, at).Return([]uuid.UUID{doctorID}, nil)
	ts.accounts.On("GetUser", mock.Anything, doctorID).Return(&account.User{ID: doctorID, Role: access.RoleDoctor}, nil)

	rec := ts.do(t, patient, http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=2025-01-06", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Len(t, slots.Slots, 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, patient, http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=06-01-2025", "").Code)

	rec = ts.do(t, patient, http.MethodGet, "/doctors/available?specialty_id="+specialtyID.String()+"&at=2025-01-06T09:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doctors []account.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doctors))
	require.Len(t, doctors, 1)
	assert.Equal(t, doctorID, doctors[0].ID)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.handler = NewRouter(RouterConfig{
		Appointments:   ts.appointments,
		Accounts:       ts.accounts,
		Tokens:         ts.tokens,
		Postgres:       pingOK,
		Redis:          pingOK,
		RateLimitRPS:   0.001,
		RateLimitBurst: 1,
	})

	assert.Equal(t, http.StatusOK, ts.do(t, nil, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, nil, http.MethodGet, "/health/live", "").Code)
}
