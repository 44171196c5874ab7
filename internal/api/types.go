package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

// BookAppointmentRequest takes either scheduled_at (RFC 3339) or a date and
// time pair read on the clinic wall clock.
type BookAppointmentRequest struct {
	DoctorID    string `json:"doctor_id"`
	SpecialtyID string `json:"specialty_id,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (req BookAppointmentRequest) toBooking(loc *time.Location) (appointment.BookingRequest, error) {
	var out appointment.BookingRequest

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return out, errors.New("doctor_id must be a valid UUID")
	}
	out.DoctorID = doctorID

	if req.SpecialtyID != "" {
		if out.SpecialtyID, err = uuid.Parse(req.SpecialtyID); err != nil {
			return out, errors.New("specialty_id must be a valid UUID")
		}
	}

	switch {
	case req.ScheduledAt != "":
		if out.ScheduledAt, err = time.Parse(time.RFC3339, req.ScheduledAt); err != nil {
			return out, errors.New("scheduled_at must be RFC 3339")
		}
	case req.Date != "" && req.Time != "":
		if out.ScheduledAt, err = time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, loc); err != nil {
			return out, errors.New("date must be YYYY-MM-DD and time HH:MM")
		}
	default:
		return out, errors.New("scheduled_at or date and time are required")
	}

	out.Notes = strings.TrimSpace(req.Notes)
	return out, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateSpecialtyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     string      `json:"date"`
	Slots    []time.Time `json:"slots"`
}

type AppointmentListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

func listResponse(appts []appointment.Appointment) AppointmentListResponse {
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return AppointmentListResponse{Appointments: appts, Count: len(appts)}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("could not parse JSON: %w", err)
	}
	return nil
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{access.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},

	{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{appointment.ErrInvalidDeletion, http.StatusConflict, "invalid_deletion"},
	{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{appointment.ErrConflict, http.StatusConflict, "conflict"},
	{account.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{account.ErrSpecialtyExists, http.StatusConflict, "specialty_exists"},
	{account.ErrSpecialtyInUse, http.StatusConflict, "specialty_in_use"},

	{appointment.ErrNotFound, http.StatusNotFound, "not_found"},
	{account.ErrNotFound, http.StatusNotFound, "not_found"},

	{appointment.ErrInvalidSlot, http.StatusUnprocessableEntity, "invalid_slot"},
	{appointment.ErrPastBooking, http.StatusUnprocessableEntity, "past_booking"},
	{appointment.ErrDoctorUnavailable, http.StatusUnprocessableEntity, "doctor_unavailable"},
	{appointment.ErrOutsideWorkingHours, http.StatusUnprocessableEntity, "outside_working_hours"},
	{appointment.ErrSpecialtyMismatch, http.StatusUnprocessableEntity, "specialty_mismatch"},
	{appointment.ErrInvalidSchedule, http.StatusUnprocessableEntity, "invalid_schedule"},

	{account.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// are logged and reported without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	zap.L().Error("unhandled service error",
		zap.String("path", r.URL.Path),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
