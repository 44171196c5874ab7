package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// Creation, updates and deletes are conditional at the store. A unique
	// violation on create is reported as ErrConflict; a status mismatch on
	// update or delete as ErrAppointmentNotFound.
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID, status Status) error

	// Doctors
	GetDoctorSpecialty(ctx context.Context, doctorID uuid.UUID) (uuid.UUID, error)
	ListDoctorIDsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]uuid.UUID, error)
	GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (WeeklyAvailability, error)
	SaveWeeklyAvailability(ctx context.Context, doctorID uuid.UUID, w WeeklyAvailability) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// dayBounds returns [midnight, next midnight) of t's calendar date.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := TimeOfDay(0).On(t)
	return start, start.AddDate(0, 0, 1)
}
