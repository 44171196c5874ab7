package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/clinic-appointments/internal/access"
)

var (
	ErrUnauthorized      = access.ErrUnauthorized
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidDeletion   = errors.New("appointment cannot be deleted in its current state")
	ErrConflict          = errors.New("appointment was modified concurrently")
	ErrNotFound          = errors.New("not found")

	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
)

// Booking validation failures. ErrSlotTaken is the locally detected form of a
// conflict; ErrConflict means a concurrent writer won.
var (
	ErrInvalidSlot         = errors.New("time is not one of the bookable slots")
	ErrPastBooking         = errors.New("cannot book an appointment in the past")
	ErrDoctorUnavailable   = errors.New("doctor does not work on that day")
	ErrOutsideWorkingHours = errors.New("time is outside the doctor's working hours")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrInvalidSchedule     = errors.New("invalid weekly schedule")
)

var ErrSpecialtyMismatch = errors.New("doctor does not practice the requested specialty")

// ErrBookingDisabled is returned by Book on a Service built without a slot locker.
var ErrBookingDisabled = errors.New("booking needs a slot locker")
