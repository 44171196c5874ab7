package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/config"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

var statusEvents = map[Status]string{
	StatusConfirmed: EventAppointmentConfirmed,
	StatusCancelled: EventAppointmentCancelled,
	StatusCompleted: EventAppointmentCompleted,
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService builds the appointment service. A nil locker gives a service
// that can read and transition appointments but not book them.
func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, logger *zap.Logger) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
}

// Location is the clinic wall clock every slot is judged in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Book creates a pending appointment for the calling patient.
// The slot is re-checked and written under a per doctor slot lock, and the
// store's unique index rejects anything that slips past both.
func (s *Service) Book(ctx context.Context, actor access.Actor, req BookingRequest) (*Appointment, error) {
	if err := access.Require(actor.Role, access.ActionCreateAppointment, true); err != nil {
		return nil, err
	}
	if s.locker == nil {
		return nil, ErrBookingDisabled
	}

	at := req.ScheduledAt.In(s.loc)
	if err := ValidateSlot(at); err != nil {
		return nil, err
	}
	if !at.After(s.now()) {
		return nil, fmt.Errorf("%s: %w", at.Format(time.RFC3339), ErrPastBooking)
	}

	specialtyID, err := s.repo.GetDoctorSpecialty(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if req.SpecialtyID == uuid.Nil {
		req.SpecialtyID = specialtyID
	} else if req.SpecialtyID != specialtyID {
		return nil, ErrSpecialtyMismatch
	}

	weekly, err := s.weekly(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, req.DoctorID, at, func(lockCtx context.Context) error {
		existing, err := s.dayAppointments(lockCtx, req.DoctorID, at)
		if err != nil {
			return err
		}
		if err := CheckBookable(req.DoctorID, weekly, at, existing); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			PatientID:   actor.ID,
			DoctorID:    req.DoctorID,
			SpecialtyID: req.SpecialtyID,
			ScheduledAt: at,
			Status:      StatusPending,
			Notes:       req.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id":   actor.ID.String(),
			"doctor_id":    req.DoctorID.String(),
			"scheduled_at": at,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("slot is being booked: %w", ErrConflict)
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusConfirmed)
}

func (s *Service) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, StatusCompleted)
}

// ChangeStatus runs the state machine against the stored appointment and
// persists the result with a compare-and-set on the status it was read with.
func (s *Service) ChangeStatus(ctx context.Context, actor access.Actor, id uuid.UUID, target Status) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	next, err := Transition(*appt, target, actor)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, next.Status)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.lostRace(ctx, id)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, statusEvents[target], map[string]any{
		"from":  appt.Status,
		"to":    target,
		"actor": actor.String(),
	})

	return updated, nil
}

// Delete physically removes an appointment in a terminal state.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := CheckDeletion(*appt, actor); err != nil {
		return err
	}

	if err := s.repo.DeleteAppointment(ctx, id, appt.Status); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return s.lostRace(ctx, id)
		}
		return err
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{
		"status": appt.Status,
		"actor":  actor.String(),
	})
	return nil
}

// Get returns an appointment the actor is allowed to see.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !visible(actor, *appt) {
		return nil, fmt.Errorf("%s may not view appointment %s: %w", actor, id, ErrUnauthorized)
	}
	return appt, nil
}

// load fetches an appointment and rejects doctors acting on another doctor's
// appointment. Patient ownership is left to the state machine.
func (s *Service) load(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if actor.Role == access.RoleDoctor && appt.DoctorID != actor.ID {
		return nil, fmt.Errorf("%s is not assigned to appointment %s: %w", actor, id, ErrUnauthorized)
	}
	return appt, nil
}

// lostRace tells a concurrent change apart from a concurrent delete after a
// conditional write matched no row.
func (s *Service) lostRace(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.GetAppointmentByID(ctx, id)
	switch {
	case err == nil:
		return fmt.Errorf("appointment %s: %w", id, ErrConflict)
	case errors.Is(err, ErrAppointmentNotFound):
		return err
	default:
		return fmt.Errorf("reload appointment: %w", err)
	}
}

func visible(actor access.Actor, a Appointment) bool {
	switch actor.Role {
	case access.RoleAdmin:
		return true
	case access.RoleDoctor:
		return a.DoctorID == actor.ID
	case access.RolePatient:
		return a.PatientID == actor.ID
	}
	return false
}

// ListQuery narrows List. DoctorID and PatientID are honoured for admins only.
type ListQuery struct {
	Status    *Status
	When      When
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

// List returns the actor's appointments: a patient's own, a doctor's
// assigned, or the whole clinic for an admin. Results are ordered by time.
func (s *Service) List(ctx context.Context, actor access.Actor, q ListQuery) ([]Appointment, error) {
	f, err := scopeFilter(actor, q)
	if err != nil {
		return nil, err
	}

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	when := q.When
	if when == "" {
		when = WhenAll
	}
	out := FilterByWhen(appts, when, s.now().In(s.loc))
	SortBySchedule(out)
	return out, nil
}

func scopeFilter(actor access.Actor, q ListQuery) (Filter, error) {
	if err := access.Require(actor.Role, access.ActionViewOwnAppointments, true); err != nil {
		return Filter{}, err
	}

	f := Filter{Status: q.Status}
	switch actor.Role {
	case access.RolePatient:
		f.PatientID = &actor.ID
	case access.RoleDoctor:
		f.DoctorID = &actor.ID
	default:
		if err := access.Require(actor.Role, access.ActionManageAllAppointments, false); err != nil {
			return Filter{}, err
		}
		f.DoctorID = q.DoctorID
		f.PatientID = q.PatientID
	}
	return f, nil
}

// Summary counts the actor's appointments for a dashboard.
func (s *Service) Summary(ctx context.Context, actor access.Actor) (Summary, error) {
	appts, err := s.List(ctx, actor, ListQuery{})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(appts, s.now().In(s.loc)), nil
}

// PendingDelta returns the actor's pending appointments missing from known.
func (s *Service) PendingDelta(ctx context.Context, actor access.Actor, known []uuid.UUID) ([]Appointment, error) {
	pending := StatusPending
	curr, err := s.List(ctx, actor, ListQuery{Status: &pending})
	if err != nil {
		return nil, err
	}

	prev := make([]Appointment, len(known))
	for i, id := range known {
		prev[i] = Appointment{ID: id, Status: StatusPending}
	}
	return NewlyPending(prev, curr), nil
}

// PendingAppointments lists every pending appointment in the clinic. It is
// used by background workers that run without a caller identity.
func (s *Service) PendingAppointments(ctx context.Context) ([]Appointment, error) {
	pending := StatusPending
	appts, err := s.repo.ListAppointments(ctx, Filter{Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("list pending appointments: %w", err)
	}
	return appts, nil
}

// WeeklyAvailability returns a doctor's stored schedule or the default one.
func (s *Service) WeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (WeeklyAvailability, error) {
	if _, err := s.repo.GetDoctorSpecialty(ctx, doctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return s.weekly(ctx, doctorID)
}

// UpdateSchedule replaces the calling doctor's weekly availability.
func (s *Service) UpdateSchedule(ctx context.Context, actor access.Actor, w WeeklyAvailability) (WeeklyAvailability, error) {
	if err := access.Require(actor.Role, access.ActionManageOwnSchedule, true); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.SaveWeeklyAvailability(ctx, actor.ID, w); err != nil {
		return nil, fmt.Errorf("save weekly availability: %w", err)
	}

	s.logger.Info("weekly availability updated", zap.String("doctor_id", actor.ID.String()))
	return w, nil
}

// FreeSlots lists the future bookable slots of a doctor on date's calendar day
// in the clinic location.
func (s *Service) FreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	weekly, err := s.WeeklyAvailability(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	day := date.In(s.loc)
	existing, err := s.dayAppointments(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	return FreeSlots(doctorID, weekly, day, existing, s.now()), nil
}

// AvailableDoctors returns the doctors of a specialty bookable at at.
func (s *Service) AvailableDoctors(ctx context.Context, specialtyID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	at = at.In(s.loc)
	if err := ValidateSlot(at); err != nil {
		return nil, err
	}
	if !at.After(s.now()) {
		return nil, fmt.Errorf("%s: %w", at.Format(time.RFC3339), ErrPastBooking)
	}

	doctorIDs, err := s.repo.ListDoctorIDsBySpecialty(ctx, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	out := make([]uuid.UUID, 0, len(doctorIDs))
	for _, id := range doctorIDs {
		weekly, err := s.weekly(ctx, id)
		if err != nil {
			return nil, err
		}
		existing, err := s.dayAppointments(ctx, id, at)
		if err != nil {
			return nil, err
		}
		if IsBookable(id, weekly, at, existing) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Service) weekly(ctx context.Context, doctorID uuid.UUID) (WeeklyAvailability, error) {
	w, err := s.repo.GetWeeklyAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load weekly availability: %w", err)
	}
	if len(w) == 0 {
		return DefaultWeeklyAvailability(), nil
	}
	return w, nil
}

func (s *Service) dayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	from, to := dayBounds(day)
	appts, err := s.repo.ListAppointments(ctx, Filter{DoctorID: &doctorID, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
		return
	}

	s.logger.Info(eventType, zap.String("appointment_id", appointmentID.String()))
}
