package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
)

type AppointmentService interface {
	Book(ctx context.Context, actor access.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	Confirm(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Delete(ctx context.Context, actor access.Actor, id uuid.UUID) error
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, actor access.Actor, q appointment.ListQuery) ([]appointment.Appointment, error)
	Summary(ctx context.Context, actor access.Actor) (appointment.Summary, error)
	PendingDelta(ctx context.Context, actor access.Actor, known []uuid.UUID) ([]appointment.Appointment, error)

	WeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (appointment.WeeklyAvailability, error)
	UpdateSchedule(ctx context.Context, actor access.Actor, w appointment.WeeklyAvailability) (appointment.WeeklyAvailability, error)
	FreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error)
	AvailableDoctors(ctx context.Context, specialtyID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	Location() *time.Location
}

type AccountService interface {
	Register(ctx context.Context, in account.NewUser) (*account.User, error)
	CreateUser(ctx context.Context, actor access.Actor, in account.NewUser) (*account.User, error)
	Login(ctx context.Context, email, password string) (*account.Session, error)
	GetUser(ctx context.Context, id uuid.UUID) (*account.User, error)
	ListUsers(ctx context.Context, actor access.Actor, role *access.Role) ([]account.User, error)

	ListSpecialties(ctx context.Context) ([]account.Specialty, error)
	CreateSpecialty(ctx context.Context, actor access.Actor, name, description string) (*account.Specialty, error)
	DeleteSpecialty(ctx context.Context, actor access.Actor, id uuid.UUID) error
	DoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]account.User, error)
}

type RouterConfig struct {
	Appointments   AppointmentService
	Accounts       AccountService
	Tokens         TokenParser
	Postgres       Pinger
	Redis          Pinger
	Logger         *zap.Logger
	Env            string
	Version        string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/login", loginHandler(cfg.Accounts))
	r.Post("/register", registerHandler(cfg.Accounts))
	r.Get("/specialties", listSpecialtiesHandler(cfg.Accounts))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/me", meHandler(cfg.Accounts))
		r.Post("/users", createUserHandler(cfg.Accounts))
		r.Get("/users", listUsersHandler(cfg.Accounts))

		r.Post("/specialties", createSpecialtyHandler(cfg.Accounts))
		r.Delete("/specialties/{id}", deleteSpecialtyHandler(cfg.Accounts))
		r.Get("/specialties/{id}/doctors", specialtyDoctorsHandler(cfg.Accounts))

		r.Get("/doctors/available", availableDoctorsHandler(cfg.Appointments, cfg.Accounts))
		r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(cfg.Appointments))
		r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Appointments))

		r.Get("/schedule", getScheduleHandler(cfg.Appointments))
		r.Put("/schedule", updateScheduleHandler(cfg.Appointments))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Appointments))
			r.Get("/", listAppointmentsHandler(cfg.Appointments))
			r.Get("/summary", summaryHandler(cfg.Appointments))
			r.Get("/pending", pendingHandler(cfg.Appointments))
			r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.Delete("/{id}", deleteAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/confirm", transitionHandler(cfg.Appointments.Confirm))
			r.Post("/{id}/cancel", transitionHandler(cfg.Appointments.Cancel))
			r.Post("/{id}/complete", transitionHandler(cfg.Appointments.Complete))
		})
	})

	return r
}
