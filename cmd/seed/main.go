package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

const (
	doctorsPerSpecialty = 5
	patientCount        = 500
	seedPassword        = "password123"
	adminEmail          = "admin@clinic.local"
)

var specialties = []struct{ name, description string }{
	{"Dermatology", "Skin, hair and nail conditions"},
	{"Cardiology", "Heart and blood vessel disorders"},
	{"General Practice", "Primary care and referrals"},
	{"Orthopedics", "Bones, joints and muscles"},
	{"Endocrinology", "Hormone and metabolic disorders"},
	{"Neurology", "Brain and nervous system"},
	{"Pediatrics", "Care for children and adolescents"},
	{"Psychiatry", "Mental health"},
	{"Ophthalmology", "Eye care"},
	{"ENT", "Ear, nose and throat"},
}

type seeder struct {
	accounts account.Repository
	schedule appointment.Repository
	logger   *zap.Logger
	hash     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, lg); err != nil {
		lg.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	// every seeded account shares one password, so hash it once
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		lg.Fatal("hash password", zap.Error(err))
	}

	s := &seeder{
		accounts: account.NewPgRepository(pool),
		schedule: appointment.NewPgRepository(pool),
		logger:   lg,
		hash:     hash,
	}

	work := context.Background()
	if err := s.seedAdmin(work); err != nil {
		lg.Fatal("seed admin", zap.Error(err))
	}
	if err := s.seedDoctors(work); err != nil {
		lg.Fatal("seed doctors", zap.Error(err))
	}
	if err := s.seedPatients(work, patientCount); err != nil {
		lg.Fatal("seed patients", zap.Error(err))
	}

	lg.Info("seed complete", zap.String("password", seedPassword))
}

func (s *seeder) seedAdmin(ctx context.Context) error {
	_, err := s.accounts.CreateUser(ctx, account.User{
		Email:        adminEmail,
		PasswordHash: s.hash,
		Name:         "Clinic",
		Surname:      "Admin",
		Role:         access.RoleAdmin,
	})
	if errors.Is(err, account.ErrEmailTaken) {
		s.logger.Info("admin already present", zap.String("email", adminEmail))
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("admin seeded", zap.String("email", adminEmail))
	return nil
}

func (s *seeder) seedDoctors(ctx context.Context) error {
	s.logger.Info("seeding doctors",
		zap.Int("specialties", len(specialties)),
		zap.Int("per_specialty", doctorsPerSpecialty),
	)

	existing, err := s.accounts.ListSpecialties(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]uuid.UUID, len(existing))
	for _, sp := range existing {
		byName[sp.Name] = sp.ID
	}

	doctors := 0
	for _, sp := range specialties {
		id, ok := byName[sp.name]
		if !ok {
			created, err := s.accounts.CreateSpecialty(ctx, account.Specialty{Name: sp.name, Description: sp.description})
			if err != nil {
				return fmt.Errorf("specialty %s: %w", sp.name, err)
			}
			id = created.ID
		}

		for i := 0; i < doctorsPerSpecialty; i++ {
			specialtyID := id
			u, ok, err := s.createUser(ctx, access.RoleDoctor, &specialtyID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := s.schedule.SaveWeeklyAvailability(ctx, u.ID, randomSchedule()); err != nil {
				return fmt.Errorf("schedule for %s: %w", u.Email, err)
			}
			doctors++
		}
	}

	s.logger.Info("doctors seeded", zap.Int("count", doctors))
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.logger.Info("seeding patients", zap.Int("count", count))

	created := 0
	for i := 0; i < count; i++ {
		_, ok, err := s.createUser(ctx, access.RolePatient, nil)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
		if (i+1)%100 == 0 {
			s.logger.Info("patients progress", zap.Int("done", i+1), zap.Int("total", count))
		}
	}

	s.logger.Info("patients seeded", zap.Int("count", created))
	return nil
}

// createUser inserts one fake account. A duplicate email is skipped, not fatal.
func (s *seeder) createUser(ctx context.Context, role access.Role, specialtyID *uuid.UUID) (*account.User, bool, error) {
	u, err := s.accounts.CreateUser(ctx, account.User{
		Email:        account.NormalizeEmail(gofakeit.Email()),
		PasswordHash: s.hash,
		Name:         gofakeit.FirstName(),
		Surname:      gofakeit.LastName(),
		Phone:        gofakeit.Phone(),
		Role:         role,
		SpecialtyID:  specialtyID,
	})
	if errors.Is(err, account.ErrEmailTaken) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// randomSchedule varies working hours around the clinic default.
func randomSchedule() appointment.WeeklyAvailability {
	w := appointment.DefaultWeeklyAvailability()
	for _, d := range appointment.Weekdays {
		day := w[d]
		if !day.Available {
			continue
		}
		if gofakeit.Number(0, 9) == 0 {
			day.Available = false
		} else {
			day.Start = appointment.NewTimeOfDay(gofakeit.Number(8, 10), 0)
			day.End = appointment.NewTimeOfDay(gofakeit.Number(14, 17), 0)
		}
		w[d] = day
	}
	return w
}
