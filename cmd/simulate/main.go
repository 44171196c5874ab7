package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

type SimConfig struct {
	APIBaseURL     string
	Password       string
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	ConfirmRatio   float64
	CancelRatio    float64
	ReadRatio      float64
	PatientLimit   int
	DoctorLimit    int
	RaceContenders int
	HorizonDays    int
	PostgresDSN    string
	Env            string
	LogLevel       string
}

// member is a seeded account the simulator acts as.
type member struct {
	ID          uuid.UUID
	Email       string
	SpecialtyID uuid.UUID
	Token       string
}

type booked struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	PatientToken string
}

type DataPool struct {
	Patients     []member
	Doctors      []member
	doctorTokens map[uuid.UUID]string
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: lg,
	}

	sim.pool, err = loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		lg.Fatal("load data pool", zap.Error(err))
	}
	if err := sim.loginAll(ctx); err != nil {
		lg.Fatal("login", zap.Error(err))
	}

	lg.Info("loaded", zap.Int("patients", len(sim.pool.Patients)), zap.Int("doctors", len(sim.pool.Doctors)))

	sim.RunRace(context.Background())
	sim.Run()
	sim.metrics.Print(cfg)
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Password:       getEnv("SIM_PASSWORD", "password123"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio:   getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 50),
		DoctorLimit:    getInt("SIM_DOCTOR_LIMIT", 20),
		RaceContenders: getInt("SIM_RACE_CONTENDERS", 20),
		HorizonDays:    getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:    baseCfg.PostgresDSN,
		Env:            baseCfg.Env,
		LogLevel:       baseCfg.LogLevel,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HorizonDays <= 0 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{doctorTokens: map[uuid.UUID]string{}}

	rows, err := pool.Query(ctx, `
		SELECT id, email FROM users WHERE role = 'patient' ORDER BY created_at LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m member
		if err := rows.Scan(&m.ID, &m.Email); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, email, specialty_id FROM users WHERE role = 'doctor' ORDER BY created_at LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m member
		if err := rows.Scan(&m.ID, &m.Email, &m.SpecialtyID); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) loginAll(ctx context.Context) error {
	for i := range s.pool.Patients {
		token, err := s.login(ctx, s.pool.Patients[i].Email)
		if err != nil {
			return fmt.Errorf("patient %s: %w", s.pool.Patients[i].Email, err)
		}
		s.pool.Patients[i].Token = token
	}
	for i := range s.pool.Doctors {
		token, err := s.login(ctx, s.pool.Doctors[i].Email)
		if err != nil {
			return fmt.Errorf("doctor %s: %w", s.pool.Doctors[i].Email, err)
		}
		s.pool.Doctors[i].Token = token
		s.pool.doctorTokens[s.pool.Doctors[i].ID] = token
	}
	return nil
}

func (s *Simulator) login(ctx context.Context, email string) (string, error) {
	var session struct {
		Token string `json:"token"`
	}
	status, _, err := s.call(ctx, http.MethodPost, "/login", "", map[string]string{
		"email":    email,
		"password": s.config.Password,
	}, &session)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login returned %d", status)
	}
	return session.Token, nil
}

// call performs one JSON request and decodes a 2xx body into out.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) freeSlots(ctx context.Context, token string, doctorID uuid.UUID, date time.Time) []time.Time {
	var resp struct {
		Slots []time.Time `json:"slots"`
	}
	status, latency, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=%s", doctorID, date.Format("2006-01-02")), token, nil, &resp)
	if err != nil {
		s.metrics.Slots.Record(latency, outcomeError)
		return nil
	}
	s.metrics.Slots.Record(latency, classify(status, http.StatusOK))
	return resp.Slots
}

func (s *Simulator) book(ctx context.Context, patient, doctor member, at time.Time) (int, time.Duration, uuid.UUID, error) {
	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments", patient.Token, map[string]string{
		"doctor_id":    doctor.ID.String(),
		"specialty_id": doctor.SpecialtyID.String(),
		"scheduled_at": at.Format(time.RFC3339),
	}, &appt)
	return status, latency, appt.ID, err
}

// RunRace sends many patients at one free slot at the same instant. Exactly
// one of them should get a 201.
func (s *Simulator) RunRace(ctx context.Context) {
	doctor := s.pool.Doctors[0]

	var slot time.Time
	for d := 1; d <= s.config.HorizonDays && slot.IsZero(); d++ {
		if slots := s.freeSlots(ctx, doctor.Token, doctor.ID, time.Now().AddDate(0, 0, d)); len(slots) > 0 {
			slot = slots[0]
		}
	}
	if slot.IsZero() {
		s.logger.Warn("no free slot found for race", zap.String("doctor_id", doctor.ID.String()))
		return
	}

	contenders := s.config.RaceContenders
	if contenders > len(s.pool.Patients) {
		contenders = len(s.pool.Patients)
	}

	s.logger.Info("starting same-slot race",
		zap.String("doctor_id", doctor.ID.String()),
		zap.Time("slot", slot),
		zap.Int("contenders", contenders),
	)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(patient member) {
			defer wg.Done()
			<-start

			status, latency, id, err := s.book(ctx, patient, doctor, slot)
			if err != nil {
				s.metrics.Race.Record(latency, outcomeError)
				return
			}
			o := classify(status, http.StatusCreated)
			s.metrics.Race.Record(latency, o)
			if o == outcomeSuccess {
				s.pool.AddAppointment(booked{ID: id, DoctorID: doctor.ID, PatientToken: patient.Token})
			}
		}(s.pool.Patients[i])
	}
	close(start)
	wg.Wait()

	if n := s.metrics.Race.Success; n != 1 {
		s.logger.Error("same-slot race did not produce exactly one booking", zap.Int64("bookings", n))
		return
	}
	s.logger.Info("same-slot race complete", zap.Int64("conflicts", s.metrics.Race.Conflict))
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting mixed load",
		zap.Duration("duration", s.config.Duration),
		zap.Int("workers", s.config.Workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.BookingRatio:
				s.doBooking(ctx, rng)
			case r < c.BookingRatio+c.ConfirmRatio:
				s.doTransition(ctx, rng, "confirm", &s.metrics.Confirm)
			case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
				s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListOwn(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))

	slots := s.freeSlots(ctx, patient.Token, doctor.ID, date)
	if len(slots) == 0 {
		return
	}

	status, latency, id, err := s.book(ctx, patient, doctor, slots[rng.Intn(len(slots))])
	if err != nil {
		s.metrics.Booking.Record(latency, outcomeError)
		return
	}
	o := classify(status, http.StatusCreated)
	s.metrics.Booking.Record(latency, o)
	if o == outcomeSuccess {
		s.pool.AddAppointment(booked{ID: id, DoctorID: doctor.ID, PatientToken: patient.Token})
	}
}

// doTransition confirms as the assigned doctor, cancels as the patient.
func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	token := appt.PatientToken
	if action == "confirm" {
		token = s.pool.doctorTokens[appt.DoctorID]
	}

	status, latency, err := s.call(ctx, http.MethodPost,
		fmt.Sprintf("/appointments/%s/%s", appt.ID, action), token, nil, nil)
	if err != nil {
		om.Record(latency, outcomeError)
		return
	}
	om.Record(latency, classify(status, http.StatusOK))
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+appt.ID.String(), appt.PatientToken, nil, nil)
	if err != nil {
		s.metrics.ReadByID.Record(latency, outcomeError)
		return
	}
	s.metrics.ReadByID.Record(latency, classify(status, http.StatusOK))
}

func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	status, latency, err := s.call(ctx, http.MethodGet, "/appointments?when=upcoming", patient.Token, nil, nil)
	if err != nil {
		s.metrics.ListOwn.Record(latency, outcomeError)
		return
	}
	s.metrics.ListOwn.Record(latency, classify(status, http.StatusOK))
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
