package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

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

	lg.Info("pending-watcher starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		lg.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	lg.Info("connected to Postgres")

	// read-only: the watcher never books, so it runs without Redis
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), nil, cfg, lg.Named("appointments"))

	w := &watcher{svc: svc, logger: lg}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			lg.Info("shutdown signal received, stopping pending watcher")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type pendingSource interface {
	PendingAppointments(ctx context.Context) ([]appointment.Appointment, error)
}

// watcher polls the pending queue and reports appointments that showed up
// since the previous poll.
type watcher struct {
	svc    pendingSource
	logger *zap.Logger
	prev   []appointment.Appointment
	primed bool
}

func (w *watcher) runOnce(ctx context.Context) []appointment.Appointment {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	curr, err := w.svc.PendingAppointments(runCtx)
	if err != nil {
		w.logger.Error("pending poll failed", zap.Error(err))
		return nil
	}

	fresh := appointment.NewlyPending(w.prev, curr)
	if !w.primed {
		// the first poll only establishes the baseline
		fresh = nil
		w.primed = true
	}
	w.prev = curr

	for _, a := range fresh {
		w.logger.Info("new pending appointment",
			zap.String("appointment_id", a.ID.String()),
			zap.String("doctor_id", a.DoctorID.String()),
			zap.String("patient_id", a.PatientID.String()),
			zap.Time("scheduled_at", a.ScheduledAt),
		)
	}

	w.logger.Debug("pending poll complete",
		zap.Int("pending", len(curr)),
		zap.Int("new", len(fresh)),
		zap.Duration("took", time.Since(start)),
	)
	return fresh
}
