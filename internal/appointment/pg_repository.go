package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-appointments/internal/db"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `id, patient_id, doctor_id, specialty_id, scheduled_at, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SpecialtyID,
		&a.ScheduledAt,
		&a.Status,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < $%d", *f.To)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY scheduled_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, specialty_id, scheduled_at, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.SpecialtyID, a.ScheduledAt, a.Status, nullableString(a.Notes))

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("slot %s for doctor %s: %w", a.ScheduledAt.Format(time.RFC3339), a.DoctorID, ErrConflict)
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil && isUniqueViolation(err) {
		return nil, fmt.Errorf("update appointment %s: %w", id, ErrConflict)
	}
	return updated, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND status = $2
	`, id, status)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetDoctorSpecialty(ctx context.Context, doctorID uuid.UUID) (uuid.UUID, error) {
	var specialtyID *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT specialty_id
		FROM users
		WHERE id = $1 AND role = 'doctor'
	`, doctorID).Scan(&specialtyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrDoctorNotFound
		}
		return uuid.Nil, err
	}
	if specialtyID == nil {
		return uuid.Nil, nil
	}
	return *specialtyID, nil
}

func (r *PgRepository) ListDoctorIDsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM users
		WHERE role = 'doctor' AND specialty_id = $1
		ORDER BY surname, name
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *PgRepository) GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID) (WeeklyAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), available
		FROM weekly_availability
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	w := WeeklyAvailability{}
	for rows.Next() {
		var (
			day        int16
			start, end string
			avail      DayAvailability
		)
		if err := rows.Scan(&day, &start, &end, &avail.Available); err != nil {
			return nil, err
		}
		if avail.Start, err = ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if avail.End, err = ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		w[time.Weekday(day)] = avail
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *PgRepository) SaveWeeklyAvailability(ctx context.Context, doctorID uuid.UUID, w WeeklyAvailability) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range Weekdays {
		day := w[d]
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (doctor_id, day_of_week, start_time, end_time, available, updated_at)
			VALUES ($1, $2, $3::text::time, $4::text::time, $5, now())
			ON CONFLICT (doctor_id, day_of_week) DO UPDATE
			SET start_time = EXCLUDED.start_time,
			    end_time = EXCLUDED.end_time,
			    available = EXCLUDED.available,
			    updated_at = now()
		`, doctorID, int16(d), day.Start.String(), day.End.String(), day.Available)
		if err != nil {
			return fmt.Errorf("save %s availability: %w", weekdayName(d), err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
