package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/db"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, email, password_hash, name, surname, COALESCE(phone, ''), role, specialty_id, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Surname, &u.Phone, &u.Role, &u.SpecialtyID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *PgRepository) CreateUser(ctx context.Context, u User) (*User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	var phone *string
	if u.Phone != "" {
		phone = &u.Phone
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, surname, phone, role, specialty_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+userColumns,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Surname, phone, u.Role, u.SpecialtyID)

	created, err := scanUser(row)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return nil, fmt.Errorf("%s: %w", u.Email, ErrEmailTaken)
		case pgForeignKeyViolation:
			return nil, ErrSpecialtyNotFound
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *PgRepository) ListUsers(ctx context.Context, role *access.Role) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE $1::text IS NULL OR role = $1
		ORDER BY surname, name, id
	`, role)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (r *PgRepository) ListDoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'doctor' AND specialty_id = $1
		ORDER BY surname, name, id
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (r *PgRepository) CreateSpecialty(ctx context.Context, s Specialty) (*Specialty, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	var out Specialty
	err := r.pool.QueryRow(ctx, `
		INSERT INTO specialties (id, name, description, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, name, COALESCE(description, ''), created_at
	`, s.ID, s.Name, s.Description).Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, fmt.Errorf("%s: %w", s.Name, ErrSpecialtyExists)
		}
		return nil, fmt.Errorf("insert specialty: %w", err)
	}
	return &out, nil
}

func (r *PgRepository) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var s Specialty
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM specialties
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, '') AS description, created_at
		FROM specialties
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Specialty])
}

func (r *PgRepository) DeleteSpecialty(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM specialties WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrSpecialtyInUse
		}
		return fmt.Errorf("delete specialty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSpecialtyNotFound
	}
	return nil
}
