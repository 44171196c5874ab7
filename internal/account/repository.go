package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/access"
)

type Repository interface {
	CreateUser(ctx context.Context, u User) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, role *access.Role) ([]User, error)
	ListDoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]User, error)

	CreateSpecialty(ctx context.Context, s Specialty) (*Specialty, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	DeleteSpecialty(ctx context.Context, id uuid.UUID) error
}
