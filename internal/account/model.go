package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/access"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrSpecialtyNotFound = fmt.Errorf("specialty %w", ErrNotFound)

	ErrEmailTaken      = errors.New("email already registered")
	ErrSpecialtyExists = errors.New("specialty already exists")
	ErrSpecialtyInUse  = errors.New("specialty still has doctors or appointments")
	ErrInvalidInput    = errors.New("invalid input")
)

type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Name         string      `json:"name"`
	Surname      string      `json:"surname"`
	Phone        string      `json:"phone,omitempty"`
	Role         access.Role `json:"role"`
	SpecialtyID  *uuid.UUID  `json:"specialty_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (u User) Actor() access.Actor {
	return access.Actor{ID: u.ID, Role: u.Role}
}

// NewUser carries registration and admin account creation input.
type NewUser struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Name        string      `json:"name"`
	Surname     string      `json:"surname"`
	Phone       string      `json:"phone,omitempty"`
	Role        access.Role `json:"role"`
	SpecialtyID *uuid.UUID  `json:"specialty_id,omitempty"`
}

type Specialty struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
