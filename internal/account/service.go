package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

// TokenIssuer signs bearer tokens for a logged in user.
type TokenIssuer interface {
	Issue(actor access.Actor) (string, time.Time, error)
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
	logger *zap.Logger
}

func NewService(repo Repository, tokens TokenIssuer, logger *zap.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Register creates a patient account. Any role in the input is ignored.
func (s *Service) Register(ctx context.Context, in NewUser) (*User, error) {
	in.Role = access.RolePatient
	in.SpecialtyID = nil
	return s.create(ctx, in)
}

// CreateUser lets an admin create doctor and admin accounts. Patients only
// come from Register.
func (s *Service) CreateUser(ctx context.Context, actor access.Actor, in NewUser) (*User, error) {
	switch in.Role {
	case access.RoleDoctor:
		if err := access.Require(actor.Role, access.ActionCreateDoctorAccount, false); err != nil {
			return nil, err
		}
		if in.SpecialtyID == nil {
			return nil, fmt.Errorf("doctor needs a specialty: %w", ErrInvalidInput)
		}
		if _, err := s.repo.GetSpecialty(ctx, *in.SpecialtyID); err != nil {
			return nil, err
		}
	case access.RoleAdmin:
		if err := access.Require(actor.Role, access.ActionCreateAdminAccount, false); err != nil {
			return nil, err
		}
		in.SpecialtyID = nil
	case access.RolePatient:
		return nil, fmt.Errorf("patients register themselves: %w", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidInput)
	}

	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
		zap.String("by", actor.String()),
	)
	return u, nil
}

func (s *Service) create(ctx context.Context, in NewUser) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	return s.repo.CreateUser(ctx, User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Surname:      in.Surname,
		Phone:        in.Phone,
		Role:         in.Role,
		SpecialtyID:  in.SpecialtyID,
	})
}

// Login verifies credentials and issues a token. Unknown emails and wrong
// passwords are reported the same way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(u.Actor())
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, ExpiresAt: expires, User: *u}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, actor access.Actor, role *access.Role) ([]User, error) {
	if err := access.Require(actor.Role, access.ActionManageUsers, false); err != nil {
		return nil, err
	}
	if role != nil && !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", *role, ErrInvalidInput)
	}
	return s.repo.ListUsers(ctx, role)
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	return s.repo.ListSpecialties(ctx)
}

func (s *Service) CreateSpecialty(ctx context.Context, actor access.Actor, name, description string) (*Specialty, error) {
	if err := access.Require(actor.Role, access.ActionManageSpecialties, false); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("specialty name is empty: %w", ErrInvalidInput)
	}
	return s.repo.CreateSpecialty(ctx, Specialty{Name: name, Description: strings.TrimSpace(description)})
}

func (s *Service) DeleteSpecialty(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	if err := access.Require(actor.Role, access.ActionManageSpecialties, false); err != nil {
		return err
	}
	return s.repo.DeleteSpecialty(ctx, id)
}

func (s *Service) DoctorsBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]User, error) {
	if _, err := s.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	return s.repo.ListDoctorsBySpecialty(ctx, specialtyID)
}
