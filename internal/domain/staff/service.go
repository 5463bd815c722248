package staff

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Name == "" {
		return apperr.Required("name")
	}
	if u.Email == "" {
		return apperr.Required("email")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return &apperr.AppError{Code: apperr.CodeValidation, Message: "invalid email address", Field: "email"}
	}
	if u.Role == "" {
		u.Role = RoleStaff
	}
	if !u.Role.Valid() {
		return apperr.Validationf("invalid role: %s", u.Role)
	}
	return s.users.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// Default returns the user that owns records created without an explicit
// owner. It fails with a validation error when no user exists yet.
func (s *Service) Default(ctx context.Context) (*User, error) {
	u, err := s.users.First(ctx)
	if apperr.IsNotFound(err) {
		return nil, apperr.Validation("no user registered in the system")
	}
	return u, err
}

// Resolve returns the user with the given id, or the default user when id is
// nil.
func (s *Service) Resolve(ctx context.Context, id *uuid.UUID) (*User, error) {
	if id == nil || *id == uuid.Nil {
		return s.Default(ctx)
	}
	return s.GetUser(ctx, *id)
}
