package staff

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// First returns the oldest user.
	First(ctx context.Context) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
