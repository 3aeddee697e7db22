package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListActiveByRole(ctx context.Context, rol Role) ([]*User, error)
}
