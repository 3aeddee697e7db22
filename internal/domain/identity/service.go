package identity

import (
	"context"

	"github.com/google/uuid"
)

// Directory answers who-is-who questions for the appointment engine.
type Directory struct {
	users UserRepository
}

func NewDirectory(users UserRepository) *Directory {
	return &Directory{users: users}
}

func (d *Directory) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return d.users.GetByID(ctx, id)
}

// ListActiveDentists returns the dentists an appointment can be assigned to,
// ordered by name.
func (d *Directory) ListActiveDentists(ctx context.Context) ([]*User, error) {
	users, err := d.users.ListActiveByRole(ctx, RoleOdontologo)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*User{}
	}
	return users, nil
}
