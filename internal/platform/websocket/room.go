package websocket

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room names. Date rooms carry availability changes for one civil date;
// the other rooms carry appointment changes for their audience.
const (
	RoomReceptionists = "receptionists"

	datePrefix    = "date:"
	clientPrefix  = "client:"
	dentistPrefix = "dentist:"
)

// Roles understood by the room policy.
const (
	roleClient       = "cliente"
	roleReceptionist = "recepcionista"
	roleDentist      = "odontologo"
	roleAdmin        = "administrador"
)

var (
	ErrInvalidRoom   = errors.New("sala inválida")
	ErrRoomForbidden = errors.New("no tienes acceso a esta sala")
)

func DateRoom(fecha string) string     { return datePrefix + fecha }
func ClientRoom(userID string) string  { return clientPrefix + userID }
func DentistRoom(userID string) string { return dentistPrefix + userID }

// Identity is who owns a connection.
type Identity struct {
	UserID string
	Roles  []string
}

func (id Identity) has(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorizer decides whether id may join room.
type Authorizer func(id Identity, room string) error

// DefaultAuthorizer applies the clinic's room policy: any authenticated user
// may watch a date, the receptionists room is for staff, and personal rooms
// belong to their owner. Administrators may join any well-formed room.
func DefaultAuthorizer(id Identity, room string) error {
	if err := ValidateRoom(room); err != nil {
		return err
	}
	if id.UserID == "" {
		return ErrRoomForbidden
	}
	if id.has(roleAdmin) {
		return nil
	}

	switch {
	case strings.HasPrefix(room, datePrefix):
		return nil
	case room == RoomReceptionists:
		if id.has(roleReceptionist) {
			return nil
		}
	case strings.HasPrefix(room, clientPrefix):
		if id.has(roleClient) && strings.TrimPrefix(room, clientPrefix) == id.UserID {
			return nil
		}
	case strings.HasPrefix(room, dentistPrefix):
		if id.has(roleDentist) && strings.TrimPrefix(room, dentistPrefix) == id.UserID {
			return nil
		}
	}
	return ErrRoomForbidden
}

// ValidateRoom checks the room name is one of the known shapes.
func ValidateRoom(room string) error {
	switch {
	case room == RoomReceptionists:
		return nil
	case strings.HasPrefix(room, datePrefix):
		if _, err := time.Parse("2006-01-02", strings.TrimPrefix(room, datePrefix)); err != nil {
			return ErrInvalidRoom
		}
		return nil
	case strings.HasPrefix(room, clientPrefix):
		if _, err := uuid.Parse(strings.TrimPrefix(room, clientPrefix)); err != nil {
			return ErrInvalidRoom
		}
		return nil
	case strings.HasPrefix(room, dentistPrefix):
		if _, err := uuid.Parse(strings.TrimPrefix(room, dentistPrefix)); err != nil {
			return ErrInvalidRoom
		}
		return nil
	}
	return ErrInvalidRoom
}
