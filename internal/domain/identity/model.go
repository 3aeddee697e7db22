package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is a clinic user role as stored in usuarios.rol.
type Role string

const (
	RoleCliente       Role = "cliente"
	RoleRecepcionista Role = "recepcionista"
	RoleOdontologo    Role = "odontologo"
	RoleAdministrador Role = "administrador"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCliente, RoleRecepcionista, RoleOdontologo, RoleAdministrador:
		return true
	}
	return false
}

// ErrUserNotFound is returned when no usuarios row matches.
var ErrUserNotFound = errors.New("usuario no encontrado")

// User maps to the usuarios table. Profiles are maintained by another
// service; this one only reads them.
type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Nombre         string    `db:"nombre" json:"nombre"`
	Email          string    `db:"email" json:"email"`
	Rol            Role      `db:"rol" json:"rol"`
	Activo         bool      `db:"activo" json:"activo"`
	PerfilCompleto bool      `db:"perfil_completo" json:"perfilCompleto"`
	CreadoEn       time.Time `db:"creado_en" json:"creadoEn"`
}

// IsActiveDentist reports whether the user can be assigned appointments.
func (u *User) IsActiveDentist() bool {
	return u != nil && u.Rol == RoleOdontologo && u.Activo
}

// Summary is the public view of a user embedded in other payloads.
type Summary struct {
	ID     uuid.UUID `json:"id"`
	Nombre string    `json:"nombre"`
	Email  string    `json:"email"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Nombre: u.Nombre, Email: u.Email}
}
