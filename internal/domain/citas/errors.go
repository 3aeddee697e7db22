package citas

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a domain error. Handlers map kinds to HTTP statuses.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindForbidden
	KindPrecondition
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a user-facing domain error. Message is shown to the actor as is.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string { return e.Message }

// Details exposes per-field messages for the "errores" envelope member.
func (e *Error) Details() map[string]string { return e.Fields }

// KindOf returns the kind of err, or 0 when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

var (
	ErrCitaNoEncontrada       = &Error{Kind: KindNotFound, Message: "Cita no encontrada"}
	ErrOdontologoNoEncontrado = &Error{Kind: KindNotFound, Message: "Odontólogo no encontrado"}
	ErrClienteNoEncontrado    = &Error{Kind: KindNotFound, Message: "Cliente no encontrado"}

	ErrSinPermiso   = &Error{Kind: KindForbidden, Message: "No tienes permiso para realizar esta acción sobre la cita"}
	ErrSoloClientes = &Error{Kind: KindForbidden, Message: "Solo los clientes pueden agendar citas"}

	ErrPerfilIncompleto   = &Error{Kind: KindPrecondition, Message: "Debes completar tu perfil antes de agendar una cita"}
	ErrFechaPasada        = &Error{Kind: KindPrecondition, Message: "No se pueden consultar horarios de fechas pasadas"}
	ErrHorarioPasado      = &Error{Kind: KindPrecondition, Message: "La fecha y hora de la cita debe ser futura"}
	ErrEstadoTerminal     = &Error{Kind: KindPrecondition, Message: "La cita ya está finalizada y no admite cambios"}
	ErrOdontologoInactivo = &Error{Kind: KindPrecondition, Message: "El odontólogo seleccionado no está activo"}
	ErrCitaNoIniciada     = &Error{Kind: KindPrecondition, Message: "Aún no llega la hora de la cita"}

	ErrHorarioNoDisponible  = &Error{Kind: KindConflict, Message: "El horario seleccionado no está disponible"}
	ErrCitaYaAsignada       = &Error{Kind: KindConflict, Message: "La cita ya fue asignada a un odontólogo"}
	ErrConflictoConcurrente = &Error{Kind: KindConflict, Message: "La cita fue modificada por otro usuario, vuelve a consultarla"}
)

// ValidationError reports invalid request fields.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Datos inválidos", Fields: fields}
}

func transitionError(accion string, estado Estado) *Error {
	return &Error{
		Kind:    KindPrecondition,
		Message: fmt.Sprintf("No se puede %s una cita en estado %s", accion, estado),
	}
}

func cutoffError(accion string, cutoff time.Duration) *Error {
	return &Error{
		Kind:    KindPrecondition,
		Message: fmt.Sprintf("Solo puedes %s con al menos %d horas de anticipación", accion, int(cutoff.Hours())),
	}
}
