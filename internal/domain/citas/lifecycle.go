package citas

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicadental/agenda/internal/domain/identity"
)

// Actor is the authenticated user performing an action.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

func (a Actor) Is(role identity.Role) bool {
	for _, r := range a.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.Is(identity.RoleAdministrador) }

// IsStaff is true for receptionists and administrators.
func (a Actor) IsStaff() bool {
	return a.Is(identity.RoleRecepcionista) || a.IsAdmin()
}

// IsClient is true only for a plain client, so staff acting on behalf of a
// client are never held to client-only rules.
func (a Actor) IsClient() bool {
	return a.Is(identity.RoleCliente) && !a.IsStaff()
}

func (a Actor) owns(c *Cita) bool { return c.ClienteID == a.ID }

func (a Actor) isAssignedDentist(c *Cita) bool {
	return a.Is(identity.RoleOdontologo) && c.IsAssignedTo(a.ID)
}

// CanView reports whether the actor may read the appointment.
func (a Actor) CanView(c *Cita) bool {
	return a.IsStaff() || a.owns(c) || a.isAssignedDentist(c)
}

// Lifecycle holds the clock and business constants the guards need. Every
// transition checks the appointment it is given and mutates it only when all
// guards pass.
type Lifecycle struct {
	// Cutoff is the minimum lead time a client needs to cancel or reschedule.
	Cutoff time.Duration
}

// Assign moves a pending appointment to confirmada with dentist.
func (l Lifecycle) Assign(actor Actor, c *Cita, dentist *identity.User, notas *string, now time.Time) error {
	if !actor.IsStaff() {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if c.Estado != EstadoPendiente {
		return ErrCitaYaAsignada
	}
	if !dentist.IsActiveDentist() {
		return ErrOdontologoInactivo
	}

	id := dentist.ID
	c.OdontologoID = &id
	c.ObservacionesAsignacion = notas
	c.AsignadaEn = &now
	c.Estado = EstadoConfirmada
	return nil
}

// Start moves a confirmed appointment to en_proceso.
func (l Lifecycle) Start(actor Actor, c *Cita, now time.Time) error {
	if !actor.isAssignedDentist(c) && !actor.IsAdmin() {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if c.Estado != EstadoConfirmada {
		return transitionError("iniciar", c.Estado)
	}

	c.IniciadaEn = &now
	c.Estado = EstadoEnProceso
	return nil
}

// Complete closes an appointment in progress.
func (l Lifecycle) Complete(actor Actor, c *Cita, notas *string, now time.Time) error {
	if !actor.isAssignedDentist(c) && !actor.IsAdmin() {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if c.Estado != EstadoEnProceso {
		return transitionError("completar", c.Estado)
	}

	c.NotasOdontologo = notas
	c.CompletadaEn = &now
	c.Estado = EstadoCompletada
	return nil
}

// Cancel frees the appointment's interval. Clients must act more than
// Cutoff ahead of the appointment.
func (l Lifecycle) Cancel(actor Actor, c *Cita, motivo *string, now time.Time) error {
	if !actor.IsStaff() && !actor.owns(c) {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if actor.IsClient() && !l.beforeCutoff(c.FechaHora, now) {
		return cutoffError("cancelar", l.Cutoff)
	}

	c.MotivoCancelacion = motivo
	c.CanceladaEn = &now
	c.Estado = EstadoCancelada
	return nil
}

// CheckReschedule runs the actor and state guards of a reschedule. The
// target slot is checked separately against fresh state.
func (l Lifecycle) CheckReschedule(actor Actor, c *Cita, now time.Time) error {
	if !actor.IsStaff() && !actor.owns(c) {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if c.Estado != EstadoPendiente && c.Estado != EstadoConfirmada {
		return transitionError("reagendar", c.Estado)
	}
	if actor.IsClient() && !l.beforeCutoff(c.FechaHora, now) {
		return cutoffError("reagendar", l.Cutoff)
	}
	return nil
}

// Reschedule moves the appointment to nuevaFecha and returns it to the
// pending queue without a dentist.
func (l Lifecycle) Reschedule(actor Actor, c *Cita, nuevaFecha time.Time, motivo *string, now time.Time) error {
	if err := l.CheckReschedule(actor, c, now); err != nil {
		return err
	}

	anterior := c.FechaHora
	c.FechaHoraAnterior = &anterior
	c.ReagendadaEn = &now
	c.MotivoReagendamiento = motivo
	c.FechaHora = nuevaFecha
	c.Estado = EstadoPendiente
	c.OdontologoID = nil
	c.AsignadaEn = nil
	c.ObservacionesAsignacion = nil
	return nil
}

// MarkNoShow records that the client did not attend. It is only allowed
// once the appointment's start time has been reached.
func (l Lifecycle) MarkNoShow(actor Actor, c *Cita, now time.Time) error {
	if !actor.IsStaff() && !actor.isAssignedDentist(c) {
		return ErrSinPermiso
	}
	if c.Estado.IsTerminal() {
		return ErrEstadoTerminal
	}
	if now.Before(c.FechaHora) {
		return ErrCitaNoIniciada
	}

	c.Estado = EstadoNoAsistio
	return nil
}

func (l Lifecycle) beforeCutoff(fechaHora, now time.Time) bool {
	return fechaHora.Sub(now) > l.Cutoff
}
