package citas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicadental/agenda/internal/platform/websocket"
)

// notifier turns committed transitions into broker events. Publishing is
// best effort: failures are logged and never reach the caller.
type notifier struct {
	pub    websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

type target struct {
	room string
	typ  string
}

func (n *notifier) emit(ctx context.Context, c *Cita, fecha string, targets ...target) {
	if n.pub == nil {
		return
	}
	ts := n.now()
	for _, t := range targets {
		ev := websocket.Event{
			Type:      t.typ,
			Room:      t.room,
			Fecha:     fecha,
			Timestamp: ts,
		}
		if c != nil {
			ev.CitaID = c.ID.String()
			ev.Data = c
		}
		if err := n.pub.Publish(ctx, ev); err != nil {
			n.logger.Warn().Err(err).
				Str("event", t.typ).
				Str("room", t.room).
				Msg("publish event")
		}
	}
}

// slotsChanged tells every viewer of fecha to refresh availability.
func (n *notifier) slotsChanged(ctx context.Context, fechas ...string) {
	seen := make(map[string]bool, len(fechas))
	for _, f := range fechas {
		if seen[f] {
			continue
		}
		seen[f] = true
		n.emit(ctx, nil, f, target{websocket.DateRoom(f), websocket.EventHorariosUpdated})
	}
}

func clientRoom(c *Cita) string { return websocket.ClientRoom(c.ClienteID.String()) }

func dentistRoom(id uuid.UUID) string { return websocket.DentistRoom(id.String()) }

func (n *notifier) created(ctx context.Context, c *Cita) {
	n.slotsChanged(ctx, c.Fecha())
	n.emit(ctx, c, c.Fecha(), target{websocket.RoomReceptionists, websocket.EventNuevaCita})
}

func (n *notifier) assigned(ctx context.Context, c *Cita) {
	targets := []target{
		{clientRoom(c), websocket.EventCitaAsignada},
		{websocket.RoomReceptionists, websocket.EventCitaActualizada},
	}
	if c.OdontologoID != nil {
		targets = append(targets, target{dentistRoom(*c.OdontologoID), websocket.EventNuevaCitaAsignada})
	}
	n.emit(ctx, c, c.Fecha(), targets...)
}

func (n *notifier) started(ctx context.Context, c *Cita) {
	n.emit(ctx, c, c.Fecha(),
		target{websocket.RoomReceptionists, websocket.EventCitaIniciada},
		target{clientRoom(c), websocket.EventCitaActualizada},
	)
}

func (n *notifier) completed(ctx context.Context, c *Cita) {
	n.emit(ctx, c, c.Fecha(),
		target{websocket.RoomReceptionists, websocket.EventCitaCompletada},
		target{clientRoom(c), websocket.EventCitaActualizada},
	)
}

func (n *notifier) cancelled(ctx context.Context, c *Cita) {
	n.slotsChanged(ctx, c.Fecha())
	targets := []target{
		{websocket.RoomReceptionists, websocket.EventCitaCancelada},
		{clientRoom(c), websocket.EventCitaActualizada},
	}
	if c.OdontologoID != nil {
		targets = append(targets, target{dentistRoom(*c.OdontologoID), websocket.EventCitaActualizada})
	}
	n.emit(ctx, c, c.Fecha(), targets...)
}

// rescheduled notifies both dates and the dentist who lost the appointment.
func (n *notifier) rescheduled(ctx context.Context, c *Cita, fechaAnterior string, odontologoAnterior *uuid.UUID) {
	n.slotsChanged(ctx, fechaAnterior, c.Fecha())
	targets := []target{
		{websocket.RoomReceptionists, websocket.EventCitaReagendada},
		{clientRoom(c), websocket.EventCitaActualizada},
	}
	if odontologoAnterior != nil {
		targets = append(targets, target{dentistRoom(*odontologoAnterior), websocket.EventCitaActualizada})
	}
	n.emit(ctx, c, c.Fecha(), targets...)
}

func (n *notifier) noShow(ctx context.Context, c *Cita) {
	n.slotsChanged(ctx, c.Fecha())
	n.emit(ctx, c, c.Fecha(),
		target{websocket.RoomReceptionists, websocket.EventCitaActualizada},
		target{clientRoom(c), websocket.EventCitaActualizada},
	)
}
