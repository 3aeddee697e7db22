package citas

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicadental/agenda/internal/domain/identity"
	"github.com/clinicadental/agenda/internal/platform/websocket"
)

// TransitionRecorder counts lifecycle actions. telemetry.Provider implements it.
type TransitionRecorder interface {
	RecordTransition(action, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordTransition(string, string) {}

// Service is the scheduling engine: availability, booking and the
// appointment lifecycle. Every guard runs against state read in the same
// call, and every write is a single conditional statement.
type Service struct {
	citas     CitaRepository
	dir       *identity.Directory
	lifecycle Lifecycle
	events    *notifier
	metrics   TransitionRecorder
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m TransitionRecorder) Option { return func(s *Service) { s.metrics = m } }

// WithCancelCutoff sets how long before an appointment a client may still
// cancel or reschedule it. The default is 24 hours.
func WithCancelCutoff(d time.Duration) Option {
	return func(s *Service) { s.lifecycle.Cutoff = d }
}

func NewService(citas CitaRepository, dir *identity.Directory, pub websocket.EventPublisher, opts ...Option) *Service {
	s := &Service{
		citas:     citas,
		dir:       dir,
		lifecycle: Lifecycle{Cutoff: 24 * time.Hour},
		metrics:   noopRecorder{},
		logger:    zerolog.Nop(),
		loc:       time.Local,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.events = &notifier{pub: pub, logger: s.logger, now: s.now}
	return s
}

// Location is the clinic's time zone.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

func (s *Service) record(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	s.metrics.RecordTransition(action, outcome)
}

// -- Availability --

// AvailableSlots returns the free base slots of fecha (YYYY-MM-DD).
func (s *Service) AvailableSlots(ctx context.Context, fecha string) ([]string, error) {
	if fecha == "" {
		return nil, ValidationError(map[string]string{"fecha": "La fecha es requerida"})
	}
	day, err := ParseFecha(fecha, s.loc)
	if err != nil {
		return nil, ValidationError(map[string]string{"fecha": "Formato de fecha inválido, use YYYY-MM-DD"})
	}
	if day.Before(StartOfDay(s.clock())) {
		return nil, ErrFechaPasada
	}
	existing, err := s.citas.ListActiveOnDate(ctx, day)
	if err != nil {
		return nil, err
	}
	return ComputeAvailableSlots(day, s.clock(), intervalsOf(existing, nil))
}

// -- Booking --

// BookRequest is the body of POST /citas.
type BookRequest struct {
	TipoConsulta TipoConsulta `json:"tipoConsulta"`
	Categoria    string       `json:"categoria"`
	FechaHora    string       `json:"fechaHora"`
	Detalles     *string      `json:"detalles,omitempty"`
}

func (s *Service) validateBooking(req BookRequest) (time.Time, error) {
	fields := map[string]string{}
	switch {
	case req.TipoConsulta == "":
		fields["tipoConsulta"] = "El tipo de consulta es requerido"
	case !req.TipoConsulta.Valid():
		fields["tipoConsulta"] = "Tipo de consulta inválido"
	}
	switch {
	case req.Categoria == "":
		fields["categoria"] = "La categoría es requerida"
	case req.TipoConsulta.Valid() && !req.TipoConsulta.AllowsCategoria(req.Categoria):
		fields["categoria"] = "La categoría no corresponde al tipo de consulta"
	}
	at, msg := s.parseSlot(req.FechaHora)
	if msg != "" {
		fields["fechaHora"] = msg
	}
	if len(fields) > 0 {
		return time.Time{}, ValidationError(fields)
	}
	return at, nil
}

// parseSlot returns the parsed start time, or a field message.
func (s *Service) parseSlot(raw string) (time.Time, string) {
	if raw == "" {
		return time.Time{}, "La fecha y hora son requeridas"
	}
	at, err := ParseFechaHora(raw, s.loc)
	if err != nil {
		return time.Time{}, "Formato inválido, use YYYY-MM-DDTHH:MM:SS"
	}
	if !OnGrid(at) {
		return time.Time{}, "El horario debe estar entre 08:00 y 17:30 en intervalos de 30 minutos"
	}
	return at, ""
}

// checkSlot rejects a start time in the past or one that overlaps an active
// appointment other than self.
func (s *Service) checkSlot(ctx context.Context, at time.Time, self *Cita) error {
	if !at.After(s.clock()) {
		return ErrHorarioPasado
	}
	existing, err := s.citas.ListActiveOnDate(ctx, at)
	if err != nil {
		return err
	}
	if HasConflict(minutesOfDay(at), DuracionMinutos, intervalsOf(existing, self)) {
		return ErrHorarioNoDisponible
	}
	return nil
}

// Book creates a pending appointment for the acting client.
func (s *Service) Book(ctx context.Context, actor Actor, req BookRequest) (c *Cita, err error) {
	defer func() { s.record("crear", err) }()

	if !actor.Is(identity.RoleCliente) {
		return nil, ErrSoloClientes
	}
	at, err := s.validateBooking(req)
	if err != nil {
		return nil, err
	}

	cliente, err := s.dir.GetUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrClienteNoEncontrado
		}
		return nil, err
	}
	if !cliente.PerfilCompleto {
		return nil, ErrPerfilIncompleto
	}
	if err := s.checkSlot(ctx, at, nil); err != nil {
		return nil, err
	}

	c = &Cita{
		ID:              uuid.New(),
		ClienteID:       actor.ID,
		TipoConsulta:    req.TipoConsulta,
		Categoria:       req.Categoria,
		FechaHora:       at,
		DuracionMinutos: DuracionMinutos,
		Detalles:        trimmed(req.Detalles),
		Estado:          EstadoPendiente,
	}
	if err := s.citas.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("cita_id", c.ID.String()).
		Str("cliente_id", c.ClienteID.String()).
		Time("fecha_hora", c.FechaHora).
		Msg("cita created")
	s.events.created(ctx, c)
	return c, nil
}

// -- Reads --

// Get returns one appointment if the actor may see it.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Cita, error) {
	c, err := s.citas.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(c) {
		return nil, ErrSinPermiso
	}
	return c, nil
}

func parseEstado(raw string) (Estado, error) {
	if raw == "" {
		return "", nil
	}
	e := Estado(raw)
	if !e.Valid() {
		return "", ValidationError(map[string]string{"estado": "Estado inválido"})
	}
	return e, nil
}

func (s *Service) checkFecha(raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := ParseFecha(raw, s.loc); err != nil {
		return ValidationError(map[string]string{"fecha": "Formato de fecha inválido, use YYYY-MM-DD"})
	}
	return nil
}

// ListMine pages through the acting client's appointments, newest first.
func (s *Service) ListMine(ctx context.Context, actor Actor, estado string, limit, offset int) ([]*Cita, int, error) {
	e, err := parseEstado(estado)
	if err != nil {
		return nil, 0, err
	}
	id := actor.ID
	return s.citas.Search(ctx, SearchFilter{ClienteID: &id, Estado: e, Descending: true}, limit, offset)
}

// ListPending is the receptionists' queue: every pendiente appointment,
// optionally on one date, earliest first.
func (s *Service) ListPending(ctx context.Context, fecha string, limit, offset int) ([]*Cita, int, error) {
	if err := s.checkFecha(fecha); err != nil {
		return nil, 0, err
	}
	return s.citas.Search(ctx, SearchFilter{Estado: EstadoPendiente, Fecha: fecha}, limit, offset)
}

// ListDentistQueue pages through the appointments assigned to the acting
// dentist, earliest first.
func (s *Service) ListDentistQueue(ctx context.Context, actor Actor, estado, fecha string, limit, offset int) ([]*Cita, int, error) {
	e, err := parseEstado(estado)
	if err != nil {
		return nil, 0, err
	}
	if err := s.checkFecha(fecha); err != nil {
		return nil, 0, err
	}
	id := actor.ID
	return s.citas.Search(ctx, SearchFilter{OdontologoID: &id, Estado: e, Fecha: fecha}, limit, offset)
}

// ListDentists returns the active dentists for the assignment picker.
func (s *Service) ListDentists(ctx context.Context) ([]identity.Summary, error) {
	users, err := s.dir.ListActiveDentists(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]identity.Summary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// -- Transitions --

// transition loads a fresh copy of the appointment, lets apply run the
// guards and mutate it, then writes it back conditionally on its version.
// It returns the updated appointment and the state it was read in.
func (s *Service) transition(ctx context.Context, action string, id uuid.UUID,
	apply func(c *Cita, now time.Time) error) (updated, before *Cita, err error) {
	defer func() { s.record(action, err) }()

	current, err := s.citas.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	c := current.Clone()
	if err := apply(c, s.clock()); err != nil {
		return nil, nil, err
	}
	if err := s.citas.Update(ctx, c); err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("cita_id", c.ID.String()).
		Str("accion", action).
		Str("de", string(current.Estado)).
		Str("a", string(c.Estado)).
		Msg("cita transition")
	return c, current, nil
}

// Assign confirms a pending appointment with a dentist. When two
// receptionists race, the second write fails with a conflict.
func (s *Service) Assign(ctx context.Context, actor Actor, id, odontologoID uuid.UUID, observaciones *string) (*Cita, error) {
	c, _, err := s.transition(ctx, "asignar", id, func(c *Cita, now time.Time) error {
		if !actor.IsStaff() {
			return ErrSinPermiso
		}
		dentist, err := s.dir.GetUser(ctx, odontologoID)
		if err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				return ErrOdontologoNoEncontrado
			}
			return err
		}
		if dentist.Rol != identity.RoleOdontologo {
			return ErrOdontologoNoEncontrado
		}
		return s.lifecycle.Assign(actor, c, dentist, trimmed(observaciones), now)
	})
	if err != nil {
		return nil, err
	}
	s.events.assigned(ctx, c)
	return c, nil
}

// Start begins a confirmed appointment.
func (s *Service) Start(ctx context.Context, actor Actor, id uuid.UUID) (*Cita, error) {
	c, _, err := s.transition(ctx, "iniciar", id, func(c *Cita, now time.Time) error {
		return s.lifecycle.Start(actor, c, now)
	})
	if err != nil {
		return nil, err
	}
	s.events.started(ctx, c)
	return c, nil
}

// Complete closes an appointment in progress with optional clinical notes.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID, notas *string) (*Cita, error) {
	c, _, err := s.transition(ctx, "completar", id, func(c *Cita, now time.Time) error {
		return s.lifecycle.Complete(actor, c, trimmed(notas), now)
	})
	if err != nil {
		return nil, err
	}
	s.events.completed(ctx, c)
	return c, nil
}

// Cancel cancels an appointment and releases its slot.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, motivo *string) (*Cita, error) {
	c, _, err := s.transition(ctx, "cancelar", id, func(c *Cita, now time.Time) error {
		return s.lifecycle.Cancel(actor, c, trimmed(motivo), now)
	})
	if err != nil {
		return nil, err
	}
	s.events.cancelled(ctx, c)
	return c, nil
}

// RescheduleRequest is the body of PUT /citas/:id/reagendar.
type RescheduleRequest struct {
	FechaHora string  `json:"fechaHora"`
	Motivo    *string `json:"motivo,omitempty"`
}

// Reschedule moves an appointment to a new slot and returns it to the
// pending queue.
func (s *Service) Reschedule(ctx context.Context, actor Actor, id uuid.UUID, req RescheduleRequest) (*Cita, error) {
	c, before, err := s.transition(ctx, "reagendar", id, func(c *Cita, now time.Time) error {
		if err := s.lifecycle.CheckReschedule(actor, c, now); err != nil {
			return err
		}
		at, msg := s.parseSlot(req.FechaHora)
		if msg != "" {
			return ValidationError(map[string]string{"fechaHora": msg})
		}
		if err := s.checkSlot(ctx, at, c); err != nil {
			return err
		}
		return s.lifecycle.Reschedule(actor, c, at, trimmed(req.Motivo), now)
	})
	if err != nil {
		return nil, err
	}
	s.events.rescheduled(ctx, c, before.Fecha(), before.OdontologoID)
	return c, nil
}

// MarkNoShow records that the client did not attend.
func (s *Service) MarkNoShow(ctx context.Context, actor Actor, id uuid.UUID) (*Cita, error) {
	c, _, err := s.transition(ctx, "no_asistio", id, func(c *Cita, now time.Time) error {
		return s.lifecycle.MarkNoShow(actor, c, now)
	})
	if err != nil {
		return nil, err
	}
	s.events.noShow(ctx, c)
	return c, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
