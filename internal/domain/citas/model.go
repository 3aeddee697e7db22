package citas

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Estado is the lifecycle state of an appointment.
type Estado string

const (
	EstadoPendiente  Estado = "pendiente"
	EstadoConfirmada Estado = "confirmada"
	EstadoEnProceso  Estado = "en_proceso"
	EstadoCompletada Estado = "completada"
	EstadoCancelada  Estado = "cancelada"
	EstadoNoAsistio  Estado = "no_asistio"
)

func (e Estado) Valid() bool {
	switch e {
	case EstadoPendiente, EstadoConfirmada, EstadoEnProceso,
		EstadoCompletada, EstadoCancelada, EstadoNoAsistio:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (e Estado) IsTerminal() bool {
	return e == EstadoCompletada || e == EstadoCancelada || e == EstadoNoAsistio
}

// OccupiesSchedule reports whether an appointment in this state blocks its
// interval on the clinic timeline. Completed visits keep their slot.
func (e Estado) OccupiesSchedule() bool {
	return e != EstadoCancelada && e != EstadoNoAsistio
}

// TipoConsulta groups categories.
type TipoConsulta string

const (
	TipoGeneral  TipoConsulta = "general"
	TipoControl  TipoConsulta = "control"
	TipoUrgencia TipoConsulta = "urgencia"
)

// DuracionMinutos is the length of every appointment booked through the API.
const DuracionMinutos = 60

var categorias = map[TipoConsulta][]string{
	TipoGeneral:  {"odontologia_general", "diagnostico_especialidad"},
	TipoControl:  {"ortodoncia", "endodoncia", "cirugia_oral", "protesis", "periodoncia"},
	TipoUrgencia: {"cirugia_oral_urgencia", "endodoncia_urgencia", "rehabilitacion", "trauma_dental"},
}

// Categorias returns a copy of the category table keyed by consultation type.
func Categorias() map[TipoConsulta][]string {
	out := make(map[TipoConsulta][]string, len(categorias))
	for tipo, cats := range categorias {
		out[tipo] = append([]string(nil), cats...)
	}
	return out
}

// TiposConsulta lists the consultation types in a stable order.
func TiposConsulta() []TipoConsulta {
	tipos := make([]TipoConsulta, 0, len(categorias))
	for t := range categorias {
		tipos = append(tipos, t)
	}
	sort.Slice(tipos, func(i, j int) bool { return tipos[i] < tipos[j] })
	return tipos
}

func (t TipoConsulta) Valid() bool {
	_, ok := categorias[t]
	return ok
}

// AllowsCategoria reports whether categoria belongs to this consultation type.
func (t TipoConsulta) AllowsCategoria(categoria string) bool {
	for _, c := range categorias[t] {
		if c == categoria {
			return true
		}
	}
	return false
}

// Cita is an appointment. FechaHora and FechaHoraAnterior are civil times in
// the clinic's location; audit timestamps are instants.
type Cita struct {
	ID                      uuid.UUID    `db:"id" json:"id"`
	ClienteID               uuid.UUID    `db:"cliente_id" json:"clienteId"`
	OdontologoID            *uuid.UUID   `db:"odontologo_id" json:"odontologoId"`
	TipoConsulta            TipoConsulta `db:"tipo_consulta" json:"tipoConsulta"`
	Categoria               string       `db:"categoria" json:"categoria"`
	FechaHora               time.Time    `db:"fecha_hora" json:"fechaHora"`
	DuracionMinutos         int          `db:"duracion_minutos" json:"duracionMinutos"`
	Detalles                *string      `db:"detalles" json:"detalles,omitempty"`
	Estado                  Estado       `db:"estado" json:"estado"`
	MotivoCancelacion       *string      `db:"motivo_cancelacion" json:"motivoCancelacion,omitempty"`
	CanceladaEn             *time.Time   `db:"cancelada_en" json:"canceladaEn,omitempty"`
	MotivoReagendamiento    *string      `db:"motivo_reagendamiento" json:"motivoReagendamiento,omitempty"`
	FechaHoraAnterior       *time.Time   `db:"fecha_hora_anterior" json:"fechaHoraAnterior,omitempty"`
	ReagendadaEn            *time.Time   `db:"reagendada_en" json:"reagendadaEn,omitempty"`
	ObservacionesAsignacion *string      `db:"observaciones_asignacion" json:"observacionesAsignacion,omitempty"`
	AsignadaEn              *time.Time   `db:"asignada_en" json:"asignadaEn,omitempty"`
	NotasOdontologo         *string      `db:"notas_odontologo" json:"notasOdontologo,omitempty"`
	IniciadaEn              *time.Time   `db:"iniciada_en" json:"iniciadaEn,omitempty"`
	CompletadaEn            *time.Time   `db:"completada_en" json:"completadaEn,omitempty"`
	VersionID               int          `db:"version_id" json:"versionId"`
	CreadaEn                time.Time    `db:"creada_en" json:"creadaEn"`
	ActualizadaEn           time.Time    `db:"actualizada_en" json:"actualizadaEn"`
}

// Fin is the exclusive end of the appointment.
func (c *Cita) Fin() time.Time {
	return c.FechaHora.Add(time.Duration(c.DuracionMinutos) * time.Minute)
}

// Fecha is the civil date of the appointment as YYYY-MM-DD.
func (c *Cita) Fecha() string {
	return c.FechaHora.Format(DateLayout)
}

// Interval places the appointment on its day's timeline.
func (c *Cita) Interval() Interval {
	return Interval{Start: minutesOfDay(c.FechaHora), Duration: c.DuracionMinutos}
}

// IsAssignedTo reports whether the appointment belongs to dentist id.
func (c *Cita) IsAssignedTo(id uuid.UUID) bool {
	return c.OdontologoID != nil && *c.OdontologoID == id
}

// Clone returns a deep copy so a transition can be attempted without
// touching the caller's value.
func (c *Cita) Clone() *Cita {
	cp := *c
	cp.OdontologoID = clonePtr(c.OdontologoID)
	cp.Detalles = clonePtr(c.Detalles)
	cp.MotivoCancelacion = clonePtr(c.MotivoCancelacion)
	cp.CanceladaEn = clonePtr(c.CanceladaEn)
	cp.MotivoReagendamiento = clonePtr(c.MotivoReagendamiento)
	cp.FechaHoraAnterior = clonePtr(c.FechaHoraAnterior)
	cp.ReagendadaEn = clonePtr(c.ReagendadaEn)
	cp.ObservacionesAsignacion = clonePtr(c.ObservacionesAsignacion)
	cp.AsignadaEn = clonePtr(c.AsignadaEn)
	cp.NotasOdontologo = clonePtr(c.NotasOdontologo)
	cp.IniciadaEn = clonePtr(c.IniciadaEn)
	cp.CompletadaEn = clonePtr(c.CompletadaEn)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SearchFilter narrows appointment listings. Zero fields are ignored.
type SearchFilter struct {
	ClienteID    *uuid.UUID
	OdontologoID *uuid.UUID
	Estado       Estado
	// Fecha restricts results to one civil date, YYYY-MM-DD.
	Fecha string
	// Descending orders by fecha_hora newest first.
	Descending bool
}
