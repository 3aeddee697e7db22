package citas

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicadental/agenda/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// citaRepoPG stores fecha_hora as TIMESTAMP WITHOUT TIME ZONE holding the
// clinic's wall clock. Values are written as civil fields and rebuilt in loc
// on read, so no UTC conversion ever shifts the hour.
type citaRepoPG struct {
	conn queryable
	loc  *time.Location
}

func NewCitaRepoPG(conn queryable, loc *time.Location) CitaRepository {
	return &citaRepoPG{conn: conn, loc: loc}
}

const citaCols = `id, cliente_id, odontologo_id, tipo_consulta, categoria,
	fecha_hora, duracion_minutos, detalles, estado,
	motivo_cancelacion, cancelada_en, motivo_reagendamiento, fecha_hora_anterior, reagendada_en,
	observaciones_asignacion, asignada_en, notas_odontologo, iniciada_en, completada_en,
	version_id, creada_en, actualizada_en`

func (r *citaRepoPG) scanCita(row pgx.Row) (*Cita, error) {
	var c Cita
	err := row.Scan(&c.ID, &c.ClienteID, &c.OdontologoID, &c.TipoConsulta, &c.Categoria,
		&c.FechaHora, &c.DuracionMinutos, &c.Detalles, &c.Estado,
		&c.MotivoCancelacion, &c.CanceladaEn, &c.MotivoReagendamiento, &c.FechaHoraAnterior, &c.ReagendadaEn,
		&c.ObservacionesAsignacion, &c.AsignadaEn, &c.NotasOdontologo, &c.IniciadaEn, &c.CompletadaEn,
		&c.VersionID, &c.CreadaEn, &c.ActualizadaEn)
	if err != nil {
		return nil, err
	}
	c.FechaHora = r.fromCivil(c.FechaHora)
	if c.FechaHoraAnterior != nil {
		t := r.fromCivil(*c.FechaHoraAnterior)
		c.FechaHoraAnterior = &t
	}
	return &c, nil
}

// toCivil keeps the wall clock of t in the clinic zone and drops the zone.
func (r *citaRepoPG) toCivil(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func (r *citaRepoPG) fromCivil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), r.loc)
}

func (r *citaRepoPG) civilPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := r.toCivil(*t)
	return &v
}

func (r *citaRepoPG) Create(ctx context.Context, c *Cita) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.conn.QueryRow(ctx, `
		INSERT INTO citas (id, cliente_id, odontologo_id, tipo_consulta, categoria,
			fecha_hora, duracion_minutos, detalles, estado)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING version_id, creada_en, actualizada_en`,
		c.ID, c.ClienteID, c.OdontologoID, c.TipoConsulta, c.Categoria,
		r.toCivil(c.FechaHora), c.DuracionMinutos, c.Detalles, c.Estado,
	).Scan(&c.VersionID, &c.CreadaEn, &c.ActualizadaEn)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return ErrHorarioNoDisponible
		}
		return fmt.Errorf("insert cita: %w", err)
	}
	return nil
}

func (r *citaRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cita, error) {
	c, err := r.scanCita(r.conn.QueryRow(ctx, `SELECT `+citaCols+` FROM citas WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCitaNoEncontrada
		}
		return nil, fmt.Errorf("get cita %s: %w", id, err)
	}
	return c, nil
}

func (r *citaRepoPG) ListActiveOnDate(ctx context.Context, fecha time.Time) ([]*Cita, error) {
	from := r.toCivil(StartOfDay(fecha.In(r.loc)))
	rows, err := r.conn.Query(ctx, `SELECT `+citaCols+` FROM citas
		WHERE fecha_hora >= $1 AND fecha_hora < $2
			AND estado NOT IN ('cancelada', 'no_asistio')
		ORDER BY fecha_hora`, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list citas on %s: %w", from.Format(DateLayout), err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *citaRepoPG) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Cita, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ClienteID != nil {
		add(`cliente_id = $%d`, *f.ClienteID)
	}
	if f.OdontologoID != nil {
		add(`odontologo_id = $%d`, *f.OdontologoID)
	}
	if f.Estado != "" {
		add(`estado = $%d`, f.Estado)
	}
	if f.Fecha != "" {
		day, err := ParseFecha(f.Fecha, r.loc)
		if err != nil {
			return nil, 0, ValidationError(map[string]string{"fecha": "Formato de fecha inválido, use YYYY-MM-DD"})
		}
		from := r.toCivil(day)
		add(`fecha_hora >= $%d`, from)
		add(`fecha_hora < $%d`, from.AddDate(0, 0, 1))
	}

	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, ` AND `)
	}

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM citas`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count citas: %w", err)
	}

	order := `ASC`
	if f.Descending {
		order = `DESC`
	}
	query := fmt.Sprintf(`SELECT %s FROM citas%s ORDER BY fecha_hora %s, id LIMIT $%d OFFSET $%d`,
		citaCols, clause, order, len(args)+1, len(args)+2)
	rows, err := r.conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search citas: %w", err)
	}
	defer rows.Close()

	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update writes every mutable column in one statement guarded by version_id.
// A lost race leaves the row untouched and returns ErrConflictoConcurrente.
func (r *citaRepoPG) Update(ctx context.Context, c *Cita) error {
	err := r.conn.QueryRow(ctx, `
		UPDATE citas SET
			odontologo_id = $3, fecha_hora = $4, duracion_minutos = $5, detalles = $6, estado = $7,
			motivo_cancelacion = $8, cancelada_en = $9,
			motivo_reagendamiento = $10, fecha_hora_anterior = $11, reagendada_en = $12,
			observaciones_asignacion = $13, asignada_en = $14,
			notas_odontologo = $15, iniciada_en = $16, completada_en = $17,
			version_id = version_id + 1, actualizada_en = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, actualizada_en`,
		c.ID, c.VersionID,
		c.OdontologoID, r.toCivil(c.FechaHora), c.DuracionMinutos, c.Detalles, c.Estado,
		c.MotivoCancelacion, c.CanceladaEn,
		c.MotivoReagendamiento, r.civilPtr(c.FechaHoraAnterior), c.ReagendadaEn,
		c.ObservacionesAsignacion, c.AsignadaEn,
		c.NotasOdontologo, c.IniciadaEn, c.CompletadaEn,
	).Scan(&c.VersionID, &c.ActualizadaEn)
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return ErrConflictoConcurrente
		case db.IsExclusionViolation(err):
			return ErrHorarioNoDisponible
		}
		return fmt.Errorf("update cita %s: %w", c.ID, err)
	}
	return nil
}

func (r *citaRepoPG) collect(rows pgx.Rows) ([]*Cita, error) {
	var items []*Cita
	for rows.Next() {
		c, err := r.scanCita(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
