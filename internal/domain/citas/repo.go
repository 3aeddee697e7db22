package citas

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CitaRepository persists appointments. Implementations must make Create
// and Update single atomic statements: Update succeeds only when the stored
// version still equals c.VersionID, and either call fails with
// ErrHorarioNoDisponible when the row would overlap another active one.
type CitaRepository interface {
	Create(ctx context.Context, c *Cita) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cita, error)
	// ListActiveOnDate returns the appointments on the civil date of fecha
	// that still occupy the timeline, ordered by start time.
	ListActiveOnDate(ctx context.Context, fecha time.Time) ([]*Cita, error)
	Search(ctx context.Context, f SearchFilter, limit, offset int) ([]*Cita, int, error)
	Update(ctx context.Context, c *Cita) error
}
