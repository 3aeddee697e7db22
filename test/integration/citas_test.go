//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicadental/agenda/internal/domain/citas"
	"github.com/clinicadental/agenda/internal/domain/identity"
	"github.com/clinicadental/agenda/internal/platform/websocket"
)

func futureDay() time.Time {
	d := time.Now().In(clinicLoc).AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, clinicLoc)
}

func newPending(cliente *identity.User, at time.Time) *citas.Cita {
	return &citas.Cita{
		ClienteID:       cliente.ID,
		TipoConsulta:    citas.TipoGeneral,
		Categoria:       "odontologia_general",
		FechaHora:       at,
		DuracionMinutos: citas.DuracionMinutos,
		Estado:          citas.EstadoPendiente,
	}
}

func TestCitaRepo_CreateAndGet_KeepsWallClock(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	cliente := createTestUser(t, ctx, identity.RoleCliente, true)
	repo := citas.NewCitaRepoPG(globalPool, clinicLoc)

	at := futureDay().Add(9 * time.Hour)
	c := newPending(cliente, at)
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.VersionID != 1 {
		t.Errorf("expected version 1, got %d", c.VersionID)
	}

	got, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.FechaHora.Equal(at) || got.FechaHora.Hour() != 9 {
		t.Errorf("expected 09:00 clinic time, got %v", got.FechaHora)
	}
	if got.Estado != citas.EstadoPendiente || got.OdontologoID != nil {
		t.Errorf("unexpected stored state %+v", got)
	}

	var stored string
	if err := globalPool.QueryRow(ctx, `SELECT to_char(fecha_hora, 'HH24:MI') FROM citas WHERE id = $1`, c.ID).Scan(&stored); err != nil {
		t.Fatalf("raw read: %v", err)
	}
	if stored != "09:00" {
		t.Errorf("expected the column to hold 09:00, got %s", stored)
	}
}

func TestCitaRepo_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	repo := citas.NewCitaRepoPG(globalPool, clinicLoc)

	_, err := repo.GetByID(ctx, uuid.New())
	if !errors.Is(err, citas.ErrCitaNoEncontrada) {
		t.Fatalf("expected ErrCitaNoEncontrada, got %v", err)
	}
}

func TestCitaRepo_ExclusionConstraint(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	cliente := createTestUser(t, ctx, identity.RoleCliente, true)
	repo := citas.NewCitaRepoPG(globalPool, clinicLoc)
	day := futureDay()

	first := newPending(cliente, day.Add(9*time.Hour))
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	overlapping := newPending(cliente, day.Add(9*time.Hour+30*time.Minute))
	if err := repo.Create(ctx, overlapping); !errors.Is(err, citas.ErrHorarioNoDisponible) {
		t.Fatalf("expected ErrHorarioNoDisponible, got %v", err)
	}

	adjacent := newPending(cliente, day.Add(10*time.Hour))
	if err := repo.Create(ctx, adjacent); err != nil {
		t.Fatalf("back to back appointments must not conflict: %v", err)
	}

	// A cancelled row releases its range.
	first.Estado = citas.EstadoCancelada
	now := time.Now()
	first.CanceladaEn = &now
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.Create(ctx, newPending(cliente, day.Add(9*time.Hour+30*time.Minute))); !errors.Is(err, citas.ErrHorarioNoDisponible) {
		t.Fatalf("09:30 still overlaps 10:00, got %v", err)
	}
	if err := repo.Create(ctx, newPending(cliente, day.Add(9*time.Hour))); err != nil {
		t.Fatalf("expected the cancelled slot to be free: %v", err)
	}
}

func TestCitaRepo_Update_VersionGuard(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	cliente := createTestUser(t, ctx, identity.RoleCliente, true)
	dentist := createTestUser(t, ctx, identity.RoleOdontologo, true)
	repo := citas.NewCitaRepoPG(globalPool, clinicLoc)

	c := newPending(cliente, futureDay().Add(11*time.Hour))
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, _ := repo.GetByID(ctx, c.ID)
	b, _ := repo.GetByID(ctx, c.ID)

	now := time.Now()
	a.Estado = citas.EstadoConfirmada
	a.OdontologoID = &dentist.ID
	a.AsignadaEn = &now
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.VersionID != 2 {
		t.Errorf("expected version 2, got %d", a.VersionID)
	}

	b.Estado = citas.EstadoCancelada
	b.CanceladaEn = &now
	if err := repo.Update(ctx, b); !errors.Is(err, citas.ErrConflictoConcurrente) {
		t.Fatalf("expected ErrConflictoConcurrente for a stale version, got %v", err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.Estado != citas.EstadoConfirmada {
		t.Errorf("stale write must not land, got %s", got.Estado)
	}
}

func TestCitaRepo_SearchAndListActive(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	cliente := createTestUser(t, ctx, identity.RoleCliente, true)
	otro := createTestUser(t, ctx, identity.RoleCliente, true)
	repo := citas.NewCitaRepoPG(globalPool, clinicLoc)
	day := futureDay()

	for _, c := range []*citas.Cita{
		newPending(cliente, day.Add(8*time.Hour)),
		newPending(cliente, day.Add(14*time.Hour)),
		newPending(otro, day.Add(10*time.Hour)),
		newPending(cliente, day.AddDate(0, 0, 1).Add(9*time.Hour)),
	} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	active, err := repo.ListActiveOnDate(ctx, day)
	if err != nil {
		t.Fatalf("ListActiveOnDate: %v", err)
	}
	if len(active) != 3 || active[0].FechaHora.Hour() != 8 || active[2].FechaHora.Hour() != 14 {
		t.Fatalf("expected three appointments ordered by start, got %d", len(active))
	}

	items, total, err := repo.Search(ctx, citas.SearchFilter{ClienteID: &cliente.ID, Descending: true}, 2, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected total 3 and a page of 2, got %d/%d", total, len(items))
	}
	if !items[0].FechaHora.After(items[1].FechaHora) {
		t.Error("expected newest first")
	}

	items, total, err = repo.Search(ctx, citas.SearchFilter{Estado: citas.EstadoPendiente, Fecha: day.Format(citas.DateLayout)}, 10, 0)
	if err != nil {
		t.Fatalf("Search by fecha: %v", err)
	}
	if total != 3 || items[0].FechaHora.Hour() != 8 {
		t.Fatalf("expected the day's three pending appointments earliest first, got %d", total)
	}
}

func TestService_ConcurrentBooking(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	cliente := createTestUser(t, ctx, identity.RoleCliente, true)

	hub := websocket.NewHub()
	defer hub.Close()
	svc := citas.NewService(
		citas.NewCitaRepoPG(globalPool, clinicLoc),
		identity.NewDirectory(identity.NewUserRepoPG(globalPool)),
		hub,
		citas.WithLocation(clinicLoc),
	)
	actor := citas.Actor{ID: cliente.ID, Roles: []string{string(identity.RoleCliente)}}
	slot := futureDay().Add(15 * time.Hour).Format(citas.FechaHoraLayout)

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, taken int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(ctx, actor, citas.BookRequest{
				TipoConsulta: citas.TipoGeneral,
				Categoria:    "odontologia_general",
				FechaHora:    slot,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, citas.ErrHorarioNoDisponible):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || taken != n-1 {
		t.Fatalf("expected exactly one booking to win, got ok=%d taken=%d", ok, taken)
	}

	slots, err := svc.AvailableSlots(ctx, futureDay().Format(citas.DateLayout))
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	for _, s := range slots {
		if s == "15:00" || s == "14:30" || s == "15:30" {
			t.Errorf("slot %s should be taken", s)
		}
	}
}
