package citas

import (
	"errors"
	"testing"
	"time"
)

var clinicLoc = time.FixedZone("COT", -5*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, clinicLoc)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, clinicLoc)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestInterval_OverlapIsSymmetric(t *testing.T) {
	intervals := []Interval{
		{Start: 8 * 60, Duration: 60},
		{Start: 8*60 + 30, Duration: 60},
		{Start: 9 * 60, Duration: 60},
		{Start: 9 * 60, Duration: 15},
		{Start: 9*60 + 59, Duration: 1},
		{Start: 10 * 60, Duration: 90},
		{Start: 17*60 + 30, Duration: 60},
	}
	for _, a := range intervals {
		for _, b := range intervals {
			ab := HasConflict(a.Start, a.Duration, []Interval{b})
			ba := HasConflict(b.Start, b.Duration, []Interval{a})
			if ab != ba {
				t.Errorf("asymmetric overlap for %+v and %+v: %v vs %v", a, b, ab, ba)
			}
		}
	}
}

func TestHasConflict(t *testing.T) {
	booked := []Interval{{Start: 9 * 60, Duration: 60}}
	tests := []struct {
		name  string
		start int
		want  bool
	}{
		{"same start", 9 * 60, true},
		{"half hour later", 9*60 + 30, true},
		{"half hour earlier", 8*60 + 30, true},
		{"ends exactly at start", 8 * 60, false},
		{"starts exactly at end", 10 * 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasConflict(tt.start, 60, booked); got != tt.want {
				t.Errorf("HasConflict(%s) = %v, want %v", FormatSlot(tt.start), got, tt.want)
			}
		})
	}
}

func TestHasConflict_NoExisting(t *testing.T) {
	if HasConflict(9*60, 60, nil) {
		t.Error("expected no conflict against an empty day")
	}
}

func TestBaseGrid(t *testing.T) {
	grid := BaseGrid()
	if len(grid) != 20 {
		t.Fatalf("expected 20 base slots, got %d", len(grid))
	}
	if FormatSlot(grid[0]) != "08:00" || FormatSlot(grid[len(grid)-1]) != "17:30" {
		t.Errorf("unexpected grid bounds %s..%s", FormatSlot(grid[0]), FormatSlot(grid[len(grid)-1]))
	}
	for i := 1; i < len(grid); i++ {
		if grid[i]-grid[i-1] != 30 {
			t.Fatalf("grid not in half hour steps at %d", i)
		}
	}
}

func TestComputeAvailableSlots_EmptyDay(t *testing.T) {
	now := at(2025, 6, 9, 10, 0)
	slots, err := ComputeAvailableSlots(day(2025, 6, 10), now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 20 {
		t.Fatalf("expected 20 slots, got %d: %v", len(slots), slots)
	}
	for i, m := range BaseGrid() {
		if slots[i] != FormatSlot(m) {
			t.Errorf("slot %d = %s, want %s", i, slots[i], FormatSlot(m))
		}
	}
}

func TestComputeAvailableSlots_AgreesWithHasConflict(t *testing.T) {
	now := at(2025, 6, 9, 10, 0)
	days := [][]Interval{
		nil,
		{{Start: 9 * 60, Duration: 60}},
		{{Start: 9 * 60, Duration: 60}, {Start: 10 * 60, Duration: 60}},
		{{Start: 8 * 60, Duration: 60}, {Start: 12*60 + 30, Duration: 60}, {Start: 17*60 + 30, Duration: 60}},
		{{Start: 13*60 + 15, Duration: 20}},
	}
	for _, active := range days {
		slots, err := ComputeAvailableSlots(day(2025, 6, 10), now, active)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, m := range BaseGrid() {
			offered := contains(slots, FormatSlot(m))
			free := !HasConflict(m, DuracionMinutos, active)
			if offered != free {
				t.Errorf("slot %s: offered=%v but free=%v for %+v", FormatSlot(m), offered, free, active)
			}
		}
	}
}

func TestComputeAvailableSlots_BookedHour(t *testing.T) {
	now := at(2025, 6, 9, 10, 0)
	slots, err := ComputeAvailableSlots(day(2025, 6, 10), now, []Interval{{Start: 9 * 60, Duration: 60}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, gone := range []string{"08:30", "09:00", "09:30"} {
		if contains(slots, gone) {
			t.Errorf("expected %s to be unavailable, got %v", gone, slots)
		}
	}
	for _, kept := range []string{"08:00", "10:00", "17:30"} {
		if !contains(slots, kept) {
			t.Errorf("expected %s to be available, got %v", kept, slots)
		}
	}
}

func TestComputeAvailableSlots_PastDate(t *testing.T) {
	now := at(2025, 6, 9, 10, 0)
	_, err := ComputeAvailableSlots(day(2025, 6, 8), now, nil)
	if !errors.Is(err, ErrFechaPasada) {
		t.Fatalf("expected ErrFechaPasada, got %v", err)
	}
	if KindOf(err) != KindPrecondition {
		t.Errorf("expected precondition kind, got %v", KindOf(err))
	}
}

func TestComputeAvailableSlots_TodayDropsElapsedSlots(t *testing.T) {
	now := at(2025, 6, 9, 10, 0)
	slots, err := ComputeAvailableSlots(day(2025, 6, 9), now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 || slots[0] != "10:30" {
		t.Fatalf("expected first slot 10:30 (10:00 is not strictly after now), got %v", slots)
	}
}

func TestOnGrid(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"opening", at(2025, 6, 10, 8, 0), true},
		{"half hour", at(2025, 6, 10, 9, 30), true},
		{"last slot", at(2025, 6, 10, 17, 30), true},
		{"before opening", at(2025, 6, 10, 7, 30), false},
		{"after last slot", at(2025, 6, 10, 18, 0), false},
		{"quarter hour", at(2025, 6, 10, 9, 15), false},
		{"with seconds", time.Date(2025, 6, 10, 9, 0, 5, 0, clinicLoc), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnGrid(tt.t); got != tt.want {
				t.Errorf("OnGrid(%s) = %v, want %v", tt.t.Format(FechaHoraLayout), got, tt.want)
			}
		})
	}
}

func TestParseFechaHora_KeepsWallClock(t *testing.T) {
	for _, raw := range []string{"2025-06-10T09:00:00", "2025-06-10T09:00"} {
		got, err := ParseFechaHora(raw, clinicLoc)
		if err != nil {
			t.Fatalf("ParseFechaHora(%q): %v", raw, err)
		}
		if !got.Equal(at(2025, 6, 10, 9, 0)) || got.Hour() != 9 {
			t.Errorf("ParseFechaHora(%q) = %v", raw, got)
		}
	}
	if _, err := ParseFechaHora("2025-06-10T09:00:00Z", clinicLoc); err == nil {
		t.Error("expected offsets to be rejected")
	}
}

func TestIntervalsOf_SkipsInactiveAndSelf(t *testing.T) {
	a := &Cita{FechaHora: at(2025, 6, 10, 9, 0), DuracionMinutos: 60, Estado: EstadoConfirmada}
	a.ID[0] = 1
	b := &Cita{FechaHora: at(2025, 6, 10, 11, 0), DuracionMinutos: 60, Estado: EstadoCancelada}
	b.ID[0] = 2
	c := &Cita{FechaHora: at(2025, 6, 10, 13, 0), DuracionMinutos: 60, Estado: EstadoNoAsistio}
	c.ID[0] = 3
	d := &Cita{FechaHora: at(2025, 6, 10, 15, 0), DuracionMinutos: 60, Estado: EstadoCompletada}
	d.ID[0] = 4

	got := intervalsOf([]*Cita{a, b, c, d}, nil)
	if len(got) != 2 || got[0].Start != 9*60 || got[1].Start != 15*60 {
		t.Fatalf("expected the confirmed and completed intervals, got %+v", got)
	}
	if got := intervalsOf([]*Cita{a, d}, a); len(got) != 1 || got[0].Start != 15*60 {
		t.Fatalf("expected self to be skipped, got %+v", got)
	}
}
