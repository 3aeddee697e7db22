package citas

import (
	"fmt"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	SlotLayout      = "15:04"
	FechaHoraLayout = "2006-01-02T15:04:05"

	// The base grid: half-hour starts from 08:00 to 17:30 inclusive.
	GridOpenMinutes   = 8 * 60
	GridLastMinutes   = 17*60 + 30
	GridStepMinutes   = 30
	gridSlotsPerDay   = (GridLastMinutes-GridOpenMinutes)/GridStepMinutes + 1
	fechaHoraNoSecond = "2006-01-02T15:04"
)

// Interval is a half-open [Start, Start+Duration) span in minutes since
// midnight of a civil date.
type Interval struct {
	Start    int
	Duration int
}

func (i Interval) End() int { return i.Start + i.Duration }

// Overlaps is the standard half-open overlap test. It is symmetric.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End() && i.End() > o.Start
}

// HasConflict reports whether a candidate starting at start (minutes since
// midnight) and lasting duration minutes overlaps any existing interval.
func HasConflict(start, duration int, existing []Interval) bool {
	candidate := Interval{Start: start, Duration: duration}
	for _, e := range existing {
		if candidate.Overlaps(e) {
			return true
		}
	}
	return false
}

// BaseGrid returns the start of every base slot in minutes since midnight.
func BaseGrid() []int {
	grid := make([]int, 0, gridSlotsPerDay)
	for m := GridOpenMinutes; m <= GridLastMinutes; m += GridStepMinutes {
		grid = append(grid, m)
	}
	return grid
}

// FormatSlot renders minutes since midnight as HH:MM.
func FormatSlot(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ComputeAvailableSlots lists the base slots of date that a 60 minute
// appointment can still take. A slot is offered exactly when HasConflict
// would accept a booking there, so the list and the booking path agree.
// date must be midnight in the clinic location; past dates are rejected and
// on the current date only slots strictly after now are offered.
func ComputeAvailableSlots(date, now time.Time, active []Interval) ([]string, error) {
	loc := date.Location()
	today := StartOfDay(now.In(loc))
	if date.Before(today) {
		return nil, ErrFechaPasada
	}

	slots := make([]string, 0, gridSlotsPerDay)
	for _, m := range BaseGrid() {
		if HasConflict(m, DuracionMinutos, active) {
			continue
		}
		if date.Equal(today) && !atMinute(date, m).After(now) {
			continue
		}
		slots = append(slots, FormatSlot(m))
	}
	return slots, nil
}

// OnGrid reports whether t is a base-grid start: 08:00 to 17:30, on the hour
// or half hour, with no seconds.
func OnGrid(t time.Time) bool {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	m := minutesOfDay(t)
	return m >= GridOpenMinutes && m <= GridLastMinutes && (m-GridOpenMinutes)%GridStepMinutes == 0
}

// ParseFecha parses YYYY-MM-DD as midnight in loc.
func ParseFecha(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// ParseFechaHora parses a civil date-time (YYYY-MM-DDTHH:MM[:SS]) in loc.
// Offsets are not accepted: the clinic's zone always applies.
func ParseFechaHora(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(FechaHoraLayout, s, loc)
	if err != nil {
		return time.ParseInLocation(fechaHoraNoSecond, s, loc)
	}
	return t, nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func atMinute(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location())
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// intervalsOf maps the appointments that still occupy the timeline, skipping
// the one with id skip when it is set.
func intervalsOf(citas []*Cita, skip *Cita) []Interval {
	out := make([]Interval, 0, len(citas))
	for _, c := range citas {
		if !c.Estado.OccupiesSchedule() {
			continue
		}
		if skip != nil && c.ID == skip.ID {
			continue
		}
		out = append(out, c.Interval())
	}
	return out
}
