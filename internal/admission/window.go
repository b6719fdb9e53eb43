package admission

import (
	"fmt"
	"time"
)

// Window is a daily local-time calling window, inclusive on both edges.
// All checks convert the instant into the window's timezone first, so a UTC
// scheduler clock still honors local calling rules across DST shifts.
type Window struct {
	start time.Duration // offset from local midnight
	end   time.Duration
	loc   *time.Location
}

// NewWindow parses "HH:MM" boundaries in the given IANA timezone.
func NewWindow(startHHMM, endHHMM, timezone string) (Window, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Window{}, fmt.Errorf("admission: load timezone %q: %w", timezone, err)
	}
	start, err := parseClock(startHHMM)
	if err != nil {
		return Window{}, err
	}
	end, err := parseClock(endHHMM)
	if err != nil {
		return Window{}, err
	}
	if end <= start {
		return Window{}, fmt.Errorf("admission: window end %q must be after start %q", endHHMM, startHHMM)
	}
	return Window{start: start, end: end, loc: loc}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("admission: clock time must be HH:MM, got %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(now time.Time) bool {
	local := now.In(w.loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return offset >= w.start && offset <= w.end
}

// NextOpen returns the next instant the window opens at or after now.
// If now is already inside the window, now is returned unchanged.
func (w Window) NextOpen(now time.Time) time.Time {
	if w.Contains(now) {
		return now
	}
	local := now.In(w.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc).Add(w.start)
	if !local.Before(open) {
		// Past today's window; open tomorrow.
		open = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, w.loc).Add(w.start)
	}
	return open
}

// StartOfDay returns local midnight for the calendar day containing now,
// used as the daily-cap counting boundary.
func (w Window) StartOfDay(now time.Time) time.Time {
	local := now.In(w.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
}

// Timezone exposes the window's location for logging.
func (w Window) Timezone() *time.Location { return w.loc }
