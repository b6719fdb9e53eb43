package admission

import (
	"context"
	"testing"
	"time"
)

type fakeCounts struct {
	inProgress int
	perWindow  map[time.Time]int // since -> count
}

func (f fakeCounts) CountInProgress(ctx context.Context) (int, error) { return f.inProgress, nil }

func (f fakeCounts) CountDispatchedSince(ctx context.Context, since time.Time) (int, error) {
	for k, v := range f.perWindow {
		if k.Equal(since) {
			return v, nil
		}
	}
	return 0, nil
}

func mustWindow(t *testing.T, start, end string) Window {
	t.Helper()
	w, err := NewWindow(start, end, "Europe/London")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

// noonUTC is a winter instant (no BST offset) inside a 07:00-22:00 window.
var noonUTC = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

func TestHeadroom_MinOfAllCaps(t *testing.T) {
	w := mustWindow(t, "07:00", "22:00")
	limits := Limits{MaxConcurrentCalls: 5, MaxCallsPerHour: 50, MaxCallsPerDay: 200}

	cases := []struct {
		name       string
		inProgress int
		lastHour   int
		today      int
		want       int
	}{
		{"all clear", 0, 0, 0, 5},
		{"concurrency binds", 3, 0, 0, 2},
		{"hourly binds", 0, 49, 49, 1},
		{"daily binds", 0, 10, 200, 0},
		{"never negative", 7, 60, 300, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counts := fakeCounts{
				inProgress: tc.inProgress,
				perWindow: map[time.Time]int{
					noonUTC.Add(-time.Hour): tc.lastHour,
					w.StartOfDay(noonUTC):   tc.today,
				},
			}
			c := NewController(limits, w, counts)
			n, err := c.Headroom(context.Background(), noonUTC)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if n != tc.want {
				t.Fatalf("expected headroom %d, got %d", tc.want, n)
			}
		})
	}
}

func TestHeadroom_ZeroOutsideWindow(t *testing.T) {
	w := mustWindow(t, "09:00", "17:00")
	c := NewController(Limits{MaxConcurrentCalls: 5, MaxCallsPerHour: 50, MaxCallsPerDay: 200}, w, fakeCounts{})

	night := time.Date(2024, time.January, 15, 23, 30, 0, 0, time.UTC)
	n, err := c.Headroom(context.Background(), night)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 outside window, got %d", n)
	}
}

func TestWindow_Contains(t *testing.T) {
	w := mustWindow(t, "07:00", "22:00")

	inside := time.Date(2024, time.January, 15, 7, 0, 0, 0, time.UTC)
	if !w.Contains(inside) {
		t.Fatalf("start edge is inclusive")
	}
	lastMinute := time.Date(2024, time.January, 15, 22, 0, 0, 0, time.UTC)
	if !w.Contains(lastMinute) {
		t.Fatalf("end edge is inclusive")
	}
	before := time.Date(2024, time.January, 15, 6, 59, 0, 0, time.UTC)
	if w.Contains(before) {
		t.Fatalf("before start is outside")
	}
}

func TestWindow_ContainsHonorsTimezone(t *testing.T) {
	w := mustWindow(t, "07:00", "22:00")

	// 21:30 UTC in July is 22:30 in London (BST): outside the window.
	summerEvening := time.Date(2024, time.July, 15, 21, 30, 0, 0, time.UTC)
	if w.Contains(summerEvening) {
		t.Fatalf("BST offset must be applied")
	}
}

func TestWindow_NextOpen(t *testing.T) {
	w := mustWindow(t, "07:00", "22:00")

	// Before today's window: opens today 07:00 London.
	early := time.Date(2024, time.January, 15, 5, 0, 0, 0, time.UTC)
	open := w.NextOpen(early)
	if got := open.In(w.Timezone()); got.Hour() != 7 || got.Day() != 15 {
		t.Fatalf("expected today 07:00, got %v", got)
	}

	// After close: opens tomorrow.
	late := time.Date(2024, time.January, 15, 23, 0, 0, 0, time.UTC)
	open = w.NextOpen(late)
	if got := open.In(w.Timezone()); got.Hour() != 7 || got.Day() != 16 {
		t.Fatalf("expected tomorrow 07:00, got %v", got)
	}

	// Inside the window NextOpen is the instant itself.
	if !w.NextOpen(noonUTC).Equal(noonUTC) {
		t.Fatalf("inside window should return now")
	}
}

func TestNewWindow_Validation(t *testing.T) {
	if _, err := NewWindow("22:00", "07:00", "Europe/London"); err == nil {
		t.Fatalf("expected error for inverted window")
	}
	if _, err := NewWindow("7am", "22:00", "Europe/London"); err == nil {
		t.Fatalf("expected error for malformed clock")
	}
	if _, err := NewWindow("07:00", "22:00", "Mars/Olympus"); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
