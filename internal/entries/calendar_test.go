package entries

import (
	"testing"
	"time"
)

func TestCalendarTodayUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	instant := time.Date(2024, 1, 4, 20, 30, 0, 0, time.UTC)
	calendar := NewCalendar(tokyo, func() time.Time { return instant })

	if got := calendar.Today(); got != "2024-01-05" {
		t.Fatalf("expected local day 2024-01-05, got %s", got)
	}
	if got := NewCalendar(time.UTC, func() time.Time { return instant }).Today(); got != "2024-01-04" {
		t.Fatalf("expected utc day 2024-01-04, got %s", got)
	}
}

func TestCalendarWeekCrossesMonthBoundary(t *testing.T) {
	instant := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	calendar := NewCalendar(time.UTC, func() time.Time { return instant })

	week := calendar.Week()
	expected := []Day{"2024-03-02", "2024-03-01", "2024-02-29", "2024-02-28", "2024-02-27", "2024-02-26", "2024-02-25"}
	if len(week) != len(expected) {
		t.Fatalf("expected %d days, got %d", len(expected), len(week))
	}
	for index, day := range expected {
		if week[index] != day {
			t.Fatalf("expected %s at index %d, got %s", day, index, week[index])
		}
	}
}

func TestCalendarTrailingDaysRejectsNonPositiveCount(t *testing.T) {
	calendar := NewCalendar(time.UTC, nil)
	if days := calendar.TrailingDays(0); days != nil {
		t.Fatalf("expected nil days, got %v", days)
	}
}

func TestParseDay(t *testing.T) {
	if _, err := ParseDay("2024-01-05"); err != nil {
		t.Fatalf("expected valid day: %v", err)
	}
	for _, raw := range []string{"", "2024-1-5", "2024-02-30", "05/01/2024", "yesterday"} {
		if _, err := ParseDay(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
