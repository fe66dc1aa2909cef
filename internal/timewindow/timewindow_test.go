package timewindow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()

	loc, err := timewindow.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s is not available: %s", name, err)
	}
	return loc
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		Input string
		Want  timewindow.TimeOfDay
		Error bool
	}{
		{"09:30", timewindow.TimeOfDay{Hour: 9, Minute: 30}, false},
		{"23:59:59", timewindow.TimeOfDay{Hour: 23, Minute: 59}, false},
		{"", timewindow.TimeOfDay{}, false},
		{" 7:05 ", timewindow.TimeOfDay{Hour: 7, Minute: 5}, false},
		{"24:00", timewindow.TimeOfDay{}, true},
		{"12:60", timewindow.TimeOfDay{}, true},
		{"noon", timewindow.TimeOfDay{}, true},
		{"12", timewindow.TimeOfDay{}, true},
		{"10:00:xx", timewindow.TimeOfDay{}, true},
		{"10:00:60", timewindow.TimeOfDay{}, true},
		{"10:00:-1", timewindow.TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.Input, func(t *testing.T) {
			got, err := timewindow.ParseTimeOfDay(tt.Input)
			if (err != nil) != tt.Error {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, timewindow.ErrInvalidTimeOfDay) {
				t.Errorf("expected ErrInvalidTimeOfDay but got %v", err)
			}
			if diff := cmp.Diff(tt.Want, got); diff != "" {
				t.Errorf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTimeOfDay_Shift(t *testing.T) {
	tests := []struct {
		Name     string
		Input    timewindow.TimeOfDay
		Minutes  int
		Want     timewindow.TimeOfDay
		DayShift int
	}{
		{"same-day", timewindow.TimeOfDay{Hour: 10}, 90, timewindow.TimeOfDay{Hour: 11, Minute: 30}, 0},
		{"next-day", timewindow.TimeOfDay{Hour: 23, Minute: 30}, 120, timewindow.TimeOfDay{Hour: 1, Minute: 30}, 1},
		{"previous-day", timewindow.TimeOfDay{Hour: 1}, -150, timewindow.TimeOfDay{Hour: 22, Minute: 30}, -1},
		{"midnight", timewindow.TimeOfDay{Hour: 22}, 120, timewindow.TimeOfDay{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, shift := tt.Input.Shift(tt.Minutes)
			if got != tt.Want || shift != tt.DayShift {
				t.Errorf("expected %s (%+d) but got %s (%+d)", tt.Want, tt.DayShift, got, shift)
			}
		})
	}
}

func TestToLocal_DaylightSaving(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	tod := timewindow.TimeOfDay{Hour: 8}

	winter := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	summer := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

	if got, _ := timewindow.ToLocal(tod, berlin, winter); got.String() != "09:00" {
		t.Errorf("winter: expected 09:00 but got %s", got)
	}
	if got, _ := timewindow.ToLocal(tod, berlin, summer); got.String() != "10:00" {
		t.Errorf("summer: expected 10:00 but got %s", got)
	}
}

func TestToLocal_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	zones := []string{"UTC", "Asia/Kolkata", "America/St_Johns", "Australia/Adelaide", "Pacific/Kiritimati", "America/Los_Angeles", "Asia/Tehran"}

	for _, name := range zones {
		t.Run(name, func(t *testing.T) {
			loc := mustLoad(t, name)

			for minute := 0; minute < 24*60; minute += 15 {
				orig := timewindow.TimeOfDay{Hour: minute / 60, Minute: minute % 60}

				local, shiftA := timewindow.ToLocal(orig, loc, now)
				back, shiftB := timewindow.ToUTC(local, loc, now)

				if back != orig {
					t.Fatalf("%s -> %s -> %s", orig, local, back)
				}
				if shiftA+shiftB != 0 {
					t.Fatalf("%s: day shifts do not cancel: %d %d", orig, shiftA, shiftB)
				}
			}
		})
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := timewindow.LoadLocation(""); err != nil || loc != time.UTC {
		t.Errorf("empty name should be UTC, got %v %v", loc, err)
	}
	if loc, err := timewindow.LoadLocation(timewindow.ServerTimezone); err != nil || loc != time.Local {
		t.Errorf("server timezone should be Local, got %v %v", loc, err)
	}
	if _, err := timewindow.LoadLocation("Mars/Olympus_Mons"); !errors.Is(err, timewindow.ErrInvalidTimezone) {
		t.Errorf("expected ErrInvalidTimezone but got %v", err)
	}
}

func TestParseISO(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")

	tests := []struct {
		Input string
		Loc   *time.Location
		Want  time.Time
		Error bool
	}{
		{"2024-05-01T10:00:00Z", nil, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-05-01T10:00:00+02:00", nil, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), false},
		{"2024-05-01 10:00:00", nil, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"2024-05-01 10:00", tokyo, time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC), false},
		{"2024-05-01", nil, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"yesterday", nil, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.Input, func(t *testing.T) {
			got, err := timewindow.ParseISO(tt.Input, tt.Loc)
			if (err != nil) != tt.Error {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.Want) {
				t.Errorf("expected %s but got %s", tt.Want, got)
			}
		})
	}
}

func TestFormatISO_RoundTrip(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	instant := time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)

	if got := timewindow.FormatISO(instant, nil); got != "2024-12-31T23:30:00.000Z" {
		t.Errorf("unexpected UTC format: %s", got)
	}

	local := timewindow.FormatISO(instant, tokyo)
	if local != "2025-01-01T08:30:00.000+09:00" {
		t.Errorf("unexpected local format: %s", local)
	}

	back, err := timewindow.ParseISO(local, nil)
	if err != nil {
		t.Fatalf("failed to parse: %s", err)
	}
	if !back.Equal(instant) {
		t.Errorf("round trip changed the instant: %s", back)
	}
}

func TestTimeRange_Occurrence(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	at := func(d, h, m int) time.Time { return time.Date(2024, 5, d, h, m, 30, 0, time.UTC) }

	office := timewindow.TimeRange{Start: timewindow.TimeOfDay{Hour: 9}, End: timewindow.TimeOfDay{Hour: 17}}
	night := timewindow.TimeRange{Start: timewindow.TimeOfDay{Hour: 22}, End: timewindow.TimeOfDay{Hour: 2}}
	whole := timewindow.TimeRange{}

	tests := []struct {
		Name  string
		Range timewindow.TimeRange
		At    time.Time
		OK    bool
		Day   time.Time
	}{
		{"office-inside", office, at(8, 10, 0), true, day(8)},
		{"office-start", office, at(8, 9, 0), true, day(8)},
		{"office-end", office, at(8, 17, 0), true, day(8)},
		{"office-after", office, at(8, 18, 0), false, time.Time{}},
		{"office-before", office, at(8, 8, 59), false, time.Time{}},
		{"night-evening", night, at(8, 23, 0), true, day(8)},
		{"night-after-midnight", night, at(9, 1, 0), true, day(8)},
		{"night-day", night, at(9, 12, 0), false, time.Time{}},
		{"whole-day", whole, at(9, 12, 0), true, day(9)},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			d, ok := tt.Range.Occurrence(tt.At)
			if ok != tt.OK {
				t.Fatalf("expected %v but got %v", tt.OK, ok)
			}
			if ok && !d.Equal(tt.Day) {
				t.Errorf("expected occurrence day %s but got %s", tt.Day, d)
			}
		})
	}
}

func TestDateRange_ContainsDay(t *testing.T) {
	start := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 12, 3, 0, 0, 0, time.UTC)

	r := timewindow.DateRange{Start: &start, End: &end}
	open := timewindow.DateRange{Start: &start}

	tests := []struct {
		Range timewindow.DateRange
		Day   int
		Want  bool
	}{
		{r, 9, false},
		{r, 10, true},
		{r, 12, true},
		{r, 13, false},
		{open, 30, true},
		{timewindow.DateRange{}, 1, true},
	}

	for _, tt := range tests {
		got := tt.Range.ContainsDay(time.Date(2024, 5, tt.Day, 23, 59, 0, 0, time.UTC))
		if got != tt.Want {
			t.Errorf("day %d: expected %v but got %v", tt.Day, tt.Want, got)
		}
	}
}

func TestDaysHelpers(t *testing.T) {
	if n := timewindow.DaysInMonth(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)); n != 29 {
		t.Errorf("expected 29 days in February 2024 but got %d", n)
	}
	if n := timewindow.DaysInMonth(time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)); n != 30 {
		t.Errorf("expected 30 days in April but got %d", n)
	}

	a := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 4, 1, 0, 0, 0, time.UTC)
	if n := timewindow.DaysBetween(a, b); n != 3 {
		t.Errorf("expected 3 days but got %d", n)
	}
}
