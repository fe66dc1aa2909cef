// Package timewindow holds the calendar arithmetic used by maintenance
// schedules and uptime windows. Stored values are always UTC; conversion to
// a user timezone only happens when a value is shown or entered.
package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrInvalidDate      = errors.New("invalid date")
)

const minutesPerDay = 24 * 60

// ServerTimezone is accepted wherever a timezone name is expected and means
// the local zone of the process.
const ServerTimezone = "SAME_AS_SERVER"

// TimeOfDay is an hour:minute pair without a date.
type TimeOfDay struct {
	Hour   int `json:"hours"`
	Minute int `json:"minutes"`
}

// NewTimeOfDay validates and builds a TimeOfDay.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, hour, minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS". Seconds are validated and
// then dropped. An empty string is midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
	}
	return NewTimeOfDay(hour, minute)
}

// Of returns the UTC time of day of an instant.
func Of(t time.Time) TimeOfDay {
	t = t.UTC()
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MinuteOfDay returns minutes since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// Shift moves t by the given number of minutes. The result is wrapped into
// a single day; dayShift tells how many days were crossed (-1, 0 or +1 for
// any real UTC offset).
func (t TimeOfDay) Shift(minutes int) (shifted TimeOfDay, dayShift int) {
	total := t.MinuteOfDay() + minutes
	dayShift = floorDiv(total, minutesPerDay)
	total -= dayShift * minutesPerDay
	return TimeOfDay{Hour: total / 60, Minute: total % 60}, dayShift
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// LoadLocation resolves a timezone name. Empty and "UTC" mean UTC;
// ServerTimezone means the process local zone.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "UTC", "utc":
		return time.UTC, nil
	case ServerTimezone:
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

// OffsetMinutes returns the UTC offset of loc at the instant now. The offset
// is resolved against now so daylight saving time is honored.
func OffsetMinutes(loc *time.Location, now time.Time) int {
	if loc == nil {
		return 0
	}
	_, offset := now.In(loc).Zone()
	return offset / 60
}

// ToLocal converts a UTC time of day into loc, using the offset in force at
// now.
func ToLocal(t TimeOfDay, loc *time.Location, now time.Time) (TimeOfDay, int) {
	return t.Shift(OffsetMinutes(loc, now))
}

// ToUTC converts a time of day expressed in loc back to UTC. It is the
// inverse of ToLocal for the same now.
func ToUTC(t TimeOfDay, loc *time.Location, now time.Time) (TimeOfDay, int) {
	return t.Shift(-OffsetMinutes(loc, now))
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseISO parses an ISO-8601 date or date-time and returns it in UTC.
// Values without an explicit offset are read in loc (UTC when nil).
func ParseISO(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for i, layout := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatISO renders an instant as ISO-8601 with milliseconds, in loc when
// given and in UTC ("Z") otherwise.
func FormatISO(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02T15:04:05.000Z07:00")
}

// Midnight returns the start of the UTC calendar day containing t.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of UTC calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)).Hours() / 24)
}

// DaysInMonth returns the length of the UTC month containing t.
func DaysInMonth(t time.Time) int {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Window returns the [now-hours, now] interval used for uptime queries.
func Window(hours int, now time.Time) (start, end time.Time) {
	end = now.UTC()
	return end.Add(-time.Duration(hours) * time.Hour), end
}

// HourStart truncates t to the start of its UTC hour.
func HourStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
