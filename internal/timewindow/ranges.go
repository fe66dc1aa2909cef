package timewindow

import "time"

// TimeRange is a daily [Start, End] window in UTC. Both ends are inclusive
// at minute resolution. When Start is after End the window wraps past
// midnight; when they are equal it covers the whole day.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// WholeDay reports whether the range covers the full day.
func (r TimeRange) WholeDay() bool {
	return r.Start == r.End
}

// Wraps reports whether the range crosses midnight.
func (r TimeRange) Wraps() bool {
	return r.Start.MinuteOfDay() > r.End.MinuteOfDay()
}

// Occurrence reports whether t falls inside the range. When it does, day is
// the UTC midnight of the day the occurrence started on, which is the day
// before t for the part of a wrapping range after midnight. Callers match
// weekday, day-of-month and date-range rules against day, not t.
func (r TimeRange) Occurrence(t time.Time) (day time.Time, ok bool) {
	today := Midnight(t)
	if r.WholeDay() {
		return today, true
	}

	m := Of(t).MinuteOfDay()
	start, end := r.Start.MinuteOfDay(), r.End.MinuteOfDay()

	if !r.Wraps() {
		return today, m >= start && m <= end
	}
	if m >= start {
		return today, true
	}
	if m <= end {
		return today.AddDate(0, 0, -1), true
	}
	return time.Time{}, false
}

// DateRange bounds a schedule by UTC calendar days. A nil end means open
// ended; a nil start means no lower bound.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// ContainsDay reports whether the UTC calendar day of day lies within the
// range, both ends inclusive.
func (r DateRange) ContainsDay(day time.Time) bool {
	d := Midnight(day)
	if r.Start != nil && d.Before(Midnight(*r.Start)) {
		return false
	}
	if r.End != nil && d.After(Midnight(*r.End)) {
		return false
	}
	return true
}
