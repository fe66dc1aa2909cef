package maintenance

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// Schedule is the strategy-specific part of a maintenance window. The set of
// implementations is closed; the evaluator switches over all of them.
type Schedule interface {
	Strategy() string
	isSchedule()
}

// Manual is an operator-toggled blackout: it is in effect whenever the
// window is active.
type Manual struct{}

// Single is a one-off window spanning a date range, limited each day to a
// time-of-day range.
type Single struct {
	Dates timewindow.DateRange
	Time  timewindow.TimeRange
}

// RecurringInterval repeats every IntervalDay days counted from the start
// date.
type RecurringInterval struct {
	Dates       timewindow.DateRange
	Time        timewindow.TimeRange
	IntervalDay int
}

// RecurringWeekday repeats on the given weekdays.
type RecurringWeekday struct {
	Dates    timewindow.DateRange
	Time     timewindow.TimeRange
	Weekdays []time.Weekday
}

// RecurringDayOfMonth repeats on the given days of the month. Negative days
// count from the end of the month (-1 is the last day). A day that does not
// exist in a month (the 31st in April) is skipped for that month.
type RecurringDayOfMonth struct {
	Dates timewindow.DateRange
	Time  timewindow.TimeRange
	Days  []int
}

// Cron starts at every trigger of a cron expression and lasts Duration.
type Cron struct {
	Dates    timewindow.DateRange
	Expr     string
	Duration time.Duration
	schedule cron.Schedule
}

func (Manual) Strategy() string              { return "manual" }
func (Single) Strategy() string              { return "single" }
func (RecurringInterval) Strategy() string   { return "recurring-interval" }
func (RecurringWeekday) Strategy() string    { return "recurring-weekday" }
func (RecurringDayOfMonth) Strategy() string { return "recurring-day-of-month" }
func (Cron) Strategy() string                { return "cron" }

func (Manual) isSchedule()              {}
func (Single) isSchedule()              {}
func (RecurringInterval) isSchedule()   {}
func (RecurringWeekday) isSchedule()    {}
func (RecurringDayOfMonth) isSchedule() {}
func (Cron) isSchedule()                {}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewCron parses a cron expression. A "CRON_TZ=Area/City " prefix evaluates
// the expression in that timezone.
func NewCron(expr string, duration time.Duration, dates timewindow.DateRange) (Cron, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return Cron{}, err
	}
	return Cron{Dates: dates, Expr: expr, Duration: duration, schedule: s}, nil
}

// Window is a compiled maintenance window ready for evaluation.
type Window struct {
	ID       int
	Title    string
	Active   bool
	Schedule Schedule
}

// ActiveAt reports whether the window suppresses alerting at now.
func (w Window) ActiveAt(now time.Time) bool {
	if !w.Active {
		return false
	}
	now = now.UTC()

	switch s := w.Schedule.(type) {
	case Manual:
		return true

	case Single:
		day, ok := s.Time.Occurrence(now)
		return ok && s.Dates.ContainsDay(day)

	case RecurringInterval:
		day, ok := s.Time.Occurrence(now)
		if !ok || !s.Dates.ContainsDay(day) || s.Dates.Start == nil || s.IntervalDay < 1 {
			return false
		}
		elapsed := timewindow.DaysBetween(*s.Dates.Start, day)
		return elapsed >= 0 && elapsed%s.IntervalDay == 0

	case RecurringWeekday:
		day, ok := s.Time.Occurrence(now)
		if !ok || !s.Dates.ContainsDay(day) {
			return false
		}
		for _, wd := range s.Weekdays {
			if day.Weekday() == wd {
				return true
			}
		}
		return false

	case RecurringDayOfMonth:
		day, ok := s.Time.Occurrence(now)
		if !ok || !s.Dates.ContainsDay(day) {
			return false
		}
		last := timewindow.DaysInMonth(day)
		for _, d := range s.Days {
			if d < 0 {
				d = last + d + 1
			}
			if d == day.Day() {
				return true
			}
		}
		return false

	case Cron:
		if s.schedule == nil || s.Duration <= 0 {
			return false
		}
		start := s.schedule.Next(now.Add(-s.Duration))
		if start.After(now) {
			return false
		}
		return s.Dates.ContainsDay(start)

	default:
		return false
	}
}
