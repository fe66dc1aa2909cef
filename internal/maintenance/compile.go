package maintenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// ErrInvalidWindow marks a maintenance definition that cannot be evaluated.
var ErrInvalidWindow = errors.New("invalid maintenance window")

// Compile turns a stored maintenance row into a Window.
func Compile(m models.Maintenance) (Window, error) {
	w := Window{ID: m.ID, Title: m.Title, Active: m.Active}

	invalid := func(format string, args ...interface{}) (Window, error) {
		return Window{}, fmt.Errorf("%w %d: %s", ErrInvalidWindow, m.ID, fmt.Sprintf(format, args...))
	}

	dates := timewindow.DateRange{Start: m.StartDate, End: m.EndDate}
	if dates.Start != nil && dates.End != nil && dates.End.Before(*dates.Start) {
		return invalid("end date %s is before start date %s", dates.End, dates.Start)
	}

	var tr timewindow.TimeRange
	if m.Strategy != models.StrategyManual && m.Strategy != models.StrategyCron {
		start, err := timewindow.ParseTimeOfDay(m.StartTime)
		if err != nil {
			return invalid("start time: %v", err)
		}
		end, err := timewindow.ParseTimeOfDay(m.EndTime)
		if err != nil {
			return invalid("end time: %v", err)
		}
		tr = timewindow.TimeRange{Start: start, End: end}
	}

	switch m.Strategy {
	case models.StrategyManual:
		w.Schedule = Manual{}

	case models.StrategySingle:
		if dates.Start == nil || dates.End == nil {
			return invalid("single window needs both start and end date")
		}
		w.Schedule = Single{Dates: dates, Time: tr}

	case models.StrategyRecurringInterval:
		if dates.Start == nil {
			return invalid("recurring interval needs a start date")
		}
		if m.IntervalDay < 1 {
			return invalid("interval_day must be at least 1, got %d", m.IntervalDay)
		}
		w.Schedule = RecurringInterval{Dates: dates, Time: tr, IntervalDay: m.IntervalDay}

	case models.StrategyRecurringWeekday:
		weekdays := make([]time.Weekday, 0, len(m.Weekdays))
		for _, d := range m.Weekdays {
			if d < 0 || d > 6 {
				return invalid("weekday %d out of range", d)
			}
			weekdays = append(weekdays, time.Weekday(d))
		}
		w.Schedule = RecurringWeekday{Dates: dates, Time: tr, Weekdays: weekdays}

	case models.StrategyRecurringDayOfMonth:
		for _, d := range m.DaysOfMonth {
			if d == 0 || d > 31 || d < -4 {
				return invalid("day of month %d out of range", d)
			}
		}
		w.Schedule = RecurringDayOfMonth{Dates: dates, Time: tr, Days: append([]int(nil), m.DaysOfMonth...)}

	case models.StrategyCron:
		if m.DurationMinutes <= 0 {
			return invalid("cron window needs a positive duration")
		}
		c, err := NewCron(m.CronExpr, time.Duration(m.DurationMinutes)*time.Minute, dates)
		if err != nil {
			return invalid("cron expression %q: %v", m.CronExpr, err)
		}
		w.Schedule = c

	default:
		return invalid("unknown strategy %q", m.Strategy)
	}

	return w, nil
}
