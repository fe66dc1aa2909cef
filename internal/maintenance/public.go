package maintenance

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// PublicWindow is the JSON shape of a maintenance window at the API
// boundary. Times in it are expressed in the caller's timezone.
type PublicWindow struct {
	ID              int                    `json:"id"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Strategy        string                 `json:"strategy"`
	IntervalDay     int                    `json:"intervalDay"`
	Active          bool                   `json:"active"`
	DateRange       []string               `json:"dateRange"`
	TimeRange       []timewindow.TimeOfDay `json:"timeRange"`
	Weekdays        []int                  `json:"weekdays"`
	DaysOfMonth     []interface{}          `json:"daysOfMonth"`
	Cron            string                 `json:"cron,omitempty"`
	DurationMinutes int                    `json:"durationMinutes,omitempty"`
	Timezone        string                 `json:"timezone,omitempty"`
}

// ToPublic renders a stored window for display. With a nil loc the time
// range and dates stay in UTC.
func ToPublic(m models.Maintenance, loc *time.Location, now time.Time) PublicWindow {
	p := PublicWindow{
		ID:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		Strategy:        m.Strategy,
		IntervalDay:     m.IntervalDay,
		Active:          m.Active,
		DateRange:       []string{},
		Weekdays:        m.Weekdays,
		DaysOfMonth:     []interface{}{},
		Cron:            m.CronExpr,
		DurationMinutes: m.DurationMinutes,
		Timezone:        m.Timezone,
	}
	if p.Weekdays == nil {
		p.Weekdays = []int{}
	}

	if m.StartDate != nil {
		p.DateRange = append(p.DateRange, timewindow.FormatISO(*m.StartDate, loc))
		if m.EndDate != nil {
			p.DateRange = append(p.DateRange, timewindow.FormatISO(*m.EndDate, loc))
		}
	}

	// Unparseable stored times are shown as midnight.
	start, _ := timewindow.ParseTimeOfDay(m.StartTime)
	end, _ := timewindow.ParseTimeOfDay(m.EndTime)
	if loc != nil {
		if m.StartTime != "" {
			start, _ = timewindow.ToLocal(start, loc, now)
		}
		if m.EndTime != "" {
			end, _ = timewindow.ToLocal(end, loc, now)
		}
	}
	p.TimeRange = []timewindow.TimeOfDay{start, end}

	if err := json.Unmarshal([]byte(models.EncodeDaysOfMonth(m.DaysOfMonth)), &p.DaysOfMonth); err != nil {
		p.DaysOfMonth = []interface{}{}
	}

	return p
}

// FromPublic converts an edited window back to its stored form, moving the
// time range and naive dates from loc to UTC.
func FromPublic(p PublicWindow, loc *time.Location, now time.Time) (models.Maintenance, error) {
	m := models.Maintenance{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Strategy:        p.Strategy,
		IntervalDay:     p.IntervalDay,
		Active:          p.Active,
		Weekdays:        p.Weekdays,
		CronExpr:        p.Cron,
		DurationMinutes: p.DurationMinutes,
		Timezone:        p.Timezone,
	}

	if len(p.DateRange) > 0 && p.DateRange[0] != "" {
		start, err := timewindow.ParseISO(p.DateRange[0], loc)
		if err != nil {
			return models.Maintenance{}, fmt.Errorf("start date: %w", err)
		}
		m.StartDate = &start

		if len(p.DateRange) > 1 && p.DateRange[1] != "" {
			end, err := timewindow.ParseISO(p.DateRange[1], loc)
			if err != nil {
				return models.Maintenance{}, fmt.Errorf("end date: %w", err)
			}
			m.EndDate = &end
		}
	}

	if len(p.TimeRange) > 0 {
		start := p.TimeRange[0]
		if loc != nil {
			start, _ = timewindow.ToUTC(start, loc, now)
		}
		m.StartTime = start.String()

		if len(p.TimeRange) > 1 {
			end := p.TimeRange[1]
			if loc != nil {
				end, _ = timewindow.ToUTC(end, loc, now)
			}
			m.EndTime = end.String()
		}
	}

	raw, err := json.Marshal(p.DaysOfMonth)
	if err != nil {
		return models.Maintenance{}, fmt.Errorf("days of month: %w", err)
	}
	days, err := models.DecodeDaysOfMonth(string(raw))
	if err != nil {
		return models.Maintenance{}, fmt.Errorf("days of month: %w", err)
	}
	m.DaysOfMonth = days

	return m, nil
}
