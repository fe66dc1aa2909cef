package maintenance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fuomag9/beatkeeper/internal/maintenance"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

type fakeSource struct {
	windows map[int][]models.Maintenance
	err     error
}

func (s fakeSource) FindMaintenanceWindowsFor(ctx context.Context, monitorID int) ([]models.Maintenance, error) {
	return s.windows[monitorID], s.err
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func compile(t *testing.T, m models.Maintenance) maintenance.Window {
	t.Helper()

	w, err := maintenance.Compile(m)
	if err != nil {
		t.Fatalf("failed to compile window: %s", err)
	}
	return w
}

func TestWindow_ActiveAt(t *testing.T) {
	// 2024-05-06 is a Monday.
	tests := []struct {
		Name   string
		Window models.Maintenance
		At     time.Time
		Want   bool
	}{
		{
			Name:   "manual-active",
			Window: models.Maintenance{Strategy: models.StrategyManual, Active: true},
			At:     at(1999, 1, 1, 3, 0),
			Want:   true,
		},
		{
			Name:   "manual-inactive",
			Window: models.Maintenance{Strategy: models.StrategyManual, Active: false},
			At:     at(2024, 5, 6, 10, 0),
			Want:   false,
		},
		{
			Name:   "single-inside",
			Window: models.Maintenance{Strategy: models.StrategySingle, Active: true, StartDate: date(2024, 5, 6), EndDate: date(2024, 5, 8), StartTime: "01:00", EndTime: "03:00"},
			At:     at(2024, 5, 8, 2, 0),
			Want:   true,
		},
		{
			Name:   "single-wrong-hour",
			Window: models.Maintenance{Strategy: models.StrategySingle, Active: true, StartDate: date(2024, 5, 6), EndDate: date(2024, 5, 8), StartTime: "01:00", EndTime: "03:00"},
			At:     at(2024, 5, 7, 4, 0),
			Want:   false,
		},
		{
			Name:   "single-after-end",
			Window: models.Maintenance{Strategy: models.StrategySingle, Active: true, StartDate: date(2024, 5, 6), EndDate: date(2024, 5, 8)},
			At:     at(2024, 5, 9, 0, 30),
			Want:   false,
		},
		{
			Name:   "interval-matching-day",
			Window: models.Maintenance{Strategy: models.StrategyRecurringInterval, Active: true, IntervalDay: 3, StartDate: date(2024, 5, 1), StartTime: "02:00", EndTime: "04:00"},
			At:     at(2024, 5, 7, 3, 0),
			Want:   true,
		},
		{
			Name:   "interval-other-day",
			Window: models.Maintenance{Strategy: models.StrategyRecurringInterval, Active: true, IntervalDay: 3, StartDate: date(2024, 5, 1), StartTime: "02:00", EndTime: "04:00"},
			At:     at(2024, 5, 8, 3, 0),
			Want:   false,
		},
		{
			Name:   "interval-before-start",
			Window: models.Maintenance{Strategy: models.StrategyRecurringInterval, Active: true, IntervalDay: 1, StartDate: date(2024, 5, 10), StartTime: "02:00", EndTime: "04:00"},
			At:     at(2024, 5, 7, 3, 0),
			Want:   false,
		},
		{
			Name:   "weekday-tuesday",
			Window: models.Maintenance{Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{1, 3}, StartTime: "09:00", EndTime: "17:00"},
			At:     at(2024, 5, 7, 10, 0),
			Want:   false,
		},
		{
			Name:   "weekday-wednesday",
			Window: models.Maintenance{Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{1, 3}, StartTime: "09:00", EndTime: "17:00"},
			At:     at(2024, 5, 8, 10, 0),
			Want:   true,
		},
		{
			Name:   "weekday-wednesday-evening",
			Window: models.Maintenance{Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{1, 3}, StartTime: "09:00", EndTime: "17:00"},
			At:     at(2024, 5, 8, 18, 0),
			Want:   false,
		},
		{
			Name:   "weekday-wrapping-tail-belongs-to-previous-day",
			Window: models.Maintenance{Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{1}, StartTime: "23:00", EndTime: "02:00"},
			At:     at(2024, 5, 7, 1, 0),
			Want:   true,
		},
		{
			Name:   "weekday-outside-date-range",
			Window: models.Maintenance{Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{3}, StartDate: date(2024, 6, 1), StartTime: "09:00", EndTime: "17:00"},
			At:     at(2024, 5, 8, 10, 0),
			Want:   false,
		},
		{
			Name:   "day-of-month",
			Window: models.Maintenance{Strategy: models.StrategyRecurringDayOfMonth, Active: true, DaysOfMonth: []int{15}, StartTime: "00:00", EndTime: "06:00"},
			At:     at(2024, 5, 15, 5, 0),
			Want:   true,
		},
		{
			Name:   "day-of-month-31st-skipped-in-april",
			Window: models.Maintenance{Strategy: models.StrategyRecurringDayOfMonth, Active: true, DaysOfMonth: []int{31}, StartTime: "00:00", EndTime: "06:00"},
			At:     at(2024, 4, 30, 1, 0),
			Want:   false,
		},
		{
			Name:   "day-of-month-last-day",
			Window: models.Maintenance{Strategy: models.StrategyRecurringDayOfMonth, Active: true, DaysOfMonth: []int{-1}, StartTime: "00:00", EndTime: "06:00"},
			At:     at(2024, 2, 29, 1, 0),
			Want:   true,
		},
		{
			Name:   "cron-within-duration",
			Window: models.Maintenance{Strategy: models.StrategyCron, Active: true, CronExpr: "0 3 * * *", DurationMinutes: 60},
			At:     at(2024, 5, 8, 3, 59),
			Want:   true,
		},
		{
			Name:   "cron-after-duration",
			Window: models.Maintenance{Strategy: models.StrategyCron, Active: true, CronExpr: "0 3 * * *", DurationMinutes: 60},
			At:     at(2024, 5, 8, 4, 0),
			Want:   false,
		},
		{
			Name:   "cron-with-timezone",
			Window: models.Maintenance{Strategy: models.StrategyCron, Active: true, CronExpr: "CRON_TZ=Asia/Tokyo 0 3 * * *", DurationMinutes: 30},
			At:     at(2024, 5, 8, 18, 10),
			Want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			w := compile(t, tt.Window)
			if got := w.ActiveAt(tt.At); got != tt.Want {
				t.Errorf("expected %v but got %v", tt.Want, got)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		Name   string
		Window models.Maintenance
	}{
		{"unknown-strategy", models.Maintenance{Strategy: "sometimes"}},
		{"bad-time", models.Maintenance{Strategy: models.StrategyRecurringWeekday, StartTime: "25:00"}},
		{"interval-zero", models.Maintenance{Strategy: models.StrategyRecurringInterval, StartDate: date(2024, 1, 1), IntervalDay: 0}},
		{"interval-no-start", models.Maintenance{Strategy: models.StrategyRecurringInterval, IntervalDay: 2}},
		{"single-no-end", models.Maintenance{Strategy: models.StrategySingle, StartDate: date(2024, 1, 1)}},
		{"reversed-dates", models.Maintenance{Strategy: models.StrategySingle, StartDate: date(2024, 2, 1), EndDate: date(2024, 1, 1)}},
		{"bad-weekday", models.Maintenance{Strategy: models.StrategyRecurringWeekday, Weekdays: []int{9}}},
		{"bad-cron", models.Maintenance{Strategy: models.StrategyCron, CronExpr: "every day", DurationMinutes: 5}},
		{"cron-no-duration", models.Maintenance{Strategy: models.StrategyCron, CronExpr: "0 3 * * *"}},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := maintenance.Compile(tt.Window)
			if !errors.Is(err, maintenance.ErrInvalidWindow) {
				t.Errorf("expected ErrInvalidWindow but got %v", err)
			}
		})
	}
}

func TestEvaluator_IsUnderMaintenance(t *testing.T) {
	source := fakeSource{windows: map[int][]models.Maintenance{
		1: {
			{ID: 1, Strategy: "broken"},
			{ID: 2, Strategy: models.StrategyRecurringWeekday, Active: true, Weekdays: []int{3}, StartTime: "09:00", EndTime: "17:00"},
		},
		2: {
			{ID: 3, Strategy: models.StrategyManual, Active: true},
		},
	}}
	e := maintenance.NewEvaluator(source)
	ctx := context.Background()

	tests := []struct {
		Monitor int
		At      time.Time
		Want    bool
	}{
		{1, at(2024, 5, 8, 10, 0), true},
		{1, at(2024, 5, 7, 10, 0), false},
		{2, at(2024, 5, 7, 10, 0), true},
		{3, at(2024, 5, 8, 10, 0), false},
	}

	for _, tt := range tests {
		got, err := e.IsUnderMaintenance(ctx, tt.Monitor, tt.At)
		if err != nil {
			t.Fatalf("monitor %d: unexpected error: %s", tt.Monitor, err)
		}
		if got != tt.Want {
			t.Errorf("monitor %d at %s: expected %v but got %v", tt.Monitor, tt.At, tt.Want, got)
		}
	}
}

func TestEvaluator_SourceError(t *testing.T) {
	e := maintenance.NewEvaluator(fakeSource{err: errors.New("connection reset")})

	got, err := e.IsUnderMaintenance(context.Background(), 1, time.Now())
	if err == nil {
		t.Fatal("expected an error")
	}
	if got {
		t.Error("expected false on error")
	}
}

func TestActiveWindows(t *testing.T) {
	rows := []models.Maintenance{
		{ID: 1, Title: "always", Strategy: models.StrategyManual, Active: true},
		{ID: 2, Title: "off", Strategy: models.StrategyManual, Active: false},
		{ID: 3, Title: "broken", Strategy: "?", Active: true},
	}

	active := maintenance.ActiveWindows(rows, time.Now())
	if len(active) != 1 || active[0].ID != 1 {
		t.Errorf("unexpected active windows: %+v", active)
	}
}

func TestPublic_RoundTrip(t *testing.T) {
	loc, err := timewindow.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("timezone not available: %s", err)
	}
	now := at(2024, 5, 1, 0, 0)

	stored := models.Maintenance{
		ID:          7,
		Title:       "db upgrade",
		Strategy:    models.StrategyRecurringDayOfMonth,
		Active:      true,
		IntervalDay: 1,
		StartDate:   date(2024, 5, 1),
		EndDate:     date(2024, 6, 30),
		StartTime:   "20:00",
		EndTime:     "22:30",
		Weekdays:    []int{},
		DaysOfMonth: []int{1, 15, -1},
	}

	p := maintenance.ToPublic(stored, loc, now)

	if diff := cmp.Diff([]timewindow.TimeOfDay{{Hour: 1, Minute: 30}, {Hour: 4, Minute: 0}}, p.TimeRange); diff != "" {
		t.Errorf("unexpected local time range (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interface{}{float64(1), float64(15), "lastDay1"}, p.DaysOfMonth); diff != "" {
		t.Errorf("unexpected days of month (-want +got):\n%s", diff)
	}

	back, err := maintenance.FromPublic(p, loc, now)
	if err != nil {
		t.Fatalf("failed to convert back: %s", err)
	}

	if back.StartTime != stored.StartTime || back.EndTime != stored.EndTime {
		t.Errorf("time range changed: %s-%s", back.StartTime, back.EndTime)
	}
	if !back.StartDate.Equal(*stored.StartDate) || !back.EndDate.Equal(*stored.EndDate) {
		t.Errorf("date range changed: %s - %s", back.StartDate, back.EndDate)
	}
	if diff := cmp.Diff(stored.DaysOfMonth, back.DaysOfMonth); diff != "" {
		t.Errorf("days of month changed (-want +got):\n%s", diff)
	}
}

func TestToPublic_UTC(t *testing.T) {
	stored := models.Maintenance{
		ID:        1,
		Strategy:  models.StrategySingle,
		StartDate: date(2024, 5, 1),
		StartTime: "08:00",
		EndTime:   "09:00",
	}

	p := maintenance.ToPublic(stored, nil, time.Now())

	if diff := cmp.Diff([]string{"2024-05-01T00:00:00.000Z"}, p.DateRange); diff != "" {
		t.Errorf("unexpected date range (-want +got):\n%s", diff)
	}
	if p.TimeRange[0].String() != "08:00" || p.TimeRange[1].String() != "09:00" {
		t.Errorf("unexpected time range: %v", p.TimeRange)
	}
	if p.Weekdays == nil || p.DaysOfMonth == nil {
		t.Error("sets should be empty, not nil")
	}
}
