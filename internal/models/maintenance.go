package models

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
)

// Maintenance strategies
const (
	StrategyManual              = "manual"
	StrategySingle              = "single"
	StrategyRecurringInterval   = "recurring-interval"
	StrategyRecurringWeekday    = "recurring-weekday"
	StrategyRecurringDayOfMonth = "recurring-day-of-month"
	StrategyCron                = "cron"
)

// Maintenance is a stored maintenance window. Dates and times are kept in
// UTC; Timezone only records what the author entered them in.
type Maintenance struct {
	ID              int        `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          int        `json:"user_id" gorm:"not null;index"`
	Title           string     `json:"title" gorm:"not null"`
	Description     string     `json:"description" gorm:"type:text"`
	Strategy        string     `json:"strategy" gorm:"not null;default:'single'"`
	Active          bool       `json:"active" gorm:"not null;index"`
	IntervalDay     int        `json:"interval_day" gorm:"default:1"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	StartTime       string     `json:"start_time"` // HH:MM, UTC
	EndTime         string     `json:"end_time"`   // HH:MM, UTC
	Weekdays        []int      `json:"weekdays" gorm:"-"`
	WeekdaysRaw     string     `json:"-" gorm:"column:weekdays;type:text"`
	DaysOfMonth     []int      `json:"days_of_month" gorm:"-"` // 1..31, or -N for the N-th last day
	DaysOfMonthRaw  string     `json:"-" gorm:"column:days_of_month;type:text"`
	CronExpr        string     `json:"cron"`
	DurationMinutes int        `json:"duration"`
	Timezone        string     `json:"timezone"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Maintenance
func (Maintenance) TableName() string {
	return "maintenances"
}

// MonitorMaintenance links monitors to maintenance windows
type MonitorMaintenance struct {
	MonitorID     int `json:"monitor_id" gorm:"primaryKey"`
	MaintenanceID int `json:"maintenance_id" gorm:"primaryKey;index"`
}

// TableName specifies the table name for MonitorMaintenance
func (MonitorMaintenance) TableName() string {
	return "monitor_maintenances"
}

// BeforeSave encodes the weekday and day-of-month sets (GORM hook)
func (m *Maintenance) BeforeSave(tx *gorm.DB) error {
	weekdays, err := json.Marshal(nonNil(m.Weekdays))
	if err != nil {
		return err
	}
	m.WeekdaysRaw = string(weekdays)
	m.DaysOfMonthRaw = EncodeDaysOfMonth(m.DaysOfMonth)
	return nil
}

// AfterFind decodes the weekday and day-of-month sets (GORM hook). Malformed
// columns decode to empty sets.
func (m *Maintenance) AfterFind(tx *gorm.DB) error {
	var err error
	if m.Weekdays, err = DecodeWeekdays(m.WeekdaysRaw); err != nil {
		log.Printf("models: maintenance %d has malformed weekdays, treating as empty: %v", m.ID, err)
	}
	if m.DaysOfMonth, err = DecodeDaysOfMonth(m.DaysOfMonthRaw); err != nil {
		log.Printf("models: maintenance %d has malformed days_of_month, treating as empty: %v", m.ID, err)
	}
	return nil
}

// DecodeWeekdays parses a JSON array of weekday numbers (0=Sunday).
// It always returns a usable slice, even together with an error.
func DecodeWeekdays(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return []int{}, nil
	}
	var values []interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return []int{}, err
	}
	days := make([]int, 0, len(values))
	for _, v := range values {
		n, ok := toInt(v)
		if !ok || n < 0 || n > 6 {
			return []int{}, fmt.Errorf("invalid weekday %v", v)
		}
		days = append(days, n)
	}
	return days, nil
}

// DecodeDaysOfMonth parses a JSON array whose items are day numbers (1..31)
// or "lastDayN" strings. lastDayN is returned as -N.
func DecodeDaysOfMonth(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return []int{}, nil
	}
	var values []interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return []int{}, err
	}
	days := make([]int, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "lastDay") {
			n, err := strconv.Atoi(strings.TrimPrefix(s, "lastDay"))
			if err != nil || n < 1 || n > 4 {
				return []int{}, fmt.Errorf("invalid day of month %q", s)
			}
			days = append(days, -n)
			continue
		}
		n, ok := toInt(v)
		if !ok || n < 1 || n > 31 {
			return []int{}, fmt.Errorf("invalid day of month %v", v)
		}
		days = append(days, n)
	}
	return days, nil
}

// EncodeDaysOfMonth is the inverse of DecodeDaysOfMonth.
func EncodeDaysOfMonth(days []int) string {
	values := make([]interface{}, 0, len(days))
	for _, d := range days {
		if d < 0 {
			values = append(values, fmt.Sprintf("lastDay%d", -d))
		} else {
			values = append(values, d)
		}
	}
	out, _ := json.Marshal(values)
	return string(out)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
