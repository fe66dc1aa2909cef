package models

import "time"

// StatHourly holds one hour of aggregated heartbeat data for a monitor.
type StatHourly struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID   int       `json:"monitor_id" gorm:"not null;uniqueIndex:idx_stat_hourly_monitor_hour"`
	Hour        time.Time `json:"hour" gorm:"not null;uniqueIndex:idx_stat_hourly_monitor_hour"`
	Uptime      *float64  `json:"uptime"` // nil when the hour had no countable time
	AvgPing     *float64  `json:"avg_ping"`
	UpSeconds   int       `json:"up_seconds"`
	DownSeconds int       `json:"down_seconds"`
	Beats       int       `json:"beats"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for StatHourly
func (StatHourly) TableName() string {
	return "stat_hourly"
}

// All returns every model managed by the schema, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Monitor{},
		&Heartbeat{},
		&Maintenance{},
		&MonitorMaintenance{},
		&Notification{},
		&MonitorNotification{},
		&StatHourly{},
		&StatusPage{},
		&StatusPageMonitor{},
	}
}
