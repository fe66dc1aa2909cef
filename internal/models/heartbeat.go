package models

import "time"

// Status constants
const (
	StatusDown        = 0
	StatusUp          = 1
	StatusPending     = 2
	StatusMaintenance = 3
)

// StatusText returns the upper-case name of a heartbeat status.
func StatusText(status int) string {
	switch status {
	case StatusDown:
		return "DOWN"
	case StatusUp:
		return "UP"
	case StatusPending:
		return "PENDING"
	case StatusMaintenance:
		return "MAINTENANCE"
	default:
		return "UNKNOWN"
	}
}

// Heartbeat represents a monitor check result. Heartbeats are append-only:
// once stored a row is never updated.
type Heartbeat struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	MonitorID int       `json:"monitor_id" gorm:"not null;index:idx_monitor_time"`
	Status    int       `json:"status" gorm:"not null"` // 0=down, 1=up, 2=pending, 3=maintenance
	Ping      int       `json:"ping"`                   // milliseconds
	Important bool      `json:"important" gorm:"default:false"`
	Message   string    `json:"msg" gorm:"type:text"`
	Duration  int       `json:"duration"` // seconds since the previous heartbeat
	Retries   int       `json:"retries"`
	Time      time.Time `json:"time" gorm:"not null;index:idx_monitor_time,sort:desc;index:idx_time"`
}

// TableName specifies the table name for Heartbeat
func (Heartbeat) TableName() string {
	return "heartbeats"
}
