package models

import "time"

// StatusPage is a public page listing a selection of monitors.
type StatusPage struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int       `json:"user_id" gorm:"not null;index"`
	Slug        string    `json:"slug" gorm:"not null;uniqueIndex"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description" gorm:"type:text"`
	Published   bool      `json:"published" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for StatusPage
func (StatusPage) TableName() string {
	return "status_pages"
}

// StatusPageMonitor places a monitor on a status page
type StatusPageMonitor struct {
	StatusPageID int `json:"status_page_id" gorm:"primaryKey"`
	MonitorID    int `json:"monitor_id" gorm:"primaryKey;index"`
	DisplayOrder int `json:"display_order"`
}

// TableName specifies the table name for StatusPageMonitor
func (StatusPageMonitor) TableName() string {
	return "status_page_monitors"
}
