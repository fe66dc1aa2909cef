package models

import (
	"log"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
)

// Monitor represents a monitor configuration. Rows are managed outside the
// scheduling core; the core only reads them.
type Monitor struct {
	ID            int                    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        int                    `json:"user_id" gorm:"not null;index"`
	Name          string                 `json:"name" gorm:"not null"`
	Type          string                 `json:"type" gorm:"not null;index"`
	URL           string                 `json:"url"`
	Interval      int                    `json:"interval" gorm:"default:60"`       // seconds
	Timeout       int                    `json:"timeout" gorm:"default:30"`        // seconds
	RetryInterval int                    `json:"retry_interval" gorm:"default:0"`  // seconds, 0 = same as Interval
	MaxRetries    int                    `json:"max_retries" gorm:"default:0"`     // DOWN results reported as PENDING this many times
	UpsideDown    bool                   `json:"upside_down" gorm:"default:false"` // invert up/down
	IPVersion     string                 `json:"ip_version" gorm:"default:'auto'"` // auto, ipv4, ipv6
	PushToken     *string                `json:"push_token,omitempty" gorm:"uniqueIndex"`
	Active        bool                   `json:"active" gorm:"not null;index"`
	Config        map[string]interface{} `json:"config" gorm:"-"`
	ConfigRaw     string                 `json:"-" gorm:"column:config;type:text"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TableName specifies the table name for Monitor
func (Monitor) TableName() string {
	return "monitors"
}

// BeforeSave marshals the Config map to JSON before saving (GORM hook)
func (m *Monitor) BeforeSave(tx *gorm.DB) error {
	if m.Config != nil {
		configJSON, err := json.Marshal(m.Config)
		if err != nil {
			return err
		}
		m.ConfigRaw = string(configJSON)
	}
	return nil
}

// AfterFind unmarshals the Config JSON after loading (GORM hook). A broken
// config column leaves Config empty instead of failing the whole query.
func (m *Monitor) AfterFind(tx *gorm.DB) error {
	if m.ConfigRaw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(m.ConfigRaw), &m.Config); err != nil {
		log.Printf("models: monitor %d has malformed config, ignoring: %v", m.ID, err)
		m.Config = nil
	}
	return nil
}

// CheckInterval returns the delay between two regular checks.
func (m *Monitor) CheckInterval() time.Duration {
	if m.Interval <= 0 {
		return 60 * time.Second
	}
	return time.Duration(m.Interval) * time.Second
}

// RetryDelay returns the delay used after a PENDING beat.
func (m *Monitor) RetryDelay() time.Duration {
	if m.RetryInterval <= 0 {
		return m.CheckInterval()
	}
	return time.Duration(m.RetryInterval) * time.Second
}

// CheckTimeout bounds a single probe.
func (m *Monitor) CheckTimeout() time.Duration {
	if m.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.Timeout) * time.Second
}
