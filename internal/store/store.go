// Package store implements the persistence collaborators of the scheduling
// core on top of GORM.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes monitors, heartbeats and maintenance windows.
type Store struct {
	db *gorm.DB
}

// New creates a store over an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// FindActiveMonitors returns every monitor with active set.
func (s *Store) FindActiveMonitors(ctx context.Context) ([]models.Monitor, error) {
	var monitors []models.Monitor
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&monitors).Error
	return monitors, err
}

// FindMonitor returns a monitor by id.
func (s *Store) FindMonitor(ctx context.Context, id int) (*models.Monitor, error) {
	var m models.Monitor
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// FindMonitorByPushToken returns the push monitor owning token.
func (s *Store) FindMonitorByPushToken(ctx context.Context, token string) (*models.Monitor, error) {
	var m models.Monitor
	err := s.db.WithContext(ctx).
		Where("push_token = ? AND type = ?", token, "push").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// CreateMonitor inserts a monitor.
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// SetMonitorActive pauses or resumes a monitor.
func (s *Store) SetMonitorActive(ctx context.Context, id int, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Monitor{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindMaintenanceWindowsFor returns the active maintenance windows linked
// to a monitor.
func (s *Store) FindMaintenanceWindowsFor(ctx context.Context, monitorID int) ([]models.Maintenance, error) {
	var windows []models.Maintenance
	err := s.db.WithContext(ctx).
		Joins("JOIN monitor_maintenances mm ON mm.maintenance_id = maintenances.id").
		Where("mm.monitor_id = ? AND maintenances.active = ?", monitorID, true).
		Order("maintenances.id").
		Find(&windows).Error
	return windows, err
}

// CreateMaintenance inserts a window and links it to the given monitors.
func (s *Store) CreateMaintenance(ctx context.Context, m *models.Maintenance, monitorIDs ...int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		for _, id := range monitorIDs {
			link := models.MonitorMaintenance{MonitorID: id, MaintenanceID: m.ID}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendHeartbeat stores a new heartbeat. Heartbeats are never updated.
func (s *Store) AppendHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	hb.Time = hb.Time.UTC()
	return s.db.WithContext(ctx).Create(hb).Error
}

// LatestHeartbeat returns the newest heartbeat of a monitor, or nil.
func (s *Store) LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	var hbs []models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("time DESC, id DESC").
		Limit(1).
		Find(&hbs).Error
	if err != nil || len(hbs) == 0 {
		return nil, err
	}
	return &hbs[0], nil
}

// LatestHeartbeatBefore returns the newest heartbeat strictly before t, or
// nil.
func (s *Store) LatestHeartbeatBefore(ctx context.Context, monitorID int, t time.Time) (*models.Heartbeat, error) {
	var hbs []models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND time < ?", monitorID, t.UTC()).
		Order("time DESC, id DESC").
		Limit(1).
		Find(&hbs).Error
	if err != nil || len(hbs) == 0 {
		return nil, err
	}
	return &hbs[0], nil
}

// HeartbeatsInWindow returns heartbeats with start <= time <= end, oldest
// first.
func (s *Store) HeartbeatsInWindow(ctx context.Context, monitorID int, start, end time.Time) ([]models.Heartbeat, error) {
	var hbs []models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND time >= ? AND time <= ?", monitorID, start.UTC(), end.UTC()).
		Order("time ASC, id ASC").
		Find(&hbs).Error
	return hbs, err
}

// RecentHeartbeats returns up to limit newest heartbeats, oldest first.
func (s *Store) RecentHeartbeats(ctx context.Context, monitorID int, limit int) ([]models.Heartbeat, error) {
	var hbs []models.Heartbeat
	err := s.db.WithContext(ctx).
		Where("monitor_id = ?", monitorID).
		Order("time DESC, id DESC").
		Limit(limit).
		Find(&hbs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(hbs)-1; i < j; i, j = i+1, j-1 {
		hbs[i], hbs[j] = hbs[j], hbs[i]
	}
	return hbs, nil
}

// DeleteHeartbeatsBefore removes non-important heartbeats older than
// cutoff and returns how many were deleted. Important beats are kept so
// the transition history survives retention.
func (s *Store) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("time < ? AND important = ?", cutoff.UTC(), false).
		Delete(&models.Heartbeat{})
	return res.RowsAffected, res.Error
}

// NotificationsForMonitor returns the active notification channels linked
// to a monitor, plus the owner's default channels.
func (s *Store) NotificationsForMonitor(ctx context.Context, m *models.Monitor) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where(
			s.db.Where("id IN (?)", s.db.Model(&models.MonitorNotification{}).Select("notification_id").Where("monitor_id = ?", m.ID)).
				Or("is_default = ? AND user_id = ?", true, m.UserID),
		).
		Order("id").
		Find(&notifications).Error
	return notifications, err
}

// SaveStatHourly inserts or replaces the aggregate for one monitor hour.
func (s *Store) SaveStatHourly(ctx context.Context, stat *models.StatHourly) error {
	stat.Hour = stat.Hour.UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "monitor_id"}, {Name: "hour"}},
		DoUpdates: clause.AssignmentColumns([]string{"uptime", "avg_ping", "up_seconds", "down_seconds", "beats"}),
	}).Create(stat).Error
}

// StatsHourly returns the stored hourly aggregates in [start, end), oldest
// first.
func (s *Store) StatsHourly(ctx context.Context, monitorID int, start, end time.Time) ([]models.StatHourly, error) {
	var stats []models.StatHourly
	err := s.db.WithContext(ctx).
		Where("monitor_id = ? AND hour >= ? AND hour < ?", monitorID, start.UTC(), end.UTC()).
		Order("hour").
		Find(&stats).Error
	return stats, err
}

// FindStatusPage returns a published status page and its monitor ids in
// display order.
func (s *Store) FindStatusPage(ctx context.Context, slug string) (*models.StatusPage, []int, error) {
	var page models.StatusPage
	err := s.db.WithContext(ctx).Where("slug = ? AND published = ?", slug, true).First(&page).Error
	if err != nil {
		return nil, nil, notFound(err)
	}

	var ids []int
	err = s.db.WithContext(ctx).Model(&models.StatusPageMonitor{}).
		Where("status_page_id = ?", page.ID).
		Order("display_order, monitor_id").
		Pluck("monitor_id", &ids).Error
	if err != nil {
		return nil, nil, err
	}
	return &page, ids, nil
}
