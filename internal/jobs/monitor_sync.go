package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// MonitorScheduler runs the check loops that MonitorSync keeps in line with
// the store.
type MonitorScheduler interface {
	Update(m *models.Monitor) error
	Remove(monitorID int) bool
	ScheduledIDs() []int
}

// MonitorLister lists the monitors that should be checked.
type MonitorLister interface {
	FindActiveMonitors(ctx context.Context) ([]models.Monitor, error)
}

// MonitorSync reconciles the scheduled monitors with the active monitors in
// the store. Monitors created or edited are (re)scheduled, paused or deleted
// ones are removed.
type MonitorSync struct {
	store     MonitorLister
	scheduler MonitorScheduler
}

// NewMonitorSync creates a sync job.
func NewMonitorSync(store MonitorLister, scheduler MonitorScheduler) *MonitorSync {
	return &MonitorSync{store: store, scheduler: scheduler}
}

// Sync applies one reconciliation pass and returns how many monitors were
// removed.
func (s *MonitorSync) Sync(ctx context.Context) (int, error) {
	monitors, err := s.store.FindActiveMonitors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active monitors: %w", err)
	}

	active := make(map[int]bool, len(monitors))
	for i := range monitors {
		m := &monitors[i]
		active[m.ID] = true
		if err := s.scheduler.Update(m); err != nil {
			log.Printf("jobs: cannot schedule monitor %d (%s): %v", m.ID, m.Name, err)
		}
	}

	removed := 0
	for _, id := range s.scheduler.ScheduledIDs() {
		if !active[id] && s.scheduler.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		log.Printf("jobs: unscheduled %d monitors no longer active", removed)
	}
	return removed, nil
}
