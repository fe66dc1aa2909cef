// Package jobs runs the periodic housekeeping of the heartbeat history and
// keeps the monitor scheduler in line with the stored monitors.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/uptime"
)

// Store is the persistence used by the jobs.
type Store interface {
	FindActiveMonitors(ctx context.Context) ([]models.Monitor, error)
	DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	SaveStatHourly(ctx context.Context, stat *models.StatHourly) error
}

// StatsSource computes uptime statistics over an explicit range.
type StatsSource interface {
	StatsBetween(ctx context.Context, monitorID int, start, end time.Time) (*uptime.Stats, error)
}

// Config tunes the job scheduler.
type Config struct {
	// RetentionDays is how long non-important heartbeats are kept. 0 keeps
	// them forever.
	RetentionDays int

	// Monitors, when set, is resynced with the active monitors every
	// SyncInterval (default 30s).
	Monitors     MonitorScheduler
	SyncInterval time.Duration

	Now func() time.Time
}

// Scheduler manages background jobs
type Scheduler struct {
	cron       *cron.Cron
	store      Store
	aggregator *StatsAggregator
	sync       *MonitorSync
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewScheduler creates a new job scheduler
func NewScheduler(store Store, stats StatsSource, cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	var monitorSync *MonitorSync
	if cfg.Monitors != nil {
		monitorSync = NewMonitorSync(store, cfg.Monitors)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		store:      store,
		aggregator: NewStatsAggregator(store, stats),
		sync:       monitorSync,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Aggregate the previous hour at minute 5
	if _, err := s.cron.AddFunc("5 * * * *", func() {
		hour := s.cfg.Now().UTC().Add(-time.Hour).Truncate(time.Hour)
		if err := s.aggregator.AggregateHourly(s.ctx, hour); err != nil {
			log.Printf("jobs: hourly aggregation failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule hourly aggregation: %w", err)
	}

	// Cleanup old heartbeats daily at 3:14 AM
	if s.cfg.RetentionDays > 0 {
		if _, err := s.cron.AddFunc("14 3 * * *", func() {
			if _, err := s.CleanupHeartbeats(s.ctx); err != nil {
				log.Printf("jobs: heartbeat cleanup failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule heartbeat cleanup: %w", err)
		}
	}

	// Pick up monitors created, edited, paused or deleted since startup
	if s.sync != nil {
		if _, err := s.cron.AddFunc("@every "+s.cfg.SyncInterval.String(), func() {
			if _, err := s.sync.Sync(s.ctx); err != nil {
				log.Printf("jobs: monitor sync failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule monitor sync: %w", err)
		}
	}

	s.cron.Start()
	log.Printf("jobs: scheduler started (%d jobs)", len(s.cron.Entries()))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("jobs: scheduler stopped")
}

// CleanupHeartbeats removes non-important heartbeats older than the
// retention period.
func (s *Scheduler) CleanupHeartbeats(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.cfg.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)

	deleted, err := s.store.DeleteHeartbeatsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup heartbeats: %w", err)
	}
	log.Printf("jobs: cleaned up %d heartbeats older than %s", deleted, cutoff.Format(time.RFC3339))
	return deleted, nil
}
