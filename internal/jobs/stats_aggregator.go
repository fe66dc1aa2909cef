package jobs

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// StatsAggregator rolls heartbeat history up into hourly statistics.
type StatsAggregator struct {
	store Store
	stats StatsSource
}

// NewStatsAggregator creates a new statistics aggregator
func NewStatsAggregator(store Store, stats StatsSource) *StatsAggregator {
	return &StatsAggregator{store: store, stats: stats}
}

// AggregateHourly stores the statistics of every active monitor for the
// hour starting at hourStart. A failing monitor does not stop the others.
func (a *StatsAggregator) AggregateHourly(ctx context.Context, hourStart time.Time) error {
	hourStart = hourStart.UTC().Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	monitors, err := a.store.FindActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to list monitors: %w", err)
	}

	var failed int
	for _, m := range monitors {
		if err := a.aggregateMonitorHourly(ctx, m.ID, hourStart, hourEnd); err != nil {
			failed++
			log.Printf("jobs: failed to aggregate hour %s for monitor %d: %v", hourStart.Format(time.RFC3339), m.ID, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d/%d monitors failed", failed, len(monitors))
	}
	return nil
}

func (a *StatsAggregator) aggregateMonitorHourly(ctx context.Context, monitorID int, hourStart, hourEnd time.Time) error {
	stats, err := a.stats.StatsBetween(ctx, monitorID, hourStart, hourEnd)
	if err != nil {
		return err
	}

	// Skip if no data
	if stats.Beats == 0 {
		return nil
	}

	return a.store.SaveStatHourly(ctx, &models.StatHourly{
		MonitorID:   monitorID,
		Hour:        hourStart,
		Uptime:      stats.Uptime,
		AvgPing:     stats.AvgPing,
		UpSeconds:   int(math.Round(stats.UpSeconds)),
		DownSeconds: int(math.Round(stats.DownSeconds)),
		Beats:       stats.Beats,
	})
}
