// Package uptime computes duration-weighted uptime over heartbeat history.
package uptime

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/timewindow"
)

// Source reads heartbeat history.
type Source interface {
	// HeartbeatsInWindow returns beats with start <= time <= end, oldest
	// first.
	HeartbeatsInWindow(ctx context.Context, monitorID int, start, end time.Time) ([]models.Heartbeat, error)

	// LatestHeartbeatBefore returns the newest beat strictly before t, or
	// nil.
	LatestHeartbeatBefore(ctx context.Context, monitorID int, t time.Time) (*models.Heartbeat, error)

	// RecentHeartbeats returns up to limit newest beats, oldest first.
	RecentHeartbeats(ctx context.Context, monitorID int, limit int) ([]models.Heartbeat, error)
}

// Stats summarizes a monitor's history over [Start, End].
type Stats struct {
	MonitorID   int       `json:"monitor_id"`
	Uptime      *float64  `json:"uptime"`
	AvgPing     *float64  `json:"avg_ping"`
	UpSeconds   float64   `json:"up_seconds"`
	DownSeconds float64   `json:"down_seconds"`
	Beats       int       `json:"beats"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Aggregator computes uptime statistics for monitors
type Aggregator struct {
	source Source
	now    func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source, now: time.Now}
}

// WithClock returns a copy of the aggregator that reads the current time
// from now.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	return &Aggregator{source: a.source, now: now}
}

// Stats computes statistics over the last windowHours hours.
func (a *Aggregator) Stats(ctx context.Context, windowHours, monitorID int) (*Stats, error) {
	if windowHours <= 0 {
		return nil, fmt.Errorf("window must be at least one hour, got %d", windowHours)
	}
	start, end := timewindow.Window(windowHours, a.now())
	return a.StatsBetween(ctx, monitorID, start, end)
}

// StatsBetween computes statistics over an explicit range.
func (a *Aggregator) StatsBetween(ctx context.Context, monitorID int, start, end time.Time) (*Stats, error) {
	beats, err := a.source.HeartbeatsInWindow(ctx, monitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load heartbeats for monitor %d: %w", monitorID, err)
	}

	var before *models.Heartbeat
	if len(beats) > 0 && beats[0].Duration > 0 {
		before, err = a.source.LatestHeartbeatBefore(ctx, monitorID, start)
		if err != nil {
			return nil, fmt.Errorf("failed to load heartbeat before window for monitor %d: %w", monitorID, err)
		}
	}

	stats := Compute(beats, before, start, end)
	stats.MonitorID = monitorID
	return &stats, nil
}

// CalcUptime returns the fraction of UP time over the last windowHours
// hours, or nil when the window holds no UP or DOWN time.
func (a *Aggregator) CalcUptime(ctx context.Context, windowHours, monitorID int) (*float64, error) {
	stats, err := a.Stats(ctx, windowHours, monitorID)
	if err != nil {
		return nil, err
	}
	return stats.Uptime, nil
}

// AvgPing returns the mean latency of UP beats over the last windowHours
// hours, or nil when there are none.
func (a *Aggregator) AvgPing(ctx context.Context, windowHours, monitorID int) (*float64, error) {
	stats, err := a.Stats(ctx, windowHours, monitorID)
	if err != nil {
		return nil, err
	}
	return stats.AvgPing, nil
}

// Compute weighs every beat's Duration, clipped to [start, end], by the
// status of the beat before it. before is the newest beat preceding beats,
// if any. MAINTENANCE and PENDING time count towards neither side.
func Compute(beats []models.Heartbeat, before *models.Heartbeat, start, end time.Time) Stats {
	stats := Stats{Start: start, End: end}

	var up, down time.Duration
	var pingSum float64
	var pingCount int

	prev := before
	for i := range beats {
		b := &beats[i]

		if prev != nil && b.Duration > 0 {
			from := b.Time.Add(-time.Duration(b.Duration) * time.Second)
			to := b.Time
			if from.Before(start) {
				from = start
			}
			if to.After(end) {
				to = end
			}
			if w := to.Sub(from); w > 0 {
				switch prev.Status {
				case models.StatusUp:
					up += w
				case models.StatusDown:
					down += w
				}
			}
		}

		if !b.Time.Before(start) && !b.Time.After(end) {
			stats.Beats++
			if b.Status == models.StatusUp {
				pingSum += float64(b.Ping)
				pingCount++
			}
		}
		prev = b
	}

	stats.UpSeconds = up.Seconds()
	stats.DownSeconds = down.Seconds()
	if total := up + down; total > 0 {
		u := float64(up) / float64(total)
		stats.Uptime = &u
	}
	if pingCount > 0 {
		avg := pingSum / float64(pingCount)
		stats.AvgPing = &avg
	}

	return stats
}

// MonitorSnapshot is what a status page shows for one monitor.
type MonitorSnapshot struct {
	Heartbeats []models.Heartbeat `json:"heartbeats"`
	Uptime24h  *float64           `json:"uptime_24h"`
}

// SnapshotBeats is the number of recent beats in a status page snapshot.
const SnapshotBeats = 50

// Snapshot returns the recent beats and 24 hour uptime of each monitor.
func (a *Aggregator) Snapshot(ctx context.Context, monitorIDs []int) (map[int]MonitorSnapshot, error) {
	out := make(map[int]MonitorSnapshot, len(monitorIDs))
	for _, id := range monitorIDs {
		beats, err := a.source.RecentHeartbeats(ctx, id, SnapshotBeats)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent heartbeats for monitor %d: %w", id, err)
		}
		if beats == nil {
			beats = []models.Heartbeat{}
		}

		uptime, err := a.CalcUptime(ctx, 24, id)
		if err != nil {
			return nil, err
		}

		out[id] = MonitorSnapshot{Heartbeats: beats, Uptime24h: uptime}
	}
	return out, nil
}
