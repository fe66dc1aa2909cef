package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fuomag9/beatkeeper/internal/jobs"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/uptime"
)

type fakeStore struct {
	monitors []models.Monitor
	cutoffs  []time.Time
	saved    []models.StatHourly
}

func (f *fakeStore) FindActiveMonitors(ctx context.Context) ([]models.Monitor, error) {
	return f.monitors, nil
}

func (f *fakeStore) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func (f *fakeStore) SaveStatHourly(ctx context.Context, stat *models.StatHourly) error {
	f.saved = append(f.saved, *stat)
	return nil
}

type fakeStats map[int]*uptime.Stats

func (f fakeStats) StatsBetween(ctx context.Context, monitorID int, start, end time.Time) (*uptime.Stats, error) {
	s, ok := f[monitorID]
	if !ok {
		return nil, errors.New("boom")
	}
	return s, nil
}

var now = time.Date(2024, 5, 8, 10, 30, 0, 0, time.UTC)

func TestCleanupHeartbeats(t *testing.T) {
	store := &fakeStore{}
	s := jobs.NewScheduler(store, fakeStats{}, jobs.Config{RetentionDays: 90, Now: func() time.Time { return now }})

	deleted, err := s.CleanupHeartbeats(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted but got %d", deleted)
	}
	want := []time.Time{time.Date(2024, 2, 8, 10, 30, 0, 0, time.UTC)}
	if diff := cmp.Diff(want, store.cutoffs); diff != "" {
		t.Errorf("unexpected cutoff (-want +got):\n%s", diff)
	}
}

func TestCleanupHeartbeats_Disabled(t *testing.T) {
	store := &fakeStore{}
	s := jobs.NewScheduler(store, fakeStats{}, jobs.Config{})

	if _, err := s.CleanupHeartbeats(context.Background()); err != nil {
		t.Fatalf("cleanup failed: %s", err)
	}
	if len(store.cutoffs) != 0 {
		t.Error("retention 0 should keep every heartbeat")
	}
}

func TestAggregateHourly(t *testing.T) {
	u, ping := 0.75, 120.0
	store := &fakeStore{monitors: []models.Monitor{{ID: 1}, {ID: 2}, {ID: 3}}}
	stats := fakeStats{
		1: {Uptime: &u, AvgPing: &ping, UpSeconds: 2700.4, DownSeconds: 899.6, Beats: 60},
		2: {Beats: 0},
	}

	hour := time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC)
	err := jobs.NewStatsAggregator(store, stats).AggregateHourly(context.Background(), hour.Add(17*time.Minute))
	if err == nil {
		t.Error("a failing monitor should be reported")
	}

	want := []models.StatHourly{{
		MonitorID:   1,
		Hour:        hour,
		Uptime:      &u,
		AvgPing:     &ping,
		UpSeconds:   2700,
		DownSeconds: 900,
		Beats:       60,
	}}
	if diff := cmp.Diff(want, store.saved); diff != "" {
		t.Errorf("unexpected hourly stats (-want +got):\n%s", diff)
	}
}

type fakeMonitors struct {
	mu      sync.Mutex
	updated []int
}

func (f *fakeMonitors) Update(m *models.Monitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, m.ID)
	return nil
}

func (f *fakeMonitors) Remove(monitorID int) bool { return false }
func (f *fakeMonitors) ScheduledIDs() []int      { return nil }

func (f *fakeMonitors) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updated)
}

func TestScheduler_StartStop(t *testing.T) {
	monitors := &fakeMonitors{}
	s := jobs.NewScheduler(&fakeStore{monitors: []models.Monitor{{ID: 4}}}, fakeStats{}, jobs.Config{
		RetentionDays: 30,
		Monitors:      monitors,
		SyncInterval:  time.Second,
	})
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start: %s", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for monitors.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()

	if monitors.count() == 0 {
		t.Error("the monitor sync job should have run")
	}
}
