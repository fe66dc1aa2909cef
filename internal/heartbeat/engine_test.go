package heartbeat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fuomag9/beatkeeper/internal/heartbeat"
	"github.com/fuomag9/beatkeeper/internal/models"
	"github.com/fuomag9/beatkeeper/internal/monitor"
)

type memStore struct {
	mu       sync.Mutex
	beats        []models.Heartbeat
	failures     int
	readFailures int
}

func (s *memStore) LatestHeartbeat(ctx context.Context, monitorID int) (*models.Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readFailures > 0 {
		s.readFailures--
		return nil, errors.New("database is locked")
	}
	for i := len(s.beats) - 1; i >= 0; i-- {
		if s.beats[i].MonitorID == monitorID {
			hb := s.beats[i]
			return &hb, nil
		}
	}
	return nil, nil
}

func (s *memStore) AppendHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	hb.ID = len(s.beats) + 1
	s.beats = append(s.beats, *hb)
	return nil
}

type fixedMaintenance map[int]bool

func (f fixedMaintenance) IsUnderMaintenance(ctx context.Context, monitorID int, now time.Time) (bool, error) {
	return f[monitorID], nil
}

type recorder struct {
	mu        sync.Mutex
	notified  []int
	published []int
	alerts    []string
}

func (r *recorder) Notify(m *models.Monitor, hb *models.Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, hb.Status)
}

func (r *recorder) Publish(ownerID int, hb *models.Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, ownerID)
}

func (r *recorder) Alert(subject, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, subject)
}

var t0 = time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC)

func newEngine(store heartbeat.Store, maint heartbeat.MaintenanceChecker, rec *recorder, cfg heartbeat.Config) *heartbeat.Engine {
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	return heartbeat.NewEngine(store, maint, rec, rec, rec, cfg)
}

type beat struct {
	Status    int
	Important bool
	Duration  int
	Retries   int
}

func TestEngine_RecordCheckResult(t *testing.T) {
	up := monitor.Up(10, "ok")
	down := monitor.Down(0, "connection refused")

	tests := []struct {
		Name        string
		Monitor     models.Monitor
		Maintenance []bool
		Results     []monitor.Result
		Want        []beat
	}{
		{
			Name:    "first-beat-is-important",
			Monitor: models.Monitor{ID: 1},
			Results: []monitor.Result{up},
			Want:    []beat{{models.StatusUp, true, 0, 0}},
		},
		{
			Name:    "steady-up-then-down",
			Monitor: models.Monitor{ID: 1},
			Results: []monitor.Result{up, up, down, down, up},
			Want: []beat{
				{models.StatusUp, true, 0, 0},
				{models.StatusUp, false, 60, 0},
				{models.StatusDown, true, 60, 0},
				{models.StatusDown, false, 60, 0},
				{models.StatusUp, true, 60, 0},
			},
		},
		{
			Name:    "upside-down",
			Monitor: models.Monitor{ID: 1, UpsideDown: true},
			Results: []monitor.Result{up, down},
			Want: []beat{
				{models.StatusDown, true, 0, 0},
				{models.StatusUp, true, 60, 0},
			},
		},
		{
			Name:        "maintenance-overrides-result",
			Monitor:     models.Monitor{ID: 1},
			Maintenance: []bool{false, true, true, false},
			Results:     []monitor.Result{down, down, up, down},
			Want: []beat{
				{models.StatusDown, true, 0, 0},
				{models.StatusMaintenance, true, 60, 0},
				{models.StatusMaintenance, false, 60, 0},
				{models.StatusDown, true, 60, 0},
			},
		},
		{
			Name:    "retries-report-pending",
			Monitor: models.Monitor{ID: 1, MaxRetries: 2},
			Results: []monitor.Result{up, down, down, down, down, up},
			Want: []beat{
				{models.StatusUp, true, 0, 0},
				{models.StatusPending, true, 60, 1},
				{models.StatusPending, false, 60, 2},
				{models.StatusDown, true, 60, 2},
				{models.StatusDown, false, 60, 2},
				{models.StatusUp, true, 60, 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			store := &memStore{}
			maint := fixedMaintenance{}
			e := newEngine(store, maint, &recorder{}, heartbeat.Config{NotifyMaintenanceTransitions: true})

			var got []beat
			for i, r := range tt.Results {
				if i < len(tt.Maintenance) {
					maint[tt.Monitor.ID] = tt.Maintenance[i]
				}
				hb, err := e.RecordCheckResult(context.Background(), &tt.Monitor, r, t0.Add(time.Duration(i)*time.Minute))
				if err != nil {
					t.Fatalf("check %d: unexpected error: %s", i, err)
				}
				got = append(got, beat{hb.Status, hb.Important, hb.Duration, hb.Retries})
			}

			if diff := cmp.Diff(tt.Want, got); diff != "" {
				t.Errorf("unexpected beats (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngine_MaintenanceMessage(t *testing.T) {
	e := newEngine(&memStore{}, fixedMaintenance{1: true}, &recorder{}, heartbeat.Config{})

	hb, err := e.RecordCheckResult(context.Background(), &models.Monitor{ID: 1}, monitor.Down(42, "timeout"), t0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if hb.Message != heartbeat.MaintenanceMessage {
		t.Errorf("expected maintenance message but got %q", hb.Message)
	}
	if hb.Ping != 42 {
		t.Errorf("latency should be kept during maintenance, got %d", hb.Ping)
	}
}

func TestEngine_NotifiesImportantBeatsOnly(t *testing.T) {
	rec := &recorder{}
	e := newEngine(&memStore{}, fixedMaintenance{}, rec, heartbeat.Config{NotifyMaintenanceTransitions: true})
	m := &models.Monitor{ID: 1, UserID: 9}

	for i, r := range []monitor.Result{monitor.Up(1, ""), monitor.Up(1, ""), monitor.Down(0, ""), monitor.Down(0, "")} {
		if _, err := e.RecordCheckResult(context.Background(), m, r, t0.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}

	if diff := cmp.Diff([]int{models.StatusUp, models.StatusDown}, rec.notified); diff != "" {
		t.Errorf("unexpected notifications (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{9, 9, 9, 9}, rec.published); diff != "" {
		t.Errorf("every beat should be published to the owner (-want +got):\n%s", diff)
	}
}

func TestEngine_MaintenanceTransitionsNotNotified(t *testing.T) {
	rec := &recorder{}
	maint := fixedMaintenance{}
	e := newEngine(&memStore{}, maint, rec, heartbeat.Config{NotifyMaintenanceTransitions: false})
	m := &models.Monitor{ID: 1}

	steps := []bool{false, true, false}
	for i, inMaintenance := range steps {
		maint[1] = inMaintenance
		hb, err := e.RecordCheckResult(context.Background(), m, monitor.Up(1, ""), t0.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if !hb.Important {
			t.Errorf("beat %d should be important", i)
		}
	}

	if diff := cmp.Diff([]int{models.StatusUp}, rec.notified); diff != "" {
		t.Errorf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func TestEngine_PersistenceRetries(t *testing.T) {
	store := &memStore{failures: 2}
	rec := &recorder{}
	e := newEngine(store, nil, rec, heartbeat.Config{RetryAttempts: 3})

	hb, err := e.RecordCheckResult(context.Background(), &models.Monitor{ID: 1}, monitor.Up(1, ""), t0)
	if err != nil {
		t.Fatalf("expected the third attempt to succeed: %s", err)
	}
	if hb.ID != 1 || len(store.beats) != 1 {
		t.Errorf("expected exactly one stored heartbeat, got %d", len(store.beats))
	}
	if len(rec.alerts) != 0 {
		t.Errorf("unexpected ops alerts: %v", rec.alerts)
	}
}

func TestEngine_PersistenceFailureAlerts(t *testing.T) {
	store := &memStore{failures: 10}
	rec := &recorder{}
	e := newEngine(store, nil, rec, heartbeat.Config{RetryAttempts: 3})

	_, err := e.RecordCheckResult(context.Background(), &models.Monitor{ID: 1}, monitor.Down(0, ""), t0)
	if !errors.Is(err, heartbeat.ErrPersistence) {
		t.Fatalf("expected ErrPersistence but got %v", err)
	}
	if store.failures != 7 {
		t.Errorf("expected 3 attempts, store saw %d", 10-store.failures)
	}
	if len(rec.alerts) != 1 {
		t.Errorf("expected one ops alert, got %v", rec.alerts)
	}
	if len(rec.notified) != 0 || len(rec.published) != 0 {
		t.Error("an unstored beat must not be notified or published")
	}
}

func TestEngine_PreviousHeartbeatReadRetries(t *testing.T) {
	tests := []struct {
		Name         string
		ReadFailures int
		WantStored   int
		WantAlerts   int
		WantErr      error
	}{
		{Name: "transient-read-error", ReadFailures: 1, WantStored: 1},
		{Name: "read-never-recovers", ReadFailures: 10, WantAlerts: 1, WantErr: heartbeat.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			store := &memStore{readFailures: tt.ReadFailures}
			rec := &recorder{}
			e := newEngine(store, nil, rec, heartbeat.Config{RetryAttempts: 3})

			hb, err := e.RecordCheckResult(context.Background(), &models.Monitor{ID: 1}, monitor.Up(1, ""), t0)
			if !errors.Is(err, tt.WantErr) {
				t.Fatalf("expected error %v but got %v", tt.WantErr, err)
			}
			if tt.WantErr == nil && (hb == nil || hb.Status != models.StatusUp) {
				t.Errorf("unexpected heartbeat: %+v", hb)
			}
			if len(store.beats) != tt.WantStored {
				t.Errorf("expected %d stored heartbeats, got %d", tt.WantStored, len(store.beats))
			}
			if len(rec.alerts) != tt.WantAlerts {
				t.Errorf("expected %d ops alerts, got %v", tt.WantAlerts, rec.alerts)
			}
		})
	}
}

func TestEngine_CancelledContextDiscards(t *testing.T) {
	store := &memStore{failures: 10}
	rec := &recorder{}
	e := newEngine(store, nil, rec, heartbeat.Config{RetryAttempts: 5, RetryBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.RecordCheckResult(ctx, &models.Monitor{ID: 1}, monitor.Up(1, ""), t0)
	if !errors.Is(err, heartbeat.ErrDiscarded) {
		t.Errorf("expected ErrDiscarded but got %v", err)
	}
	if len(rec.alerts) != 0 {
		t.Error("a discarded beat is not an incident")
	}
}

func TestEngine_PreviousHeartbeat(t *testing.T) {
	e := newEngine(&memStore{}, nil, &recorder{}, heartbeat.Config{})

	prev, err := e.PreviousHeartbeat(context.Background(), 1)
	if err != nil || prev != nil {
		t.Fatalf("expected no heartbeat, got %v, %v", prev, err)
	}

	if _, err := e.RecordCheckResult(context.Background(), &models.Monitor{ID: 1}, monitor.Up(3, "ok"), t0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	prev, err = e.PreviousHeartbeat(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if prev == nil || prev.Status != models.StatusUp || !prev.Time.Equal(t0) {
		t.Errorf("unexpected previous heartbeat: %+v", prev)
	}
}
