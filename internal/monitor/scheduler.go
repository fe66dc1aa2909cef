package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fuomag9/beatkeeper/internal/models"
)

// Recorder turns a probe result into a persisted heartbeat.
type Recorder interface {
	RecordCheckResult(ctx context.Context, m *models.Monitor, r Result, now time.Time) (*models.Heartbeat, error)
}

// MonitorSource lists the monitors to schedule at startup.
type MonitorSource interface {
	FindActiveMonitors(ctx context.Context) ([]models.Monitor, error)
}

// SchedulerConfig tunes a Scheduler. Zero values select defaults.
type SchedulerConfig struct {
	// Types resolves monitor types. Defaults to DefaultRegistry().
	Types *Registry

	// TimeoutGrace is added to a monitor's own timeout before the
	// scheduler gives up on a probe.
	TimeoutGrace time.Duration

	Now func() time.Time
}

// Scheduler runs one independent check loop per active monitor.
type Scheduler struct {
	recorder Recorder
	source   MonitorSource
	types    *Registry
	push     *PushMonitor
	grace    time.Duration
	now      func() time.Time

	mu     sync.Mutex
	jobs   map[int]*job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// job is the scheduling state of one monitor.
type job struct {
	monitor atomic.Pointer[models.Monitor]
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	// mu serializes recording for the monitor; stopped is set under it by
	// Remove so nothing is written afterwards.
	mu      sync.Mutex
	stopped bool
}

// NewScheduler creates a new scheduler
func NewScheduler(recorder Recorder, source MonitorSource, cfg SchedulerConfig) *Scheduler {
	if cfg.Types == nil {
		cfg.Types = DefaultRegistry()
	}
	if cfg.TimeoutGrace <= 0 {
		cfg.TimeoutGrace = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	push := NewPushMonitor()
	push.now = cfg.Now

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		recorder: recorder,
		source:   source,
		types:    cfg.Types,
		push:     push,
		grace:    cfg.TimeoutGrace,
		now:      cfg.Now,
		jobs:     make(map[int]*job),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start loads all active monitors and starts monitoring
func (s *Scheduler) Start(ctx context.Context) error {
	monitors, err := s.source.FindActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active monitors: %w", err)
	}

	log.Printf("scheduler: starting %d active monitors", len(monitors))

	for i := range monitors {
		if err := s.Add(&monitors[i]); err != nil {
			log.Printf("scheduler: skipping monitor %d (%s): %v", monitors[i].ID, monitors[i].Name, err)
		}
	}
	return nil
}

// Stop stops all monitors and waits for running checks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = make(map[int]*job)
	s.mu.Unlock()

	s.cancel()
	for _, j := range jobs {
		j.halt()
	}
	s.wg.Wait()

	log.Println("scheduler: all monitors stopped")
}

// Add starts monitoring m. The first check runs immediately. Adding a
// monitor that is already scheduled updates it instead.
func (s *Scheduler) Add(m *models.Monitor) error {
	if err := s.Validate(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[m.ID]; ok {
		j.monitor.Store(m)
		return nil
	}
	if s.ctx.Err() != nil {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{ctx: ctx, cancel: cancel}
	j.monitor.Store(m)
	s.jobs[m.ID] = j

	s.wg.Add(1)
	go s.loop(j)

	log.Printf("scheduler: started monitor %s (ID: %d, interval: %s)", m.Name, m.ID, m.CheckInterval())
	return nil
}

// Validate checks that m has a known type and a configuration that type
// accepts.
func (s *Scheduler) Validate(m *models.Monitor) error {
	mt, err := s.monitorType(m.Type)
	if err != nil {
		return err
	}
	if err := mt.Validate(m); err != nil {
		return fmt.Errorf("invalid monitor configuration: %w", err)
	}
	return nil
}

// Update applies an edited monitor. An inactive monitor is removed; an
// interval change takes effect after the tick already scheduled.
func (s *Scheduler) Update(m *models.Monitor) error {
	if !m.Active {
		s.Remove(m.ID)
		return nil
	}
	return s.Add(m)
}

// Remove stops monitoring a monitor. When it returns, no further heartbeat
// will be recorded for it, even by a check that is still in flight.
func (s *Scheduler) Remove(monitorID int) bool {
	s.mu.Lock()
	j, ok := s.jobs[monitorID]
	delete(s.jobs, monitorID)
	s.mu.Unlock()

	if !ok {
		return false
	}

	j.halt()
	s.push.Forget(monitorID)
	log.Printf("scheduler: stopped monitor ID: %d", monitorID)
	return true
}

// Trigger starts an out-of-schedule check. It returns ErrBusy when a check
// for the monitor is already in flight.
func (s *Scheduler) Trigger(monitorID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrStopped
	}
	j, ok := s.jobs[monitorID]
	if !ok {
		return ErrUnknownMonitor
	}
	if !j.running.CompareAndSwap(false, true) {
		return ErrBusy
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		s.run(j)
	}()
	return nil
}

// Push records a result reported by the monitored target itself. Only a
// stored push counts as an arrival, so a lost one is still reported as
// missing by the scheduled check.
func (s *Scheduler) Push(ctx context.Context, monitorID int, r Result) (*models.Heartbeat, error) {
	j := s.job(monitorID)
	if j == nil {
		return nil, ErrUnknownMonitor
	}

	now := s.now()
	hb, err := s.record(ctx, j, j.monitor.Load(), r, now)
	if err != nil {
		return nil, err
	}
	if hb != nil {
		s.push.Seen(monitorID, now)
	}
	return hb, nil
}

// ScheduledIDs returns the IDs of the monitors with a running loop, in
// ascending order.
func (s *Scheduler) ScheduledIDs() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (s *Scheduler) job(monitorID int) *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[monitorID]
}

func (s *Scheduler) monitorType(name string) (MonitorType, error) {
	if name == "push" {
		return s.push, nil
	}
	mt, ok := s.types.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown monitor type %q", name)
	}
	return mt, nil
}

func (j *job) halt() {
	j.cancel()
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
}

// loop drives one monitor. The timer is re-armed after each tick, so a
// slow check delays its own next run and never overlaps it.
func (s *Scheduler) loop(j *job) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.tick(j))
		}
	}
}

// tick runs a scheduled check unless one is already in flight and
// returns the delay until the next tick.
func (s *Scheduler) tick(j *job) time.Duration {
	m := j.monitor.Load()
	if !j.running.CompareAndSwap(false, true) {
		log.Printf("scheduler: monitor %d check still in flight, skipping tick", m.ID)
		return m.CheckInterval()
	}
	defer j.running.Store(false)

	return s.run(j)
}

func (s *Scheduler) run(j *job) time.Duration {
	m := j.monitor.Load()

	r, err := s.probe(j.ctx, m)
	if errors.Is(err, ErrNoBeat) {
		return m.CheckInterval()
	}
	if err != nil {
		log.Printf("scheduler: monitor %d (%s): %v", m.ID, m.Name, err)
		return m.CheckInterval()
	}

	hb, err := s.record(j.ctx, j, m, r, s.now())
	if err != nil {
		if j.ctx.Err() == nil {
			log.Printf("scheduler: failed to record heartbeat for monitor %d: %v", m.ID, err)
		}
		return m.CheckInterval()
	}
	if hb == nil {
		return m.CheckInterval()
	}

	log.Printf("Monitor %s (ID: %d): %s - %dms - %s",
		m.Name, m.ID, models.StatusText(hb.Status), hb.Ping, hb.Message)

	if hb.Status == models.StatusPending {
		return m.RetryDelay()
	}
	return m.CheckInterval()
}

// probe runs the monitor's check bounded by its timeout. Probe errors and
// panics become failed results; only ErrNoBeat and configuration errors
// are returned.
func (s *Scheduler) probe(ctx context.Context, m *models.Monitor) (Result, error) {
	mt, err := s.monitorType(m.Type)
	if err != nil {
		return Result{}, err
	}

	timeout := m.CheckTimeout() + s.grace
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		r   Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{r: Down(0, fmt.Sprintf("Check panicked: %v", p))}
			}
		}()
		r, err := mt.Check(ctx, m)
		done <- outcome{r: r, err: err}
	}()

	select {
	case o := <-done:
		if errors.Is(o.err, ErrNoBeat) {
			return Result{}, ErrNoBeat
		}
		if o.err != nil {
			return Down(o.r.Ping, o.err.Error()), nil
		}
		return o.r, nil
	case <-ctx.Done():
		return Down(int(timeout.Milliseconds()), fmt.Sprintf("Check timed out after %s", timeout)), nil
	}
}

// record hands a result to the recorder while holding the monitor's lock.
// A result for a removed monitor is dropped and (nil, nil) returned.
func (s *Scheduler) record(ctx context.Context, j *job, m *models.Monitor, r Result, now time.Time) (*models.Heartbeat, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stopped || j.ctx.Err() != nil {
		return nil, nil
	}
	return s.recorder.RecordCheckResult(ctx, m, r, now)
}
